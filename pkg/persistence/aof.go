package persistence

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// AOFWriter appends page-tree frames to the log file behind a buffer.
type AOFWriter struct {
	mu   sync.Mutex
	path string
	log  *os.File
	buf  *bufio.Writer
}

func openLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
}

// NewAOFWriter opens the log at path, creating it when missing.
func NewAOFWriter(path string) (*AOFWriter, error) {
	f, err := openLog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open AOF file: %w", err)
	}
	return &AOFWriter{path: path, log: f, buf: bufio.NewWriter(f)}, nil
}

// Write buffers one encoded frame.
func (a *AOFWriter) Write(frame []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, err := a.buf.Write(frame)
	return err
}

// Flush hands buffered frames to the OS.
func (a *AOFWriter) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.Flush()
}

// Sync flushes and fsyncs.
func (a *AOFWriter) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncUnlocked()
}

func (a *AOFWriter) syncUnlocked() error {
	if err := a.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush AOF buffer: %w", err)
	}
	return a.log.Sync()
}

// Close flushes pending frames and closes the log.
func (a *AOFWriter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	flushErr := a.buf.Flush()
	closeErr := a.log.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush AOF buffer: %w", flushErr)
	}
	return closeErr
}

// Truncate discards buffered frames and empties the log. Called once a
// snapshot holds every page.
func (a *AOFWriter) Truncate() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf.Reset(a.log)
	if err := a.log.Truncate(0); err != nil {
		return fmt.Errorf("failed to truncate AOF: %w", err)
	}
	_, err := a.log.Seek(0, 0)
	return err
}

// Path returns the log path.
func (a *AOFWriter) Path() string {
	return a.path
}

// Size returns the on-disk size of the log, not counting buffered frames.
func (a *AOFWriter) Size() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	info, err := a.log.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat AOF: %w", err)
	}
	return info.Size(), nil
}

// ReplaceWith renames the compacted log at newFilePath over the current one
// and continues appending to it.
func (a *AOFWriter) ReplaceWith(newFilePath string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.syncUnlocked(); err != nil {
		return err
	}
	if err := a.log.Close(); err != nil {
		return fmt.Errorf("failed to close AOF before replace: %w", err)
	}
	if err := os.Rename(newFilePath, a.path); err != nil {
		return fmt.Errorf("failed to replace AOF file: %w", err)
	}

	f, err := openLog(a.path)
	if err != nil {
		return fmt.Errorf("failed to reopen AOF file after replace: %w", err)
	}
	a.log = f
	a.buf.Reset(f)
	return nil
}
