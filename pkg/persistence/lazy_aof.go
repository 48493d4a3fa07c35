package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LazyAOFWriter batches page-tree frames in memory and hands them to an
// AOFWriter from background goroutines.
//
// Frames are flushed to the OS every FlushInterval or as soon as MaxBufferSize
// frames are pending, and fsynced every SyncInterval. Close flushes and syncs
// everything that is still buffered, so a crash loses at most one sync
// interval of page writes.
type LazyAOFWriter struct {
	underlying *AOFWriter

	mu      sync.Mutex
	buffer  [][]byte
	stopped bool

	cfg         LazyConfig
	flushTicker *time.Ticker
	syncTicker  *time.Ticker
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// LazyConfig tunes a LazyAOFWriter.
type LazyConfig struct {
	FlushInterval time.Duration
	SyncInterval  time.Duration
	MaxBufferSize int
}

// DefaultLazyConfig flushes every 100ms, fsyncs every second and forces a
// flush once 1000 frames are pending.
func DefaultLazyConfig() LazyConfig {
	return LazyConfig{
		FlushInterval: 100 * time.Millisecond,
		SyncInterval:  1 * time.Second,
		MaxBufferSize: 1000,
	}
}

// NewLazyAOFWriter wraps underlying with DefaultLazyConfig.
// The underlying writer must not be used directly afterwards.
func NewLazyAOFWriter(underlying *AOFWriter) *LazyAOFWriter {
	return NewLazyAOFWriterWithConfig(underlying, DefaultLazyConfig())
}

// NewLazyAOFWriterWithConfig wraps underlying and starts the flush and sync goroutines.
// Zero fields of cfg fall back to DefaultLazyConfig.
func NewLazyAOFWriterWithConfig(underlying *AOFWriter, cfg LazyConfig) *LazyAOFWriter {
	def := DefaultLazyConfig()
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = def.SyncInterval
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = def.MaxBufferSize
	}

	lw := &LazyAOFWriter{
		underlying:  underlying,
		buffer:      make([][]byte, 0, cfg.MaxBufferSize),
		cfg:         cfg,
		flushTicker: time.NewTicker(cfg.FlushInterval),
		syncTicker:  time.NewTicker(cfg.SyncInterval),
		stopCh:      make(chan struct{}),
	}

	lw.wg.Add(2)
	go lw.flushRoutine()
	go lw.syncRoutine()

	slog.Debug("LazyAOFWriter initialized",
		"path", underlying.Path(),
		"flush_interval", cfg.FlushInterval,
		"sync_interval", cfg.SyncInterval,
		"max_buffer_size", cfg.MaxBufferSize,
	)
	return lw
}

// Write queues a frame. A full buffer is flushed synchronously.
func (lw *LazyAOFWriter) Write(frame []byte) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if lw.stopped {
		return fmt.Errorf("cannot write to closed LazyAOFWriter")
	}
	lw.buffer = append(lw.buffer, frame)
	if len(lw.buffer) >= lw.cfg.MaxBufferSize {
		return lw.flushUnlocked()
	}
	return nil
}

// Flush hands every queued frame to the OS (no fsync).
func (lw *LazyAOFWriter) Flush() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.flushUnlocked()
}

func (lw *LazyAOFWriter) flushUnlocked() error {
	if len(lw.buffer) == 0 {
		return nil
	}
	for _, frame := range lw.buffer {
		if err := lw.underlying.Write(frame); err != nil {
			return fmt.Errorf("failed to write to AOF: %w", err)
		}
	}
	if err := lw.underlying.Flush(); err != nil {
		return fmt.Errorf("failed to flush AOF buffer: %w", err)
	}
	lw.buffer = lw.buffer[:0]
	return nil
}

// Sync flushes the queue and fsyncs the file.
func (lw *LazyAOFWriter) Sync() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.flushUnlocked(); err != nil {
		return err
	}
	return lw.underlying.Sync()
}

// Close stops the background goroutines, flushes what is left and closes the file.
func (lw *LazyAOFWriter) Close() error {
	lw.mu.Lock()
	if lw.stopped {
		lw.mu.Unlock()
		return fmt.Errorf("LazyAOFWriter already closed")
	}
	lw.stopped = true
	lw.mu.Unlock()

	close(lw.stopCh)
	lw.flushTicker.Stop()
	lw.syncTicker.Stop()
	lw.wg.Wait()

	lw.mu.Lock()
	defer lw.mu.Unlock()
	flushErr := lw.flushUnlocked()
	if flushErr != nil {
		slog.Error("Failed to flush during Close", "error", flushErr, "lost_frames", len(lw.buffer))
	}
	return errors.Join(flushErr, lw.underlying.Close())
}

// Path returns the file path of the underlying AOF writer.
func (lw *LazyAOFWriter) Path() string {
	return lw.underlying.Path()
}

// Size returns the on-disk size of the log; queued frames are not counted.
func (lw *LazyAOFWriter) Size() (int64, error) {
	return lw.underlying.Size()
}

// Truncate drops the queue and empties the file. Used after a snapshot has
// captured every page.
func (lw *LazyAOFWriter) Truncate() error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	lw.buffer = lw.buffer[:0]
	return lw.underlying.Truncate()
}

// ReplaceWith flushes the queue and swaps in the file at newFilePath.
func (lw *LazyAOFWriter) ReplaceWith(newFilePath string) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()

	if err := lw.flushUnlocked(); err != nil {
		return err
	}
	return lw.underlying.ReplaceWith(newFilePath)
}

func (lw *LazyAOFWriter) flushRoutine() {
	defer lw.wg.Done()
	for {
		select {
		case <-lw.flushTicker.C:
			if err := lw.Flush(); err != nil {
				slog.Error("Periodic flush failed", "error", err)
			}
		case <-lw.stopCh:
			return
		}
	}
}

func (lw *LazyAOFWriter) syncRoutine() {
	defer lw.wg.Done()
	for {
		select {
		case <-lw.syncTicker.C:
			if err := lw.Sync(); err != nil {
				slog.Error("Periodic sync failed", "error", err)
			}
		case <-lw.stopCh:
			return
		}
	}
}
