// Package engine provides the embedded, durable page tree of pageselect.
//
// It wraps the in-memory tree (core.DB) with an append-only log and periodic
// snapshots, and hands out selection builders bound to the tree.
//
// Basic usage:
//
//	opts := engine.DefaultOptions("./data")
//	eng, err := engine.Open(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
//	b, _ := eng.NewSelection()
//	b.SelectByParentsRecursive("1")
//	pages, err := b.Execute()
package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sanonone/pageselect/pkg/core"
	"github.com/sanonone/pageselect/pkg/core/types"
	"github.com/sanonone/pageselect/pkg/metrics"
	"github.com/sanonone/pageselect/pkg/persistence"
	"github.com/sanonone/pageselect/pkg/selection"
)

const minRewriteSize = 1024 * 1024

// Options configures the Engine.
type Options struct {
	// DataDir holds the .aof and .kdb files. It is created if missing.
	DataDir string

	// AofFilename is the name of the log (default "pages.aof"); the snapshot
	// is stored next to it with the .kdb extension.
	AofFilename string

	// A snapshot is taken automatically once AutoSaveThreshold writes happened
	// and AutoSaveInterval elapsed since the last one. Zero disables it.
	AutoSaveInterval  time.Duration
	AutoSaveThreshold int64

	// AofRewritePercentage compacts the log once it grew by this percentage
	// over its size after the last rewrite (files under 1MB are left alone).
	// Zero disables automatic rewrites.
	AofRewritePercentage int

	// MaintenanceInterval is how often the background task checks the policies above.
	MaintenanceInterval time.Duration

	AOF       persistence.LazyConfig
	Store     core.Options
	Selection selection.Options

	Logger *slog.Logger
}

// DefaultOptions returns the configuration used by the CLI.
//
// Defaults:
//   - AofFilename: "pages.aof"
//   - AutoSave: every 60s if at least 1000 writes occurred
//   - AofRewrite: at 100% growth
//   - Selection: recursion depth 255
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:              dataDir,
		AofFilename:          "pages.aof",
		AutoSaveInterval:     60 * time.Second,
		AutoSaveThreshold:    1000,
		AofRewritePercentage: 100,
		MaintenanceInterval:  1 * time.Second,
		AOF:                  persistence.DefaultLazyConfig(),
		Selection:            selection.DefaultOptions(),
	}
}

// Engine coordinates the in-memory tree and its persistence.
type Engine struct {
	// DB is the in-memory tree. Reads may use it directly; writes must go
	// through PutPage and DeletePage so they are logged.
	DB *core.DB

	AOF *persistence.LazyAOFWriter

	opts     Options
	log      *slog.Logger
	aofPath  string
	snapPath string

	dirtyCounter int64
	lastSaveTime time.Time
	aofBaseSize  int64

	// snapUIDs holds the uids stored in the .kdb file on disk. A rewritten
	// log must still delete those that are gone from DB.
	snapUIDs map[uint32]struct{}

	// adminMu serializes writes with snapshotting.
	adminMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Open loads the latest snapshot, replays the log on top of it and starts
// background maintenance. It blocks until the tree is fully loaded.
func Open(opts Options) (*Engine, error) {
	if opts.AofFilename == "" {
		opts.AofFilename = "pages.aof"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Selection.Logger == nil {
		opts.Selection.Logger = logger
	}

	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	aofPath := filepath.Join(opts.DataDir, opts.AofFilename)
	snapPath := strings.TrimSuffix(aofPath, filepath.Ext(aofPath)) + ".kdb"

	e := &Engine{
		DB:           core.NewDB(opts.Store),
		opts:         opts,
		log:          logger,
		aofPath:      aofPath,
		snapPath:     snapPath,
		lastSaveTime: time.Now(),
		closed:       make(chan struct{}),
	}

	// 1. Snapshot
	if err := e.loadSnapshot(); err != nil {
		return nil, err
	}

	// 2. Log replay, cutting off a torn tail (or a corrupt suffix, kept as
	// .corrupt) before appending to the file again.
	if err := e.replayAOF(); err != nil {
		return nil, fmt.Errorf("failed to replay AOF: %w", err)
	}

	aofWriter, err := persistence.NewAOFWriter(aofPath)
	if err != nil {
		return nil, err
	}
	e.AOF = persistence.NewLazyAOFWriterWithConfig(aofWriter, opts.AOF)
	if size, err := aofWriter.Size(); err == nil {
		e.aofBaseSize = size
	}

	metrics.TotalPages.Set(float64(e.DB.Len()))
	e.log.Info("Page tree loaded", "pages", e.DB.Len(), "data_dir", opts.DataDir)

	// 3. Background maintenance
	e.wg.Add(1)
	go e.backgroundTasks()

	return e, nil
}

func (e *Engine) loadSnapshot() error {
	f, err := os.Open(e.snapPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	if err := e.DB.LoadFromSnapshot(f); err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	e.snapUIDs = uidSet(e.DB.All())
	return nil
}

func uidSet(pages []types.Page) map[uint32]struct{} {
	set := make(map[uint32]struct{}, len(pages))
	for _, p := range pages {
		set[p.UID] = struct{}{}
	}
	return set
}

func (e *Engine) replayAOF() error {
	f, err := os.Open(e.aofPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	valid, err := persistence.Replay(f, func(cmd persistence.Command) error {
		switch cmd.Op {
		case persistence.OpPut:
			return e.DB.Put(cmd.Page)
		case persistence.OpDelete:
			// Deleting an absent page is harmless during replay.
			_ = e.DB.Delete(cmd.UID)
		}
		return nil
	})
	corrupt := errors.Is(err, persistence.ErrCorruptLog)
	if err != nil && !corrupt {
		return err
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if valid >= info.Size() {
		return nil
	}

	if corrupt {
		// Frames behind the damage are kept aside for manual recovery.
		backup := e.aofPath + ".corrupt"
		if err := copyFile(e.aofPath, backup); err != nil {
			return fmt.Errorf("failed to back up corrupt AOF: %w", err)
		}
		e.log.Error("Corrupt frame inside AOF, later entries skipped",
			"path", e.aofPath, "offset", valid, "size", info.Size(), "backup", backup)
	} else {
		e.log.Warn("Truncating torn AOF tail", "path", e.aofPath, "valid_bytes", valid, "size", info.Size())
	}
	if err := os.Truncate(e.aofPath, valid); err != nil {
		return fmt.Errorf("failed to truncate AOF: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Close stops background maintenance and closes the log. All writes are
// already in the log, so no final snapshot is taken.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closed)
		e.wg.Wait()
		if e.AOF != nil {
			err = e.AOF.Close()
		}
	})
	return err
}

// PutPage stores or replaces a page.
func (e *Engine) PutPage(p types.Page) error {
	if p.UID == 0 {
		return fmt.Errorf("%w: uid must be positive", core.ErrInvalidPage)
	}
	frame, err := persistence.EncodePut(p)
	if err != nil {
		return err
	}

	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	if err := e.AOF.Write(frame); err != nil {
		return err
	}
	if err := e.DB.Put(p); err != nil {
		return err
	}
	atomic.AddInt64(&e.dirtyCounter, 1)
	metrics.TotalPages.Set(float64(e.DB.Len()))
	return nil
}

// DeletePage removes a page. It returns core.ErrPageNotFound for unknown uids.
func (e *Engine) DeletePage(uid uint32) error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	if _, ok := e.DB.Get(uid); !ok {
		return fmt.Errorf("%w: %d", core.ErrPageNotFound, uid)
	}
	if err := e.AOF.Write(persistence.EncodeDelete(uid)); err != nil {
		return err
	}
	if err := e.DB.Delete(uid); err != nil {
		return err
	}
	atomic.AddInt64(&e.dirtyCounter, 1)
	metrics.TotalPages.Set(float64(e.DB.Len()))
	return nil
}

// Import stores every page of a YAML page file and returns how many were stored.
func (e *Engine) Import(r io.Reader) (int, error) {
	pages, err := core.LoadYAML(r)
	if err != nil {
		return 0, err
	}
	for _, p := range pages {
		if err := e.PutPage(p); err != nil {
			return 0, fmt.Errorf("failed to import page %d: %w", p.UID, err)
		}
	}
	e.log.Info("Pages imported", "count", len(pages))
	return len(pages), nil
}

// Store returns the in-memory tree.
func (e *Engine) Store() *core.DB {
	return e.DB
}

// NewSelection returns a selection builder bound to the tree.
func (e *Engine) NewSelection() (*selection.Builder, error) {
	return selection.NewBuilderWithOptions(e.DB, e.opts.Selection)
}

// SaveSnapshot writes the whole tree to the .kdb file and empties the log.
func (e *Engine) SaveSnapshot() error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	tmpPath := e.snapPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	// Writers hold adminMu, so the tree cannot change between the snapshot
	// and the uid list.
	saved := uidSet(e.DB.All())
	if err := e.DB.Snapshot(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, e.snapPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	e.snapUIDs = saved

	if err := e.AOF.Truncate(); err != nil {
		return fmt.Errorf("failed to truncate AOF after snapshot: %w", err)
	}

	atomic.StoreInt64(&e.dirtyCounter, 0)
	e.lastSaveTime = time.Now()
	e.aofBaseSize = 0
	e.log.Info("Snapshot saved", "path", e.snapPath, "pages", e.DB.Len())
	return nil
}

// RewriteAOF compacts the log and swaps it in atomically. The new log holds
// one OpDelete frame per snapshot page that no longer exists, followed by
// one OpPut frame per stored page, so snapshot plus log still load the
// current tree.
func (e *Engine) RewriteAOF() error {
	e.adminMu.Lock()
	defer e.adminMu.Unlock()

	tempAof := filepath.Join(e.opts.DataDir, "rewrite.tmp")
	f, err := os.Create(tempAof)
	if err != nil {
		return fmt.Errorf("failed to create rewrite file: %w", err)
	}
	defer os.Remove(tempAof)

	fw := persistence.NewFrameWriter(f)
	pages := e.DB.All()
	live := uidSet(pages)
	deleted := 0
	for uid := range e.snapUIDs {
		if _, ok := live[uid]; ok {
			continue
		}
		payload, _ := json.Marshal(uid)
		if err := fw.WriteFrame(persistence.OpDelete, payload); err != nil {
			f.Close()
			return fmt.Errorf("failed to write rewrite file: %w", err)
		}
		deleted++
	}
	for _, p := range pages {
		payload, err := json.Marshal(p)
		if err != nil {
			f.Close()
			return fmt.Errorf("failed to encode page %d: %w", p.UID, err)
		}
		if err := fw.WriteFrame(persistence.OpPut, payload); err != nil {
			f.Close()
			return fmt.Errorf("failed to write rewrite file: %w", err)
		}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := e.AOF.ReplaceWith(tempAof); err != nil {
		return err
	}

	if size, err := e.AOF.Size(); err == nil {
		e.aofBaseSize = size
	}
	e.log.Info("AOF rewritten", "path", e.aofPath, "pages", len(pages), "deletes", deleted, "size", e.aofBaseSize)
	return nil
}

func (e *Engine) backgroundTasks() {
	defer e.wg.Done()

	interval := e.opts.MaintenanceInterval
	if interval <= 0 {
		interval = 1 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.closed:
			return
		case <-ticker.C:
			e.checkMaintenance()
		}
	}
}

func (e *Engine) checkMaintenance() {
	dirty := atomic.LoadInt64(&e.dirtyCounter)

	if e.opts.AutoSaveThreshold > 0 && e.opts.AutoSaveInterval > 0 {
		e.adminMu.Lock()
		due := time.Since(e.lastSaveTime) >= e.opts.AutoSaveInterval
		e.adminMu.Unlock()

		if dirty >= e.opts.AutoSaveThreshold && due {
			if err := e.SaveSnapshot(); err != nil {
				e.log.Error("Background snapshot failed", "error", err)
			}
		}
	}

	if err := e.AOF.Flush(); err != nil {
		e.log.Error("Background AOF flush failed", "error", err)
	}

	if e.opts.AofRewritePercentage > 0 {
		size, err := e.AOF.Size()
		if err != nil {
			return
		}
		e.adminMu.Lock()
		base := e.aofBaseSize
		e.adminMu.Unlock()

		threshold := base + base*int64(e.opts.AofRewritePercentage)/100
		if threshold < minRewriteSize {
			threshold = minRewriteSize
		}
		if size > threshold {
			if err := e.RewriteAOF(); err != nil {
				e.log.Error("Background AOF rewrite failed", "error", err)
			}
		}
	}
}
