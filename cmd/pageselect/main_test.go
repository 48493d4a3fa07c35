package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/sanonone/pageselect/pkg/core/types"
)

const pagesYAML = `
pages:
  - {uid: 1, title: Home, doktype: 1}
  - {uid: 2, pid: 1, title: About, doktype: 1}
  - {uid: 3, pid: 2, title: Team, doktype: 1}
  - {uid: 4, pid: 1, title: Imprint, doktype: 1, nav_hide: 1}
  - {uid: 5, pid: 1, title: Storage, doktype: 254}
`

func runCLI(t *testing.T, o cliOptions) []uint32 {
	t.Helper()
	var out bytes.Buffer
	if err := run(o, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var pages []types.Page
	if err := json.Unmarshal(out.Bytes(), &pages); err != nil {
		t.Fatalf("output is not a JSON page list: %v\n%s", err, out.String())
	}
	ids := make([]uint32, len(pages))
	for i, p := range pages {
		ids[i] = p.UID
	}
	return ids
}

func TestRunImportAndSelect(t *testing.T) {
	dir := t.TempDir()
	pagesPath := filepath.Join(dir, "pages.yaml")
	if err := os.WriteFile(pagesPath, []byte(pagesYAML), 0644); err != nil {
		t.Fatal(err)
	}
	dataDir := filepath.Join(dir, "data")

	o := cliOptions{dataDir: dataDir, importPath: pagesPath, snapshot: true, doktypes: "1"}
	o.req.PIDsRecursive = "1"
	if got := runCLI(t, o); !slices.Equal(got, []uint32{2, 3}) {
		t.Errorf("visible default pages below 1: got %v", got)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "pages.kdb")); err != nil {
		t.Errorf("snapshot not written: %v", err)
	}

	// Second run reuses the stored tree without importing.
	o = cliOptions{dataDir: dataDir, noNavCheck: true}
	o.req.ExcludeRecursive = "2"
	if got := runCLI(t, o); !slices.Equal(got, []uint32{1, 4, 5}) {
		t.Errorf("everything but the subtree of 2: got %v", got)
	}
}

func TestRequestFromFlags(t *testing.T) {
	o := cliOptions{doktypes: "1,254,x"}
	req := o.request()
	if !slices.Equal(req.DokTypes, []uint32{1, 254}) {
		t.Errorf("DokTypes = %v", req.DokTypes)
	}
	if req.NavHidden == nil || *req.NavHidden {
		t.Errorf("nav check must default to visible pages only")
	}

	o.noNavCheck = true
	if o.request().NavHidden != nil {
		t.Error("-no-nav-check must not add a nav_hide predicate")
	}
}

type failingCloser struct{ err error }

func (c failingCloser) Close() error { return c.err }

func TestCloseEngineReportsFlushFailure(t *testing.T) {
	flushErr := errors.New("disk full")

	var err error
	closeEngine(failingCloser{err: flushErr}, &err)
	if !errors.Is(err, flushErr) {
		t.Errorf("close error not reported: %v", err)
	}

	selectErr := errors.New("bad selection")
	err = selectErr
	closeEngine(failingCloser{err: flushErr}, &err)
	if err != selectErr {
		t.Errorf("earlier error must win, got %v", err)
	}

	err = nil
	closeEngine(failingCloser{}, &err)
	if err != nil {
		t.Errorf("clean close: %v", err)
	}
}
