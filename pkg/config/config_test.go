package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sanonone/pageselect/pkg/core"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Selection.RecursionDepth != 255 || cfg.Selection.DepthCeiling != 255 {
		t.Errorf("selection defaults = %+v", cfg.Selection)
	}
	if cfg.AofFilename != "pages.aof" || cfg.AofRewritePercentage != 100 {
		t.Errorf("persistence defaults = %q, %d", cfg.AofFilename, cfg.AofRewritePercentage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must be valid: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pageselect.yaml")
	doc := `
data_dir: /var/lib/pageselect
auto_save_interval: 5m
selection:
  recursion_depth: 10
store:
  order: newest
  include_hidden: true
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != "/var/lib/pageselect" || cfg.AutoSaveInterval != 5*time.Minute {
		t.Errorf("top-level keys not applied: %+v", cfg)
	}
	if cfg.Selection.RecursionDepth != 10 || cfg.Selection.DepthCeiling != 255 {
		t.Errorf("selection = %+v", cfg.Selection)
	}
	// Keys absent from the file keep their defaults.
	if cfg.AutoSaveThreshold != 1000 {
		t.Errorf("AutoSaveThreshold = %d", cfg.AutoSaveThreshold)
	}

	opts, err := cfg.EngineOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.Store.Order != core.OrderByNewest || !opts.Store.IncludeHidden {
		t.Errorf("store options = %+v", opts.Store)
	}
	if opts.Selection.RecursionDepth != 10 || opts.DataDir != "/var/lib/pageselect" {
		t.Errorf("engine options = %+v", opts)
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	_, err := Decode(strings.NewReader("data_dir: ./x\nrecursion_depth: 3\n"))
	if err == nil {
		t.Fatal("unknown top-level key must be rejected")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"depth above ceiling", "selection:\n  recursion_depth: 300\n"},
		{"negative depth", "selection:\n  recursion_depth: -1\n"},
		{"zero ceiling", "selection:\n  depth_ceiling: 0\n"},
		{"bad order", "store:\n  order: random\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"empty data dir", "data_dir: \"\"\n"},
		{"negative rewrite", "aof_rewrite_percentage: -5\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"

	var buf bytes.Buffer
	logger, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "pages", 3)

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record passed a warn-level logger")
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"pages":3`) {
		t.Errorf("unexpected JSON output: %s", out)
	}
}
