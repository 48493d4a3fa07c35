package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sanonone/pageselect/internal/server"
	"github.com/sanonone/pageselect/pkg/config"
	"github.com/sanonone/pageselect/pkg/engine"
	"github.com/sanonone/pageselect/pkg/selection"
)

type cliOptions struct {
	configPath string
	dataDir    string
	importPath string
	snapshot   bool
	serve      bool
	httpAddr   string

	req        selection.Request
	doktypes   string
	navHidden  bool
	noNavCheck bool
}

func main() {
	var o cliOptions
	flag.StringVar(&o.configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&o.dataDir, "data-dir", "", "Data directory (overrides data_dir from the config)")
	flag.StringVar(&o.importPath, "import", "", "YAML page file to import before selecting")
	flag.BoolVar(&o.snapshot, "snapshot", false, "Write a snapshot after importing")
	flag.BoolVar(&o.serve, "serve", false, "Run the HTTP API instead of a one-shot selection")
	flag.StringVar(&o.httpAddr, "http-addr", "", "API listen address (overrides http.addr from the config)")

	flag.StringVar(&o.req.UIDs, "uids", "", "Comma-separated page uids to select")
	flag.StringVar(&o.req.PIDs, "pids", "", "Comma-separated parent uids whose children are selected")
	flag.StringVar(&o.req.UIDsRecursive, "uids-r", "", "Comma-separated page uids to select with all descendants")
	flag.StringVar(&o.req.PIDsRecursive, "pids-r", "", "Comma-separated parent uids whose whole subtrees are selected")
	flag.StringVar(&o.req.Exclude, "exclude", "", "Comma-separated page uids to exclude")
	flag.StringVar(&o.req.ExcludeRecursive, "exclude-r", "", "Comma-separated page uids to exclude with all descendants")
	flag.StringVar(&o.doktypes, "doktypes", "", "Comma-separated doktypes to keep (empty = all)")
	flag.BoolVar(&o.navHidden, "nav-hidden", false, "Also select pages hidden in navigation")
	flag.BoolVar(&o.noNavCheck, "no-nav-check", false, "Do not filter on the nav_hide flag at all")
	flag.Parse()

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pageselect:", err)
		os.Exit(1)
	}
}

func run(o cliOptions, stdout io.Writer) (err error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.httpAddr != "" {
		cfg.HTTP.Addr = o.httpAddr
	}

	logger, err := cfg.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	opts, err := cfg.EngineOptions(logger)
	if err != nil {
		return err
	}
	eng, err := engine.Open(opts)
	if err != nil {
		return err
	}
	defer closeEngine(eng, &err)

	if o.importPath != "" {
		if err := importFile(eng, o.importPath); err != nil {
			return err
		}
		if o.snapshot {
			if err := eng.SaveSnapshot(); err != nil {
				return err
			}
		}
	}

	if o.serve {
		return serve(eng, cfg, logger)
	}
	return selectOnce(eng, o.request(), stdout)
}

// closeEngine closes eng, which flushes the queued log frames, and reports a
// failure through errp unless an earlier error is already set.
func closeEngine(eng io.Closer, errp *error) {
	if cerr := eng.Close(); cerr != nil && *errp == nil {
		*errp = fmt.Errorf("failed to close engine: %w", cerr)
	}
}

// request completes the flag-built selection request.
func (o cliOptions) request() selection.Request {
	req := o.req
	req.DokTypes = selection.ParseIDList(o.doktypes)
	if !o.noNavCheck {
		navHidden := o.navHidden
		req.NavHidden = &navHidden
	}
	return req
}

func importFile(eng *engine.Engine, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open page file: %w", err)
	}
	defer f.Close()

	_, err = eng.Import(f)
	return err
}

func selectOnce(eng *engine.Engine, req selection.Request, stdout io.Writer) error {
	b, err := eng.NewSelection()
	if err != nil {
		return err
	}
	if err := req.Apply(b); err != nil {
		return err
	}
	pages, err := b.Execute()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pages)
}

func serve(eng *engine.Engine, cfg config.Config, logger *slog.Logger) error {
	srv := server.NewServer(eng, cfg.HTTP.Addr, cfg.HTTP.AuthToken, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(shutdownChan)

	select {
	case err := <-errCh:
		return err
	case sig := <-shutdownChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
