// Package main is the entry point for the hoverselect terminal map.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/dshills/hoverselect/internal/config"
	"github.com/dshills/hoverselect/internal/crs"
	"github.com/dshills/hoverselect/internal/geom"
	"github.com/dshills/hoverselect/internal/host"
	"github.com/dshills/hoverselect/internal/host/memhost"
	"github.com/dshills/hoverselect/internal/layerio"
	"github.com/dshills/hoverselect/internal/logging"
	"github.com/dshills/hoverselect/internal/plugin"
	"github.com/dshills/hoverselect/internal/tui"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// fitMargin leaves some room around the layers when the view is fitted.
const fitMargin = 1.1

type options struct {
	SettingsPath string
	ScriptPath   string
	ExportPath   string
	ProjectCRS   string
	LogLevel     string
	LogFile      string
	Files        []string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	logger, closeLog, err := openLogger(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeLog()

	project := crs.New(opts.ProjectCRS)
	if !project.IsValid() {
		fmt.Fprintf(os.Stderr, "Error: invalid project CRS %q\n", opts.ProjectCRS)
		return 1
	}
	registry := crs.NewRegistry()
	if !registry.Known(project) {
		fmt.Fprintf(os.Stderr, "Error: unsupported project CRS %s (known: %v)\n", project, registry.Codes())
		return 1
	}

	h := memhost.New(project)
	for _, path := range opts.Files {
		layer, err := layerio.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if _, err := h.Store.AddLayer(memhost.LayerSpec{Name: layer.Name, CRS: layer.CRS, Features: layer.Features}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s: %v\n", path, err)
			return 1
		}
		logger.Info("loaded layer %s: %d features (%s)", layer.Name, len(layer.Features), layer.CRS)
	}

	popts := plugin.Options{ScriptPath: opts.ScriptPath, Logger: logger}
	if opts.SettingsPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.SettingsPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "Error: settings directory: %v\n", err)
			return 1
		}
		popts.Repository = config.NewFileRepository(opts.SettingsPath, logger)
		popts.SettingsPath = opts.SettingsPath
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create terminal: %v\n", err)
		return 1
	}
	app, err := tui.New(screen, h, tui.Options{
		Plugin:     popts,
		Registry:   registry,
		ExportPath: opts.ExportPath,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("saving settings: %v", err)
		}
	}()

	fitView(h, registry, logger)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	done := make(chan struct{})
	defer close(done)
	go watchSignals(signals, done, func() { _ = app.Close() })

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// watchSignals calls stop on the first signal. It returns without calling
// stop once done is closed.
func watchSignals(signals <-chan os.Signal, done <-chan struct{}, stop func()) {
	select {
	case <-signals:
		stop()
	case <-done:
	}
}

// fitView centres the canvas on the loaded layers and picks a scale that
// shows all of them.
func fitView(h *memhost.Host, registry *crs.Registry, logger *logging.Logger) {
	project := h.Canvas.ProjectCRS()
	bounds := geom.EmptyRect()
	for _, info := range h.Store.Layers() {
		if info.Kind != host.LayerVector {
			continue
		}
		layerBounds := geom.EmptyRect()
		_ = h.Store.Features(info.ID, nil, func(f host.Feature) bool {
			if !f.Geometry.IsEmpty() {
				layerBounds = layerBounds.Union(f.Geometry.Bounds())
			}
			return true
		})
		if layerBounds.IsEmpty() {
			continue
		}
		r, err := registry.TransformRect(layerBounds, info.CRS, project)
		if err != nil {
			logger.Warn("layer %s is not shown in the initial view: %v", info.Name, err)
			continue
		}
		bounds = bounds.Union(r)
	}
	if bounds.IsEmpty() {
		return
	}

	w, ht := h.Canvas.Size()
	if w <= 0 || ht <= 0 {
		return
	}
	scale := max(bounds.Width()/float64(w), bounds.Height()/float64(ht)) * fitMargin
	h.Canvas.CenterOn(bounds.Center())
	if scale > 0 {
		h.Canvas.SetScale(scale)
	}
}

func openLogger(opts options) (*logging.Logger, func(), error) {
	cfg := logging.Config{
		Level:  logging.ParseLevel(opts.LogLevel),
		Output: io.Discard,
		Prefix: "hoverselect",
	}
	closeFn := func() {}
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		cfg.Output = f
		closeFn = func() { f.Close() }
	}
	return logging.New(cfg), closeFn, nil
}

func defaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "hoverselect", "settings.toml")
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.SettingsPath, "settings", defaultSettingsPath(), "Settings file (.toml, .yaml or .yml); empty keeps settings in memory")
	flag.StringVar(&opts.ScriptPath, "script", "", "Lua hook script")
	flag.StringVar(&opts.ExportPath, "export", "selection.json", "Selection report written by the export key")
	flag.StringVar(&opts.ProjectCRS, "crs", crs.CodeWebMercator, "Project CRS")
	flag.StringVar(&opts.LogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write the log to this file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hoverselect - select map features by hovering\n\n")
		fmt.Fprintf(os.Stderr, "Usage: hoverselect [options] [layer.geojson...]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  hoverselect parcels.geojson roads.geojson\n")
		fmt.Fprintf(os.Stderr, "  hoverselect -settings ./hover.yaml -log-file hover.log parcels.geojson\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("hoverselect %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.LogLevel)
		os.Exit(1)
	}

	opts.Files = flag.Args()
	return opts
}
