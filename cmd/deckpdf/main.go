// Command deckpdf exports slide decks to PDF from the command line or over HTTP.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	deckpdf "github.com/goliatone/go-deck-export/adapters/pdf"
	"github.com/goliatone/go-deck-export/deck"
	"github.com/goliatone/go-deck-export/internal/config"
	"github.com/goliatone/go-deck-export/internal/logging"
	"github.com/schollz/progressbar/v3"
)

var version = "dev"

type globals struct {
	Config   string `kong:"name='config',short='c',type='path',help='Path to a YAML config file'"`
	LogLevel string `kong:"name='log-level',help='Override the configured log level'"`
}

type cli struct {
	globals

	Export  exportCmd        `kong:"cmd,help='Export a slide deck URL to a PDF file'"`
	Serve   serveCmd         `kong:"cmd,help='Run the export HTTP API and deck viewer'"`
	Inspect inspectCmd       `kong:"cmd,help='Print the page count of a PDF'"`
	Version kong.VersionFlag `kong:"name='version',help='Print version and exit'"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var c cli
	kctx := kong.Parse(&c,
		kong.Name("deckpdf"),
		kong.Description("Capture every slide of a deck into a landscape PDF."),
		kong.UsageOnError(),
		kong.Vars{"version": version},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	err := kctx.Run(&c.globals)
	kctx.FatalIfErrorf(err)
}

func (g *globals) load() (config.Config, *logging.Logger, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return config.Config{}, nil, err
	}
	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

type exportCmd struct {
	URL    string  `kong:"name='url',required,help='URL of the mounted slide deck'"`
	Title  string  `kong:"name='title',required,help='Deck title, used for the file name'"`
	Slides int     `kong:"name='slides',required,help='Number of slides reachable by navigation'"`
	Scale  float64 `kong:"name='scale',help='Capture sampling multiplier (default from config)'"`
	Out    string  `kong:"name='out',short='o',default='.',type='path',help='Output directory'"`
	Quiet  bool    `kong:"name='quiet',short='q',help='Hide the progress bar'"`
}

func (cmd *exportCmd) Run(ctx context.Context, g *globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	if cmd.Scale > 0 {
		cfg.Export.Scale = cmd.Scale
	}

	browser := newBrowser(cfg, logger)
	defer browser.Close()

	var bar *progressbar.ProgressBar
	if !cmd.Quiet {
		bar = newProgressBar(cmd.Title, os.Stderr)
	}

	path, result, err := exportToFile(ctx, browser, newExporter(cfg, logger), exportRequest{
		URL:    cmd.URL,
		Title:  cmd.Title,
		Slides: cmd.Slides,
		Scale:  cfg.Export.Scale,
		OutDir: cmd.Out,
	}, progressSink(bar))
	if err != nil {
		if bar != nil {
			_ = bar.Clear()
		}
		return err
	}

	fmt.Printf("%s (%d pages", path, result.Pages)
	if len(result.Skipped) > 0 {
		fmt.Printf(", skipped slides %v", result.Skipped)
	}
	fmt.Printf(", %s)\n", result.Duration.Round(time.Millisecond))
	return nil
}

type exportRequest struct {
	URL    string
	Title  string
	Slides int
	Scale  float64
	OutDir string
}

// exportToFile runs one export and writes the document into req.OutDir.
// Nothing is written when the export fails.
func exportToFile(ctx context.Context, opener deck.SurfaceOpener, exporter *deck.Exporter, req exportRequest, progress deck.ProgressFunc) (string, deck.ExportResult, error) {
	if req.Slides <= 0 {
		return "", deck.ExportResult{}, deck.NewError(deck.KindInvalidInput, "slides must be positive", nil)
	}
	surface, err := opener.Open(ctx, req.URL)
	if err != nil {
		return "", deck.ExportResult{}, err
	}
	if closer, ok := surface.(io.Closer); ok {
		defer closer.Close()
	}

	var buf bytes.Buffer
	result, err := exporter.Export(ctx, surface, deck.ExportOptions{
		Title:       req.Title,
		TotalSlides: req.Slides,
		Scale:       req.Scale,
		OnProgress:  progress,
		Output:      &buf,
	})
	if err != nil {
		return "", result, err
	}

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return "", result, err
	}
	path := filepath.Join(req.OutDir, result.Filename)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", result, deck.NewError(deck.KindSerialization, "failed to write document", err)
	}
	return path, result, nil
}

func newProgressBar(title string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Exporting "+title),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}

// progressSink mirrors export progress onto bar. A nil bar discards updates.
func progressSink(bar *progressbar.ProgressBar) deck.ProgressFunc {
	return func(percent int) {
		if bar == nil {
			return
		}
		_ = bar.Set(percent)
	}
}

type serveCmd struct {
	Addr string `kong:"name='addr',help='Listen address (default from config)'"`
}

func (cmd *serveCmd) Run(ctx context.Context, g *globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}

	app, err := NewApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	go app.RunCleanup(ctx, cfg.Export.CleanupInterval)

	addr := cmd.Addr
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on http://%s (%d presentations)", addr, len(cfg.Presentations))
		errCh <- app.HTTP.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	if err := app.HTTP.Shutdown(); err != nil {
		return err
	}
	return <-errCh
}

type inspectCmd struct {
	File string `kong:"arg,type='existingfile',help='PDF file to inspect'"`
}

func (cmd *inspectCmd) Run() error {
	f, err := os.Open(cmd.File)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := deckpdf.Inspect(f)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d pages\n", cmd.File, info.Pages)
	return nil
}
