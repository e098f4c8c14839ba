package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/goliatone/go-deck-export/adapters/chromium"
	deckhttp "github.com/goliatone/go-deck-export/adapters/http"
	deckpdf "github.com/goliatone/go-deck-export/adapters/pdf"
	storefs "github.com/goliatone/go-deck-export/adapters/store/fs"
	trackerbun "github.com/goliatone/go-deck-export/adapters/tracker/bun"
	"github.com/goliatone/go-deck-export/adapters/viewer"
	"github.com/goliatone/go-deck-export/deck"
	"github.com/goliatone/go-deck-export/internal/config"
	"github.com/goliatone/go-deck-export/internal/logging"
	"github.com/uptrace/bun"
)

// App wires the export service, HTTP routes and their backing stores.
type App struct {
	Config   config.Config
	Logger   *logging.Logger
	Service  *deck.Service
	Exporter *deck.Exporter
	HTTP     *fiber.App

	browser *chromium.Browser
	db      *bun.DB
}

// NewApp builds the application. A nil opener launches a shared Chromium.
func NewApp(ctx context.Context, cfg config.Config, logger *logging.Logger, opener deck.SurfaceOpener) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	if opener == nil {
		app.browser = newBrowser(cfg, logger)
		opener = app.browser
	}

	catalog := deck.NewCatalog(cfg.Frontend.BaseURL)
	for _, p := range cfg.Presentations {
		if err := catalog.Register(p); err != nil {
			app.Close()
			return nil, fmt.Errorf("presentation %q: %w", p.ID, err)
		}
	}

	var tracker deck.JobTracker = deck.NewMemoryTracker()
	if cfg.Export.Tracker == "sqlite" {
		db, err := trackerbun.OpenSQLite(ctx, cfg.Export.SQLiteDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open job database: %w", err)
		}
		app.db = db
		tracker = trackerbun.NewTracker(db)
	}

	app.Exporter = newExporter(cfg, logger)
	app.Service = deck.NewService(deck.ServiceConfig{
		Catalog:  catalog,
		Exporter: app.Exporter,
		Opener:   opener,
		Tracker:  tracker,
		Store:    storefs.NewStore(cfg.Export.ArtifactDir),
		Logger:   logger,
		Scale:    cfg.Export.Scale,
		MaxAge:   cfg.Export.MaxAge,
	})

	app.HTTP = fiber.New(fiber.Config{
		AppName:               "deckpdf " + version,
		DisableStartupMessage: true,
	})
	app.HTTP.Use(recover.New())
	app.HTTP.Use(cors.New())
	app.HTTP.Use(fiberlogger.New(fiberlogger.Config{
		Output: logger.Entry().Writer(),
	}))

	deckhttp.NewHandler(deckhttp.Config{
		Service: app.Service,
		Logger:  logger,
		Version: version,
	}).RegisterRoutes(app.HTTP)

	if cfg.Viewer.Enabled {
		(&viewer.Handler{
			Catalog: catalog,
			Renderer: &viewer.Renderer{
				Theme: viewer.Theme{
					Background: cfg.Viewer.Background,
					Foreground: cfg.Viewer.Foreground,
				},
				TransitionMS: cfg.Viewer.TransitionMS,
			},
		}).RegisterRoutes(app.HTTP)
	}

	return app, nil
}

// RunCleanup removes expired jobs every interval until ctx ends.
func (a *App) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			removed, err := a.Service.Cleanup(ctx, now)
			if err != nil {
				a.Logger.Errorf("job cleanup: %v", err)
				continue
			}
			if removed > 0 {
				a.Logger.Infof("job cleanup removed %d expired exports", removed)
			}
		}
	}
}

// Close releases the browser and job database.
func (a *App) Close() {
	if a.browser != nil {
		_ = a.browser.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil && a.Logger != nil {
			a.Logger.Errorf("close job database: %v", err)
		}
	}
}

func newBrowser(cfg config.Config, logger *logging.Logger) *chromium.Browser {
	browser := chromium.NewBrowser()
	browser.BrowserPath = cfg.Browser.Path
	browser.Headless = cfg.Browser.Headless
	browser.Args = cfg.Browser.Args
	browser.ViewportWidth = cfg.Browser.ViewportWidth
	browser.ViewportHeight = cfg.Browser.ViewportHeight
	browser.RootSelectors = cfg.Browser.RootSelectors
	browser.LoadTimeout = cfg.Browser.LoadTimeout
	browser.Logger = logger.With("component", "chromium")
	return browser
}

func newExporter(cfg config.Config, logger *logging.Logger) *deck.Exporter {
	exporter := deck.NewExporter(deckpdf.Factory(deckpdf.Options{
		Encoding:    deckpdf.Encoding(cfg.Export.Encoding),
		JPEGQuality: cfg.Export.JPEGQuality,
	}))
	exporter.FirstSettle = cfg.Export.FirstSettle
	exporter.SlideSettle = cfg.Export.SlideSettle
	exporter.Timeout = cfg.Export.Timeout
	exporter.Logger = logger.With("component", "exporter")
	exporter.Emitter = logger.Events()
	return exporter
}
