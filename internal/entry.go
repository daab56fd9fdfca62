// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/graph/cypher"
	"github.com/starford/mnemo/internal/graph/sqlite"
	"github.com/starford/mnemo/internal/health"
	"github.com/starford/mnemo/internal/inference"
	"github.com/starford/mnemo/internal/mcpserver"
	"github.com/starford/mnemo/internal/memory"
	"github.com/starford/mnemo/internal/notes"
	"github.com/starford/mnemo/internal/registry"
	"github.com/starford/mnemo/internal/storage"
	"github.com/starford/mnemo/internal/tools"
)

// Name is the server name reported to MCP clients.
const Name = "mnemo"

const shutdownTimeout = 10 * time.Second

// NewLogger returns a JSON logger on stderr. Stdout carries the protocol.
func NewLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// App holds the wired components.
type App struct {
	Registry *registry.Registry
	Health   *health.Checker
	Server   *mcpserver.Server

	graph graph.Store
	log   *slog.Logger
}

// Build wires storage, backends, tool providers and the dispatch server
// from cfg. Backends are not contacted; unreachable services surface on
// first use and in the health document.
func Build(cfg *Config, logger *slog.Logger, version string) (*App, error) {
	if logger == nil {
		logger = NewLogger(cfg.App.LogLevel)
	}

	if err := os.MkdirAll(cfg.Vault.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create vault dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	noteSvc := notes.NewService(store)

	app := &App{log: logger}
	checker := health.NewChecker(logger)
	checker.Add("vault", func(context.Context) (string, error) {
		info, err := os.Stat(store.Root())
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", store.Root())
		}
		return store.Root(), nil
	})

	providers := []registry.Provider{tools.NewNotes(noteSvc)}

	if cfg.Graph.Enabled {
		g, err := openGraph(cfg.Graph)
		if err != nil {
			return nil, err
		}
		app.graph = g
		checker.Add("graph", func(ctx context.Context) (string, error) {
			return cfg.Graph.Driver, g.Ping(ctx)
		})
		providers = append(providers, tools.NewGraph(g, cfg.Graph.QueryLanguage()))
	} else {
		checker.Disabled("graph")
	}

	if cfg.Inference.Enabled {
		client := inference.New(inference.Config{
			Host:               cfg.Inference.Host,
			Port:               cfg.Inference.Port,
			DefaultModel:       cfg.Inference.DefaultModel,
			EmbedModel:         cfg.Inference.EmbedModel,
			BreakerMaxFailures: cfg.Inference.Breaker.MaxFailures,
			BreakerOpenTimeout: cfg.Inference.Breaker.OpenTimeout,
		})
		checker.Add("inference", func(ctx context.Context) (string, error) {
			v, err := client.Version(ctx)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (breaker %s)", v, client.BreakerState()), nil
		})
		providers = append(providers, tools.NewInference(client, logger))
	} else {
		checker.Disabled("inference")
	}

	if app.graph != nil {
		providers = append(providers, tools.NewMemory(memory.New(app.graph, noteSvc, logger)))
	}

	reg, err := registry.New(providers, registry.WithValidation(cfg.Tools.ValidateArguments))
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}

	app.Registry = reg
	app.Health = checker
	app.Server = mcpserver.New(mcpserver.Deps{
		Name:          Name,
		Version:       version,
		Registry:      reg,
		Health:        checker,
		ConfigSummary: cfg.Summary(),
		Logger:        logger,
	})
	return app, nil
}

func openGraph(cfg GraphConfig) (graph.Store, error) {
	switch cfg.Driver {
	case GraphDriverSQLite:
		g, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open graph: %w", err)
		}
		return g, nil
	default:
		g, err := cypher.New(cypher.Config{
			URI:      cfg.URI,
			Username: cfg.Username,
			Password: cfg.Password,
			Database: cfg.Database,
		})
		if err != nil {
			return nil, fmt.Errorf("open graph: %w", err)
		}
		return g, nil
	}
}

// Close releases the graph backend.
func (a *App) Close() {
	if a.graph == nil {
		return
	}
	if err := a.graph.Close(); err != nil {
		a.log.Error("graph close error", slog.String("error", err.Error()))
	}
}

func (a *App) healthRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		rep := a.Health.Run(r.Context())
		status := http.StatusOK
		if rep.Status == health.StatusDown {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(rep)
	})
	return r
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{in: os.Stdin, out: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = NewLogger(cfg.App.LogLevel)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.Bool("graph_enabled", cfg.Graph.Enabled),
		slog.String("graph_driver", cfg.Graph.Driver),
		slog.Bool("inference_enabled", cfg.Inference.Enabled),
		slog.Bool("validate_arguments", cfg.Tools.ValidateArguments),
		slog.String("log_level", cfg.App.LogLevel.String()))

	built, err := Build(cfg, logger, app.version)
	if err != nil {
		return err
	}
	defer built.Close()

	logger.Info("Server starting...", slog.Int("tools", built.Registry.Len()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// The stdio session ends the process when the client closes stdin.
	g.Go(func() error {
		defer cancel()
		err := built.Server.Serve(gCtx, app.in, app.out)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("stdio server error: %w", err)
		}
		return nil
	})

	if cfg.App.HTTP.Enabled {
		httpServer := &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: built.healthRouter(),
		}
		g.Go(func() error {
			logger.Info("Starting health listener", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
			cancel()
		case <-gCtx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
