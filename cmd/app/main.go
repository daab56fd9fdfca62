package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mnemo/internal"
	pkgconfig "github.com/starford/mnemo/pkg/config"
)

var version = "dev"

// loadConfig reads the config file when present, applies flag overrides
// and validates the result.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if v := cmd.String("vault"); v != "" {
		cfg.Vault.Path = v
	}
	if v := cmd.String("neo4j-uri"); v != "" {
		cfg.Graph.URI = v
	}
	if v := cmd.String("ollama-host"); v != "" {
		cfg.Inference.Host = v
	}
	if v := cmd.String("log-level"); v != "" {
		if err := cfg.App.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", v, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func build(cmd *cli.Command) (*internal.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return internal.Build(cfg, internal.NewLogger(cfg.App.LogLevel), version)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func listTools(_ context.Context, cmd *cli.Command) error {
	app, err := build(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	return printJSON(app.Registry.List())
}

func checkHealth(ctx context.Context, cmd *cli.Command) error {
	app, err := build(cmd)
	if err != nil {
		return err
	}
	defer app.Close()

	rep := app.Health.Run(ctx)
	if err := printJSON(rep); err != nil {
		return err
	}
	if rep.Status != "ok" {
		return fmt.Errorf("health status %s", rep.Status)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "mnemo",
		Usage:   "MCP server combining a knowledge graph, a Markdown vault and local model inference",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "vault",
				Usage:   "Markdown vault directory",
				Sources: cli.EnvVars("MNEMO_VAULT_PATH"),
			},
			&cli.StringFlag{
				Name:    "neo4j-uri",
				Usage:   "Neo4j bolt URI",
				Sources: cli.EnvVars("NEO4J_URI"),
			},
			&cli.StringFlag{
				Name:    "ollama-host",
				Usage:   "Ollama host, optionally with scheme and port",
				Sources: cli.EnvVars("OLLAMA_HOST"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve MCP over stdio (default)",
				Action: serve,
			},
			{
				Name:   "tools",
				Usage:  "Print the tool catalogue as JSON",
				Action: listTools,
			},
			{
				Name:   "health",
				Usage:  "Check backend reachability once and print the result",
				Action: checkHealth,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
