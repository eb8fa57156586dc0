package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nbgirder/internal"
	pkgconfig "github.com/starford/nbgirder/pkg/config"
)

var version = "dev"

type runner func(ctx context.Context, opts ...internal.Option) error

// action loads the config named by --config and hands it to run.
func action(run runner) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithVersion(version),
		}

		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "nbgirder",
		Usage:   "Serve a Girder data tree as Jupyter-style notebook contents",
		Version: version,
		Action:  action(internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the contents HTTP API (default)",
				Action: action(internal.Run),
			},
			{
				Name:   "mcp",
				Usage:  "Expose the contents tree as MCP tools over stdio",
				Action: action(internal.RunMCP),
			},
			{
				Name:   "import",
				Usage:  "Upload the configured local directory into the contents tree",
				Action: action(internal.RunImport),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
