// Command caseforge runs the CaseForge test management service and its
// operator commands.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	cfhttp "github.com/Strob0t/CaseForge/internal/adapter/http"
	"github.com/Strob0t/CaseForge/internal/adapter/postgres"
	"github.com/Strob0t/CaseForge/internal/adapter/sqlite"
	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/logger"
	"github.com/Strob0t/CaseForge/internal/port/database"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:           "caseforge",
	Short:         "Healthcare test case management service",
	Long:          `CaseForge stores project → epic → feature → use case → test case hierarchies and serves them over REST and MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default $CASEFORGE_CONFIG or caseforge.yaml)")
	cfhttp.Version = version
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and installs the default logger writing
// to w. The mcp command passes stderr so stdout stays a clean transport.
func loadConfig(w io.Writer) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger.New(cfg.Logging, w))
	return cfg, nil
}

// openStore connects the configured backend and applies migrations.
func openStore(ctx context.Context, cfg *config.Config) (database.Store, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected", "max_conns", cfg.Postgres.MaxConns)
		return postgres.NewStore(pool), nil
	default:
		db, err := sqlite.Open(ctx, cfg.Storage.DataDir)
		if err != nil {
			return nil, err
		}
		slog.Info("sqlite opened", "data_dir", cfg.Storage.DataDir)
		return sqlite.NewStore(db), nil
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("caseforge %s\n", version)
	},
}
