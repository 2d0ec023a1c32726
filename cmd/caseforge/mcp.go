package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	Long:  `Serve the MCP tool set over stdin/stdout for agent hosts that launch CaseForge as a subprocess. Logs go to stderr.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMCPStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCPStdio(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(os.Stderr)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	slog.Info("mcp stdio server starting", "name", cfg.MCP.Name)
	err = a.mcpServer().ServeStdio(ctx, os.Stdin, os.Stdout)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
