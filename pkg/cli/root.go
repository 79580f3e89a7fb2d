// Package cli implements the querydeck command line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"querydeck/internal/config"
	"querydeck/internal/engine"
	"querydeck/internal/server"
	"querydeck/internal/sqlexpr"
	"querydeck/internal/tablequery"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "querydeck",
		Short:         "Analytical query construction and exploration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newDecomposeCmd())
	rootCmd.AddCommand(newBuildCmd())
	return rootCmd
}

func newQueryCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a SQL query against a DuckDB database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := engine.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()

			result, err := engine.New(db).Query(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "path to a DuckDB database (default in-memory)")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: cfg.SlogLevel(),
			}))
			for _, warning := range cfg.Warnings {
				logger.Warn(warning)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.Run(ctx, cfg, logger)
		},
	}
}

func newDecomposeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decompose <expression>",
		Short: "Split a projection expression into formula, cast, and name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			breakdown, err := sqlexpr.DecomposeText(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), breakdown)
		},
	}
}

func newBuildCmd() *cobra.Command {
	var specPath string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the SQL for a table query spec",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := os.ReadFile(specPath)
			if err != nil {
				return err
			}
			var spec tablequery.Spec
			if err := json.Unmarshal(raw, &spec); err != nil {
				return fmt.Errorf("parse spec: %w", err)
			}
			built, err := tablequery.Build(spec)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), built)
		},
	}
	cmd.Flags().StringVarP(&specPath, "spec", "f", "", "path to a JSON table query spec")
	_ = cmd.MarkFlagRequired("spec")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
