// Package main provides the geoassist entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/richinex/geoassist/cli"
	"github.com/richinex/geoassist/config"
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "geoassist",
		Short: "Chat assistant for geospatial analysis and document questions",
		Long: `A chat assistant that runs geospatial analyses over a user's selected region
and answers questions from reference documents.

Each chat turn is checked against the user's request quota, then runs a
streaming completion loop with four tools: RunAnalysis, AnswerFromDocuments,
DraftReport and ListLayerNames.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(usersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				settings.Server.Addr = addr
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       settings.LogLevel,
				ReplaceAttr: config.ReplaceLogLevelNames,
			}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return cli.Serve(ctx, settings, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides HTTP_ADDR)")

	return cmd
}

func toolsCmd() *cobra.Command {
	var verboseTools bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools declared to the model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.ListTools(cmd.OutOrStdout(), verboseTools)
		},
	}

	cmd.Flags().BoolVarP(&verboseTools, "verbose", "V", false, "Show tool parameters")

	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users and API tokens",
	}

	var opts cli.UserOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Create or update a user and print a new API token",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.Load()
			if err != nil {
				return err
			}
			return cli.AddUser(cmd.Context(), cmd.OutOrStdout(), settings, opts)
		},
	}
	add.Flags().StringVar(&opts.ID, "id", "", "User id (default: random UUID)")
	add.Flags().StringVar(&opts.Role, "role", "analyst", "Role in the quota policy")
	add.Flags().StringVar(&opts.Tier, "tier", "free", "Subscription tier in the quota policy")

	cmd.AddCommand(add)
	return cmd
}
