// Package ui is the croplens command line.
package ui

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jwillz7667/CropLens/internal/properties"
	"github.com/spf13/cobra"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfg   properties.Config
	dbURL string
	owner string
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "croplens",
		Short:         "NDVI crop health analysis",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = properties.Load()
			if dbURL != "" {
				cfg.DatabaseURL = dbURL
			}
		},
	}
	cmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string (default: DATABASE_URL or POSTGRES_* variables)")
	cmd.PersistentFlags().StringVar(&owner, "owner", "demo-owner", "Owner the fields belong to")

	cmd.AddCommand(
		newComputeCmd(),
		newFieldsCmd(),
		newAnalyzeCmd(),
		newAnalyzeAllCmd(),
		newInsightsCmd(),
		newExportCmd(),
		newTimelapseCmd(),
		newServeCmd(),
		newTokenCmd(),
	)
	return cmd
}

// Execute runs the command tree until it returns or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(err.Error())
		return err
	}
	return nil
}

// withServices opens the database and collaborators for the duration of fn.
func withServices(cmd *cobra.Command, fn func(s *services) error) error {
	s, err := openServices(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer s.Close()
	return fn(s)
}
