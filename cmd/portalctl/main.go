// Command portalctl runs one-off operations against the establishment
// database: migrations, the legacy affiliation copy, claim reconciliation,
// directory imports and invitation issuance.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jwalitptl/establishment-api/internal/app"
	"github.com/jwalitptl/establishment-api/internal/config"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

var configFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operate the establishment directory",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("PORTAL_CONFIG_FILE"), "path to config.yml")

	root.AddCommand(
		newMigrateCmd(),
		newMigrateAffiliationsCmd(),
		newReconcileCmd(),
		newImportCmd(),
		newIssueInvitationCmd(),
		newTokenCmd(),
	)
	return root
}

// withApp loads configuration, builds the application and hands it to fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	logCfg := cfg.Log.ToLoggerConfig()
	logCfg.Console = true
	logCfg.Output = cmd.ErrOrStderr()
	log := logger.NewLogger(&logCfg)

	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	defer a.Close()

	return fn(cmd.Context(), a)
}
