// Package cmd defines the CLI commands for the worldstat executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/app"
	"github.com/atlasforge/worldstat-crawler/internal/clock"
	"github.com/atlasforge/worldstat-crawler/internal/config"
	"github.com/atlasforge/worldstat-crawler/internal/dataset"
	"github.com/atlasforge/worldstat-crawler/internal/merge"
	"github.com/atlasforge/worldstat-crawler/internal/source"
)

var cfgFile string

// appKeyType is the key for storing the App in the command context.
type appKeyType string

const appKey appKeyType = "app"

// App is the service surface the commands use. An interface so tests can
// inject a stub container.
type App interface {
	Close()
	GetConfig() config.Config
	GetLogger() *zap.Logger
	GetSources() *source.Registry
	GetMerger() *merge.Merger
	GetDataset() *dataset.Manager
	GetClock() clock.Clock
}

// newApp is the application factory, replaceable in tests.
var newApp = func() (App, error) {
	return app.New(cfgFile)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worldstat",
		Short: "Country statistics crawler and aggregation service",
		Long: `worldstat collects per-country economic and resource statistics
(GDP, oil, grain, minerals, central bank gold reserves) from public
sources, merges them into one canonical dataset and serves it over HTTP.`,

		// Runs after flags are parsed but before the subcommand's RunE, so
		// every subcommand sees a fully built service container.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp()
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, appInstance)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults plus WORLDSTAT_* environment)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newMergeCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "worldstat: %v\n", err)
		os.Exit(1)
	}
}
