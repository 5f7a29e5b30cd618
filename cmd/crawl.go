package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/api"
	"github.com/atlasforge/worldstat-crawler/internal/metrics"
	"github.com/atlasforge/worldstat-crawler/internal/source"
)

func newCrawlCmd() *cobra.Command {
	var sourceName string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one source, or all sources followed by a merge",
		Long: `Fetches the selected source and writes its intermediate snapshot.
With --source all (the default) every source is crawled and the merged
dataset is regenerated afterwards.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runCrawl(cmd, appInstance, sourceName)
		},
	}
	cmd.Flags().StringVar(&sourceName, "source", api.ScopeAll, "source to crawl (gdp, oil, agriculture, minerals, gold_reserves, all)")
	return cmd
}

func runCrawl(cmd *cobra.Command, appInstance App, sourceName string) error {
	logger := appInstance.GetLogger()
	sources := appInstance.GetSources()

	var targets []source.Source
	if sourceName == api.ScopeAll {
		targets = sources.All()
	} else {
		src, ok := sources.Get(sourceName)
		if !ok {
			return fmt.Errorf("unknown source %q (known: %v)", sourceName, sources.Names())
		}
		targets = []source.Source{src}
	}

	var failed []string
	for _, src := range targets {
		start := time.Now()
		err := src.Crawl(cmd.Context())
		outcome := "ok"
		if err != nil {
			outcome = "error"
			failed = append(failed, src.Name())
			logger.Warn("source crawl failed", zap.String("source", src.Name()), zap.Error(err))
		} else {
			logger.Info("source crawled", zap.String("source", src.Name()))
		}
		metrics.ObserveCrawl(src.Name(), outcome, time.Since(start))
	}

	if len(failed) == len(targets) {
		return fmt.Errorf("all sources failed: %v", failed)
	}

	if sourceName == api.ScopeAll {
		start := time.Now()
		snap, err := appInstance.GetMerger().MergeAll()
		if err != nil {
			metrics.ObserveMerge("error", 0, time.Since(start))
			return fmt.Errorf("merge after crawl: %w", err)
		}
		metrics.ObserveMerge("ok", len(snap.Countries), time.Since(start))
		logger.Info("crawl finished",
			zap.Int("countries", len(snap.Countries)),
			zap.Strings("failed_sources", failed),
		)
	}
	return nil
}
