package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/atlasforge/worldstat-crawler/internal/metrics"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge",
		Short: "Rebuild the merged dataset from the existing snapshots",
		Long: `Reads the latest intermediate snapshot of every source and rewrites
the canonical merged dataset. No crawling happens; missing snapshots are
skipped.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			start := time.Now()
			snap, err := appInstance.GetMerger().MergeAll()
			if err != nil {
				metrics.ObserveMerge("error", 0, time.Since(start))
				return fmt.Errorf("merge: %w", err)
			}
			metrics.ObserveMerge("ok", len(snap.Countries), time.Since(start))

			appInstance.GetLogger().Info("merge finished",
				zap.String("path", appInstance.GetMerger().Path()),
				zap.Int("countries", len(snap.Countries)),
				zap.String("last_crawl", snap.Metadata.LastCrawl),
			)
			return nil
		},
	}
}
