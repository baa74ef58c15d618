package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"videoscribe/internal/batch"
	"videoscribe/internal/logging"
)

var batchCmd = &cobra.Command{
	Use:   "batch [URL]",
	Short: "Transcribe every video of a playlist, favorites folder, series or creator",
	Example: `  videoscribe batch "https://space.bilibili.com/12345/favlist?fid=67890"
  videoscribe batch https://www.youtube.com/@somechannel --limit 20
  videoscribe batch "https://www.youtube.com/playlist?list=PL123" --max-workers 8`,
	Args: exactlyOneReference,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		limit, _ := flags.GetInt("limit")
		if limit < 0 {
			return usageError{fmt.Errorf("invalid --limit %d", limit)}
		}
		if flags.Changed("max-workers") {
			cfg.MaxWorkers, _ = flags.GetInt("max-workers")
		}
		if noConcurrent, _ := flags.GetBool("no-concurrent"); noConcurrent {
			cfg.Concurrent = false
		}

		proc, cleanup, err := newProcessor(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		opts := pipelineOptions(cfg, logging.Writer(cmd.ErrOrStderr()))
		opts.Limit = limit

		res, err := proc.ResolveAndBatch(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		return printSummary(cmd.OutOrStdout(), res)
	},
}

func init() {
	flags := batchCmd.Flags()
	flags.Int("limit", 0, "Process at most this many videos (0 means all)")
	flags.Int("max-workers", batch.DefaultWorkers, fmt.Sprintf("Concurrent videos, capped at %d", batch.MaxWorkers))
	flags.Bool("no-concurrent", false, "Process videos one at a time")
	rootCmd.AddCommand(batchCmd)
}
