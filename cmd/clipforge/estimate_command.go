package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipforge/internal/estimate"
	"clipforge/internal/jobs"
)

// newEstimateCommand prints the deadline the daemon would assign, computed
// locally from the configured estimator weights.
func newEstimateCommand(ctx *commandContext) *cobra.Command {
	var (
		exports  exportFlags
		duration float64
		size     int64
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Show the processing budget for a prospective job",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			parsed, err := exports.exports()
			if err != nil {
				return err
			}
			if len(parsed) == 0 {
				return errors.New("at least one export is required (--cut, --preview, --still, --loop)")
			}
			opts := jobs.ProcessingOptions{Exports: parsed}
			if err := opts.Validate(duration); err != nil {
				return err
			}

			job := &jobs.Job{
				SourceDurationSeconds: duration,
				SourceSizeBytes:       size,
				Options:               opts,
				Operations:            opts.Operations(),
			}
			breakdown := estimate.New(cfg.Estimator).ForJob(job)
			if asJSON {
				return writeJSON(cmd, map[string]any{
					"operations":        len(job.Operations),
					"operation_seconds": breakdown.OperationSeconds,
					"media_seconds":     breakdown.MediaSeconds,
					"size_seconds":      breakdown.SizeSeconds,
					"score":             breakdown.Score,
					"budget_seconds":    breakdown.Budget.Seconds(),
					"clamped":           breakdown.Clamped,
				})
			}
			fmt.Fprint(cmd.OutOrStdout(), renderFields([][2]string{
				{"Operations", strconv.Itoa(len(job.Operations))},
				{"Operation cost", formatSeconds(breakdown.OperationSeconds)},
				{"Media cost", formatSeconds(breakdown.MediaSeconds)},
				{"Size surcharge", formatSeconds(breakdown.SizeSeconds)},
				{"Budget", breakdown.Budget.String()},
				{"Clamped to", breakdown.Clamped},
			}))
			return nil
		},
	}

	cmd.Flags().Float64Var(&duration, "duration", 0, "Source duration in seconds")
	cmd.Flags().Int64Var(&size, "size", 0, "Source size in bytes")
	cmd.Flags().StringArrayVar(&exports.cuts, "cut", nil, "Cut START:END seconds (repeatable)")
	cmd.Flags().StringArrayVar(&exports.previews, "preview", nil, "Animated preview START:DURATION[:FPS[:WIDTH]] (repeatable)")
	cmd.Flags().StringArrayVar(&exports.stills, "still", nil, "Still frame AT[:WIDTH] (repeatable)")
	cmd.Flags().StringArrayVar(&exports.loops, "loop", nil, "Loop START:DURATION:COUNT (repeatable)")
	addJSONFlag(cmd, &asJSON)
	return cmd
}
