package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/proposal-cli/internal/pipeline"
)

var (
	runMinuteID string
	runTenantID string
	runUserID   string
	runEvents   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate a proposal for a single minute",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		req := pipeline.Request{
			TenantID: runTenantID,
			UserID:   runUserID,
			MinuteID: runMinuteID,
		}

		if runEvents {
			return streamToStdout(ctx, env.Pipeline, req)
		}

		result, err := env.Pipeline.Generate(ctx, req)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("proposal generated",
			zap.String("minute_id", req.MinuteID),
			zap.String("run_id", result.RunID),
			zap.String("status", string(result.Status)),
			zap.Int64("total_duration_ms", result.TotalDurationMS),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// streamToStdout prints every pipeline event as one JSON line.
func streamToStdout(ctx context.Context, p *pipeline.Pipeline, req pipeline.Request) error {
	enc := json.NewEncoder(os.Stdout)

	var failed *pipeline.Event
	for ev := range p.Stream(ctx, req) {
		if err := enc.Encode(ev); err != nil {
			return eris.Wrap(err, "encode event")
		}
		if ev.Type == pipeline.EventError {
			e := ev
			failed = &e
		}
	}

	if failed != nil {
		return fmt.Errorf("pipeline failed: %s", failed.Message)
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runMinuteID, "minute", "", "minute ID (required)")
	runCmd.Flags().StringVar(&runTenantID, "tenant", "", "tenant ID (required)")
	runCmd.Flags().StringVar(&runUserID, "user", "", "requesting user ID")
	runCmd.Flags().BoolVar(&runEvents, "events", false, "print progress events as JSON lines instead of the final result")
	_ = runCmd.MarkFlagRequired("minute")
	_ = runCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(runCmd)
}
