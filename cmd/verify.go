package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gravi-labs/retail-verify/internal/model"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <maps-url>",
	Short: "Verify a single store listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		outcome := env.Orchestrator.Run(ctx, args[0])

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		if outcome.Status == model.StatusFailed {
			if err := enc.Encode(map[string]any{
				"analysis_session_id": outcome.SessionID,
				"verification_status": outcome.Status,
				"reason":              outcome.Reason,
			}); err != nil {
				return eris.Wrap(err, "encode outcome")
			}
			return eris.Errorf("verification failed: %s", outcome.Reason)
		}

		zap.L().Info("verification succeeded",
			zap.String("session_id", outcome.SessionID))
		return eris.Wrap(enc.Encode(outcome.Record.V2), "encode record")
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
