package ingestion

import (
	"errors"

	"github.com/fundtrail/fundtrail/services/funding/config"
	"github.com/opengovern/og-util/pkg/koanf"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func WorkerCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return errors.New("missing required flag 'id'")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}

			cmd.SilenceUsage = true
			cnf := koanf.Provide("ingest_worker", config.WorkerConfig{})

			w, err := NewWorker(cmd.Context(), id, logger, cnf)
			if err != nil {
				return err
			}

			defer w.Stop()

			return w.Run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "The worker id")

	return cmd
}
