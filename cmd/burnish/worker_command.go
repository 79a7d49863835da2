package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"burnish/internal/logging"
	"burnish/internal/upscaler"
	"burnish/internal/worker"
)

// newWorkerCommand is the process the API spawns per job. It is hidden from
// help output because operators are not expected to invoke it directly, but
// it remains usable by hand to re-run a stuck job.
func newWorkerCommand(ctx *commandContext) *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Execute one upscale job to completion",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.NewWorkerLogger(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}

			store, err := ctx.openStore(logger)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}
			client, err := upscaler.New(cfg)
			if err != nil {
				return fmt.Errorf("build upscaler client: %w", err)
			}
			runner, err := worker.New(store, client, logger)
			if err != nil {
				return err
			}

			return runner.Run(cmd.Context(), jobID)
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Job id to execute")
	_ = cmd.MarkFlagRequired("job")
	return cmd
}
