package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"burnish/internal/jobs"
	"burnish/internal/server"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var inputDir string
	var outputDir string
	var scale int
	var format string
	var quality int
	var noAI bool

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Create an upscale job and launch its worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			payload := jobs.Payload{
				InputDir:  valueOrDefault(inputDir, cfg.Upscaler.DefaultInputDir),
				OutputDir: valueOrDefault(outputDir, cfg.Upscaler.DefaultOutputDir),
				Scale:     scale,
				Format:    valueOrDefault(format, cfg.Upscaler.DefaultFormat),
				Quality:   quality,
				UseAI:     !noAI,
			}
			if payload.Scale == 0 {
				payload.Scale = cfg.Upscaler.DefaultScale
			}
			if payload.Quality == 0 {
				payload.Quality = cfg.Upscaler.DefaultQuality
			}
			normalized, err := jobs.NormalizePayload(payload)
			if err != nil {
				return err
			}

			store, err := ctx.openStore(ctx.cliLogger())
			if err != nil {
				return err
			}
			job, err := store.Create(cmd.Context(), normalized)
			if err != nil {
				return err
			}

			spawner := server.NewProcessSpawner(cfg, ctx.resolvedConfigPath())
			if err := spawner.Spawn(job.ID); err != nil {
				_, _ = store.MarkFailed(cmd.Context(), job.ID, "worker process failed to start")
				return fmt.Errorf("spawn worker: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Submitted job %s\n", job.ID)
			fmt.Fprintf(out, "Worker log: %s\n", cfg.WorkerLogPath(job.ID))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputDir, "input", "i", "", "Directory of images to upscale")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Destination directory")
	cmd.Flags().IntVarP(&scale, "scale", "s", 0, "Upscale factor (2, 3, or 4)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format (webp, jpg, png)")
	cmd.Flags().IntVar(&quality, "quality", 0, "Encode quality for webp/jpg (1-100)")
	cmd.Flags().BoolVar(&noAI, "no-ai", false, "Use plain resampling instead of the AI model")
	return cmd
}

func valueOrDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
