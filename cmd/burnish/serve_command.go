package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"burnish/internal/logging"
	"burnish/internal/preflight"
	"burnish/internal/server"
	"burnish/internal/version"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job submission and control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if !skipPreflight {
				if failed := preflight.Failed(preflight.RunAll(cfg, true)); len(failed) != 0 {
					for _, result := range failed {
						fmt.Fprintf(cmd.ErrOrStderr(), "preflight: %s: %s\n", result.Name, result.Detail)
					}
					return fmt.Errorf("%d preflight check(s) failed", len(failed))
				}
			}

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			logger.Info("starting burnish",
				logging.String("version", version.Version),
				logging.String("bind", cfg.Paths.APIBind),
				logging.String("store", cfg.StorePath()))

			store, err := ctx.openStore(logger)
			if err != nil {
				return fmt.Errorf("open job store: %w", err)
			}

			srv, err := server.New(cfg, store, ctx.resolvedConfigPath(), logger)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Start(runCtx)
		},
	}

	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip environment checks at startup")
	return cmd
}
