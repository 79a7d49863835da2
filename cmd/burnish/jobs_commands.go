package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"burnish/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage the job store",
	}

	jobsCmd.AddCommand(newJobsListCommand(ctx))
	jobsCmd.AddCommand(newJobsShowCommand(ctx))
	jobsCmd.AddCommand(newJobsCancelCommand(ctx))
	jobsCmd.AddCommand(newJobsDeleteCommand(ctx))

	return jobsCmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var queryFlag string
	var limitFlag int
	var jsonFlag bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(ctx.cliLogger())
			if err != nil {
				return err
			}

			opts := jobs.ListOptions{Query: queryFlag, Limit: limitFlag}
			if trimmed := strings.TrimSpace(statusFlag); trimmed != "" {
				status, ok := jobs.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q", trimmed)
				}
				opts.Status = status
			}

			list, err := store.List(cmd.Context(), opts)
			if err != nil {
				return err
			}

			if jsonFlag {
				return writeJSON(cmd, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
				return nil
			}

			rows := make([][]string, 0, len(list))
			for _, job := range list {
				rows = append(rows, []string{
					job.ID,
					string(job.Status),
					formatProgress(job.Progress),
					fmt.Sprintf("%d", job.Progress.Fail),
					job.CreatedAt.Local().Format(time.DateTime),
					job.Payload.InputDir,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "STATUS", "PROGRESS", "FAIL", "CREATED", "INPUT"},
				rows,
				2, 3,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by status")
	cmd.Flags().StringVarP(&queryFlag, "query", "q", "", "Filter by id substring")
	cmd.Flags().IntVar(&limitFlag, "limit", 0, "Maximum rows (0 uses the configured default)")
	cmd.Flags().BoolVar(&jsonFlag, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Print one job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(ctx.cliLogger())
			if err != nil {
				return err
			}
			job, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			return writeJSON(cmd, job)
		},
	}
}

func newJobsCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(ctx.cliLogger())
			if err != nil {
				return err
			}
			job, err := store.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Job %s is %s\n", job.ID, job.Status)
			return nil
		},
	}
}

func newJobsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Remove a job record from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(ctx.cliLogger())
			if err != nil {
				return err
			}
			removed, err := store.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("job %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s\n", args[0])
			return nil
		},
	}
}

func formatProgress(p jobs.Progress) string {
	return fmt.Sprintf("%d/%d", p.OK+p.Fail, p.Total)
}
