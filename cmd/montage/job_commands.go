package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"montage/internal/api"
)

func newJobCommand(ctx *commandContext) *cobra.Command {
	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "Inspect and cancel composition jobs",
	}
	jobCmd.AddCommand(newJobStatusCommand(ctx))
	jobCmd.AddCommand(newJobCancelCommand(ctx))
	jobCmd.AddCommand(newJobListCommand(ctx))
	return jobCmd
}

func newJobStatusCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if watch {
					return watchJob(cmd, client, args[0], interval, ctx.jsonOutput())
				}
				job, err := client.Job(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				renderJob(cmd.OutOrStdout(), job, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval with --watch")
	return cmd
}

func newJobCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				job, err := client.CancelJob(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, job)
				}
				out := cmd.OutOrStdout()
				switch {
				case job.Status == "cancelled":
					fmt.Fprintf(out, "Cancelled job %s\n", job.ID)
				case job.IsTerminal:
					fmt.Fprintf(out, "Job %s already %s\n", job.ID, job.Status)
				default:
					fmt.Fprintf(out, "Cancellation requested for job %s; it stops at the next stage boundary\n", job.ID)
				}
				return nil
			})
		},
	}
}

func newJobListCommand(ctx *commandContext) *cobra.Command {
	var project string
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				jobs, err := client.ListJobs(cmd.Context(), project, statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Stage", "Progress", "Created", "Message"},
					buildJobRows(jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status: queued, running, succeeded, failed, cancelled (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func buildJobRows(jobs []api.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		message := job.Message
		if job.Error != "" {
			message = job.Error
		}
		rows = append(rows, []string{job.ID, job.Status, job.Stage, formatProgress(job.Progress), job.CreatedAt, truncate(message, 48)})
	}
	return rows
}

func renderJob(out io.Writer, job *api.Job, colorize bool) {
	fmt.Fprintln(out, renderStatusLine("Job", jobStatusKind(job.Status), fmt.Sprintf("%s (%s)", job.ID, job.Status), colorize))
	fmt.Fprintln(out, renderStatusLine("Project", statusInfo, job.ProjectID, colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, progressLine(job), colorize))
	if job.ElapsedSecs > 0 {
		fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, formatSeconds(job.ElapsedSecs), colorize))
	}
	if job.ResultURL != "" || job.ResultRef != "" {
		result := job.ResultURL
		if result == "" {
			result = job.ResultRef
		}
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, result, colorize))
	}
	if job.Error != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, fmt.Sprintf("%s: %s", job.ErrorKind, job.Error), colorize))
	}
}

func progressLine(job *api.Job) string {
	line := formatProgress(job.Progress)
	if job.Stage != "" {
		line += " " + job.Stage
	}
	if job.Message != "" {
		line += " - " + job.Message
	}
	return line
}

// watchJob polls a job until it reaches a terminal state, printing each
// change. A failed job is returned as an error.
func watchJob(cmd *cobra.Command, client *api.Client, id string, interval time.Duration, asJSON bool) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	last := ""
	for {
		job, err := client.Job(cmd.Context(), id)
		if err != nil {
			return err
		}
		if line := progressLine(job); line != last && !asJSON {
			fmt.Fprintf(out, "[%s] %s\n", shortID(job.ID), line)
			last = line
		}
		if job.IsTerminal {
			if asJSON {
				return writeJSON(cmd, job)
			}
			renderJob(out, job, colorize)
			if job.Status == "failed" {
				return fmt.Errorf("job %s failed (%s): %s", job.ID, job.ErrorKind, job.Error)
			}
			return nil
		}
		if err := sleepContext(cmd.Context(), interval); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
