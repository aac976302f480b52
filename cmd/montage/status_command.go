package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"montage/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and library status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, err := client.Status(cmd.Context())
			if err != nil {
				if isUnreachable(err) {
					for _, line := range renderSectionHeader("Daemon", colorize) {
						fmt.Fprintln(stdout, line)
					}
					fmt.Fprintln(stdout, renderStatusLine("Montage", statusError, "Not running ("+ctx.apiAddress()+")", colorize))
					return nil
				}
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, status)
			}
			renderDaemonStatus(stdout, status, ctx.apiAddress(), colorize)
			return nil
		},
	}
}

func renderDaemonStatus(out io.Writer, status *api.DaemonStatus, addr string, colorize bool) {
	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	running := statusError
	message := "Not running"
	if status.Running {
		running = statusOK
		message = fmt.Sprintf("Running (pid %d)", status.PID)
	}
	fmt.Fprintln(out, renderStatusLine("Montage", running, message, colorize))
	fmt.Fprintln(out, renderStatusLine("API", statusInfo, addr, colorize))
	fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.DatabasePath, colorize))
	fmt.Fprintln(out, renderStatusLine("Storage", statusInfo, status.StorageBackend, colorize))
	fmt.Fprintln(out, renderStatusLine("Generator", statusInfo, status.Generator, colorize))
	fmt.Fprintln(out, renderStatusLine("Scheduler", schedulerKind(status.Scheduler), schedulerDetail(status.Scheduler), colorize))
	fmt.Fprintln(out, renderStatusLine("Staging", statusInfo, stagingDetail(status.StagingDirs, status.StagingBytes), colorize))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	if len(status.Checks) > 0 {
		for _, line := range renderSectionHeader("Checks", colorize) {
			fmt.Fprintln(out, line)
		}
		for _, check := range status.Checks {
			kind := statusOK
			if !check.Passed {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
		}
		fmt.Fprintln(out)
	}

	for _, line := range renderSectionHeader("Library", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := [][]string{
		{"Projects", "total", fmt.Sprint(status.ProjectCount)},
		{"Tracks", "registered", fmt.Sprint(status.TrackCount)},
	}
	rows = append(rows, countRows("Images", status.ImageCounts)...)
	rows = append(rows, countRows("Jobs", status.JobCounts)...)
	fmt.Fprint(out, renderTable([]string{"Kind", "Status", "Count"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
}

func countRows(kind string, counts map[string]int) [][]string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{kind, key, fmt.Sprint(counts[key])})
	}
	return rows
}

func stagingDetail(dirs int, size int64) string {
	if dirs == 0 {
		return "empty"
	}
	noun := "directories"
	if dirs == 1 {
		noun = "directory"
	}
	return fmt.Sprintf("%d work %s, %s", dirs, noun, humanize.IBytes(uint64(size)))
}

func schedulerKind(s api.SchedulerStatus) statusKind {
	switch {
	case s.LastError != "":
		return statusWarn
	case s.Running:
		return statusOK
	default:
		return statusError
	}
}

func schedulerDetail(s api.SchedulerStatus) string {
	detail := fmt.Sprintf("%d workers", s.Workers)
	if !s.Running {
		detail = "stopped"
	}
	if s.LastError != "" {
		detail += "; last error: " + s.LastError
	}
	return detail
}

func dependencyLines(deps []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(deps)+1)
	var missing []string
	for _, dep := range deps {
		if dep.Available {
			message := "Ready"
			if dep.Version != "" {
				message = fmt.Sprintf("Ready (%s)", dep.Version)
			} else if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		detail := strings.TrimSpace(dep.Detail)
		if detail == "" {
			detail = "not available"
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		} else {
			missing = append(missing, dep.Name)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing dependencies", statusError, strings.Join(missing, ", "), colorize))
	}
	return lines
}
