package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"montage/internal/api"
)

func newTrackCommand(ctx *commandContext) *cobra.Command {
	trackCmd := &cobra.Command{
		Use:   "track",
		Short: "Register and inspect audio tracks",
	}
	trackCmd.AddCommand(newTrackAddCommand(ctx))
	trackCmd.AddCommand(newTrackListCommand(ctx))
	trackCmd.AddCommand(newTrackRemoveCommand(ctx))
	return trackCmd
}

func newTrackAddCommand(ctx *commandContext) *cobra.Command {
	var project string
	var name string
	var duration float64

	cmd := &cobra.Command{
		Use:   "add <audio-file>",
		Short: "Register an audio file with a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve audio path: %w", err)
			}
			return ctx.withClient(func(client *api.Client) error {
				track, err := client.RegisterTrack(cmd.Context(), project, api.RegisterTrackRequest{
					SourcePath:      source,
					Filename:        name,
					DurationSeconds: duration,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, track)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered track %s (%s, %s)\n", track.ID, track.Filename, formatSeconds(track.DurationSeconds))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id")
	cmd.Flags().StringVar(&name, "name", "", "Display filename (defaults to the source name)")
	cmd.Flags().Float64Var(&duration, "duration", 0, "Duration in seconds (probed with ffprobe when omitted)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTrackListCommand(ctx *commandContext) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's tracks in playback order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				tracks, err := client.ListTracks(cmd.Context(), project)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, tracks)
				}
				if len(tracks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tracks registered")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Filename", "Duration", "Created"},
					buildTrackRows(tracks),
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newTrackRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <track-id>",
		Short: "Remove a track and its audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.RemoveTrack(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed track %s\n", args[0])
				return nil
			})
		},
	}
}

func buildTrackRows(tracks []api.Track) [][]string {
	rows := make([][]string, 0, len(tracks))
	for _, track := range tracks {
		rows = append(rows, []string{track.ID, track.Filename, formatSeconds(track.DurationSeconds), track.CreatedAt})
	}
	return rows
}
