package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"montage/internal/api"
)

func newProjectCommand(ctx *commandContext) *cobra.Command {
	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Create and manage projects",
	}
	projectCmd.AddCommand(newProjectCreateCommand(ctx))
	projectCmd.AddCommand(newProjectListCommand(ctx))
	projectCmd.AddCommand(newProjectShowCommand(ctx))
	projectCmd.AddCommand(newProjectUpdateCommand(ctx))
	projectCmd.AddCommand(newProjectRemoveCommand(ctx))
	projectCmd.AddCommand(newProjectVideosCommand(ctx))
	return projectCmd
}

func newProjectCreateCommand(ctx *commandContext) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a draft project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				project, err := client.CreateProject(cmd.Context(), api.CreateProjectRequest{
					ID:   id,
					Name: strings.Join(args, " "),
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, project)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", project.ID, project.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Project id (generated when omitted)")
	return cmd
}

func newProjectListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				projects, err := client.ListProjects(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, projects)
				}
				if len(projects) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No projects")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Name", "Status", "Updated"},
					buildProjectRows(projects),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newProjectShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				project, err := client.GetProject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, project)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Project:  %s\n", project.ID)
				fmt.Fprintf(out, "Name:     %s\n", project.Name)
				fmt.Fprintf(out, "Status:   %s\n", project.Status)
				fmt.Fprintf(out, "Created:  %s\n", project.CreatedAt)
				fmt.Fprintf(out, "Updated:  %s\n", project.UpdatedAt)
				return nil
			})
		},
	}
}

func newProjectUpdateCommand(ctx *commandContext) *cobra.Command {
	var name string
	var status string

	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Rename a project or change its status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" && strings.TrimSpace(status) == "" {
				return fmt.Errorf("nothing to update: pass --name or --status")
			}
			return ctx.withClient(func(client *api.Client) error {
				project, err := client.UpdateProject(cmd.Context(), args[0], api.UpdateProjectRequest{Name: name, Status: status})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, project)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated project %s (%s, %s)\n", project.ID, project.Name, project.Status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New project name")
	cmd.Flags().StringVar(&status, "status", "", "New status (draft, active, archived)")
	return cmd
}

func newProjectRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <project-id>",
		Short: "Delete a project with its tracks, images and videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.DeleteProject(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed project %s\n", args[0])
				return nil
			})
		},
	}
}

func newProjectVideosCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "videos <project-id>",
		Short: "List a project's finished videos",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				videos, err := client.ListVideos(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, videos)
				}
				if len(videos) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No videos rendered")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Job", "Duration", "Resolution", "Size", "Finished", "URL"},
					buildVideoRows(videos),
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func buildProjectRows(projects []api.Project) [][]string {
	rows := make([][]string, 0, len(projects))
	for _, project := range projects {
		rows = append(rows, []string{project.ID, project.Name, project.Status, project.UpdatedAt})
	}
	return rows
}

func buildVideoRows(videos []api.Video) [][]string {
	rows := make([][]string, 0, len(videos))
	for _, video := range videos {
		size := "-"
		if video.SizeBytes > 0 {
			size = humanize.IBytes(uint64(video.SizeBytes))
		}
		rows = append(rows, []string{
			video.JobID,
			formatSeconds(video.DurationSeconds),
			video.Resolution,
			size,
			video.CreatedAt,
			video.URL,
		})
	}
	return rows
}
