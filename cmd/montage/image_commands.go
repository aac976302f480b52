package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"montage/internal/api"
)

func newImageCommand(ctx *commandContext) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Generate, approve and manage project images",
	}
	imageCmd.AddCommand(newImagePreviewCommand(ctx))
	imageCmd.AddCommand(newImageApproveCommand(ctx))
	imageCmd.AddCommand(newImageRejectCommand(ctx))
	imageCmd.AddCommand(newImageListCommand(ctx))
	imageCmd.AddCommand(newImageRemoveCommand(ctx))
	imageCmd.AddCommand(newImageCleanupCommand(ctx))
	return imageCmd
}

func newImagePreviewCommand(ctx *commandContext) *cobra.Command {
	var project string
	var prompt string
	var service string
	var params []string

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Generate a preview image from a prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				preview, err := client.CreatePreview(cmd.Context(), project, api.PreviewRequest{
					Prompt:  prompt,
					Service: service,
					Params:  parsed,
				})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, preview)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Preview %s created\n", preview.PreviewID)
				fmt.Fprintf(out, "View it at %s\n", preview.PreviewURL)
				fmt.Fprintf(out, "Approve with `montage image approve %s`\n", preview.PreviewID)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Text prompt")
	cmd.Flags().StringVar(&service, "service", "", "Generation service (stable_diffusion, dalle, midjourney)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Generation parameter as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func newImageApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <preview-id>",
		Short: "Commit a preview to the project's permanent storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				image, err := client.Approve(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, image)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Approved image %s (%s)\n", image.ID, image.FileRef)
				return nil
			})
		},
	}
}

func newImageRejectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <preview-id>",
		Short: "Discard a preview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				image, err := client.Reject(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, image)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rejected image %s\n", image.ID)
				return nil
			})
		},
	}
}

func newImageListCommand(ctx *commandContext) *cobra.Command {
	var project string
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a project's images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				images, err := client.ListImages(cmd.Context(), project, statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, images)
				}
				if len(images) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No images found")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Status", "Service", "Prompt", "Created"},
					buildImageRows(images),
					nil,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id")
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status: preview, approved, rejected (repeatable)")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func newImageRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <image-id>",
		Short: "Delete an approved image and its file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.RemoveImage(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed image %s\n", args[0])
				return nil
			})
		},
	}
}

func newImageCleanupCommand(ctx *commandContext) *cobra.Command {
	var project string

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop approved records whose file is missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				report, err := client.CleanupImages(cmd.Context(), project)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Removed %d orphaned images; %d remain\n", report.OrphanedRemoved, report.ValidRemaining)
				for _, detail := range report.OrphanedDetails {
					fmt.Fprintf(out, "  %s\n", detail)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func buildImageRows(images []api.Image) [][]string {
	rows := make([][]string, 0, len(images))
	for _, image := range images {
		rows = append(rows, []string{image.ID, image.Status, image.Service, truncate(image.Prompt, 40), image.CreatedAt})
	}
	return rows
}

func parseParams(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(values))
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q: expected key=value", value)
		}
		params[key] = strings.TrimSpace(val)
	}
	return params, nil
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
