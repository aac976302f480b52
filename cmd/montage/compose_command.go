package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"montage/internal/api"
)

// manifest is the YAML description of a composition. Settings keys that
// are left out keep the daemon's configured defaults.
type manifest struct {
	Project  string         `yaml:"project"`
	Tracks   []string       `yaml:"tracks"`
	Images   []string       `yaml:"images"`
	Settings map[string]any `yaml:"settings"`
}

func loadManifest(path string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return m, nil
}

// requestBody renders the manifest as the JSON body of a composition
// request.
func (m manifest) requestBody() (json.RawMessage, error) {
	body := map[string]any{
		"track_ids": nonNil(m.Tracks),
		"image_ids": nonNil(m.Images),
	}
	if len(m.Settings) > 0 {
		body["settings"] = m.Settings
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode composition request: %w", err)
	}
	return data, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var manifestPath string
	var project string
	var trackIDs []string
	var imageIDs []string
	var wait bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Submit a composition job",
		Long: `Submit a composition job for a project.

Inputs come from a YAML manifest (-f) and/or --track and --image flags:

  project: demo
  tracks: [<track-id>, <track-id>]
  images: [<image-id>, <image-id>, <image-id>]
  settings:
    resolution: 1280x720
    fps: 24
    transition_type: fade
    distribution: proportional`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var m manifest
			if strings.TrimSpace(manifestPath) != "" {
				loaded, err := loadManifest(manifestPath)
				if err != nil {
					return err
				}
				m = loaded
			}
			if project != "" {
				m.Project = project
			}
			m.Tracks = append(m.Tracks, trackIDs...)
			m.Images = append(m.Images, imageIDs...)
			if strings.TrimSpace(m.Project) == "" {
				return errors.New("project is required (--project or manifest project)")
			}
			body, err := m.requestBody()
			if err != nil {
				return err
			}

			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.SubmitCompositionRaw(cmd.Context(), m.Project, body)
				if err != nil {
					return err
				}
				if !wait {
					if ctx.jsonOutput() {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued job %s\n", resp.JobID)
					fmt.Fprintf(cmd.OutOrStdout(), "Follow it with `montage job status --watch %s`\n", resp.JobID)
					return nil
				}
				return watchJob(cmd, client, resp.JobID, interval, ctx.jsonOutput())
			})
		},
	}
	cmd.Flags().StringVarP(&manifestPath, "file", "f", "", "Composition manifest (YAML)")
	cmd.Flags().StringVarP(&project, "project", "p", "", "Project id (overrides the manifest)")
	cmd.Flags().StringSliceVar(&trackIDs, "track", nil, "Track id in playback order (repeatable)")
	cmd.Flags().StringSliceVar(&imageIDs, "image", nil, "Approved image id in display order (repeatable)")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval with --wait")
	return cmd
}
