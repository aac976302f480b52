package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"montage/internal/logging"
	"montage/internal/services"
)

// CommandRunner executes an external command.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// FFmpeg renders with the ffmpeg binary.
type FFmpeg struct {
	binary  string
	builder *CommandBuilder
	run     CommandRunner
	logger  *slog.Logger
}

var _ Renderer = (*FFmpeg)(nil)

// Option configures an FFmpeg renderer.
type Option func(*FFmpeg)

// WithRunner replaces command execution, mainly for tests.
func WithRunner(run CommandRunner) Option {
	return func(f *FFmpeg) {
		if run != nil {
			f.run = run
		}
	}
}

// NewFFmpeg creates a renderer for the given binary and encoding settings.
func NewFFmpeg(binary string, enc Encoding, logger *slog.Logger, opts ...Option) *FFmpeg {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	f := &FFmpeg{
		binary:  binary,
		builder: NewCommandBuilder(enc),
		run:     defaultCommandRunner,
		logger:  logging.NewComponentLogger(logger, "render"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *FFmpeg) RenderSlice(ctx context.Context, slice Slice, spec VideoSpec) error {
	if slice.Timing.Length <= 0 {
		return services.Wrap(services.ErrValidation, "render", "slice", fmt.Sprintf("slice %d has no duration", slice.Index), nil)
	}
	if err := os.MkdirAll(filepath.Dir(slice.Output), 0o755); err != nil {
		return services.Wrap(services.ErrResource, "render", "slice", "create clip dir", err)
	}
	if err := f.exec(ctx, "slice", f.builder.Slice(slice, spec)); err != nil {
		return err
	}
	f.logger.Debug("slice rendered",
		logging.Int("index", slice.Index),
		logging.Float64("length_seconds", slice.Timing.Length),
		logging.String("output", slice.Output),
	)
	return nil
}

func (f *FFmpeg) Join(ctx context.Context, clips []string, timings []ClipTiming, output string, spec VideoSpec) error {
	if len(clips) == 0 || len(clips) != len(timings) {
		return services.Wrap(services.ErrValidation, "render", "join", fmt.Sprintf("%d clips with %d timings", len(clips), len(timings)), nil)
	}
	if spec.Transition == TransitionCrossfade && len(clips) > 1 && timings[0].Overlap > 0 {
		return f.exec(ctx, "join", f.builder.Crossfade(clips, timings, output, spec))
	}

	listPath := output + ".ffconcat"
	if err := os.WriteFile(listPath, []byte(ConcatList(clips)), 0o644); err != nil {
		return services.Wrap(services.ErrResource, "render", "join", "write concat list", err)
	}
	defer os.Remove(listPath)
	return f.exec(ctx, "join", f.builder.ConcatCopy(listPath, output))
}

func (f *FFmpeg) Mux(ctx context.Context, video string, audio []string, output string) error {
	if len(audio) == 0 {
		return services.Wrap(services.ErrValidation, "render", "mux", "no audio inputs", nil)
	}
	return f.exec(ctx, "mux", f.builder.Mux(video, audio, output))
}

func (f *FFmpeg) exec(ctx context.Context, op string, args []string) error {
	if err := f.run(ctx, f.binary, args...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return services.Wrap(services.ErrRender, "render", op, "ffmpeg failed", err)
	}
	return nil
}

func defaultCommandRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return fmt.Errorf("%s not runnable: %w", name, err)
		}
		return fmt.Errorf("%w: %s", err, lastLines(string(output), 5))
	}
	return nil
}

func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
