package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result is the subset of `ffprobe -show_format -show_streams` output the
// composition tooling reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one elementary stream of a probed file.
type Stream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format is the container section of a probe.
type Format struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

// Inspect runs ffprobe on path and decodes its JSON report. An empty binary
// means "ffprobe" from PATH.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	if strings.TrimSpace(path) == "" {
		return Result{}, errors.New("ffprobe: no input path")
	}
	if binary = strings.TrimSpace(binary); binary == "" {
		binary = "ffprobe"
	}

	args := []string{"-v", "error", "-hide_banner", "-of", "json", "-show_format", "-show_streams", "--", path}
	raw, err := exec.CommandContext(ctx, binary, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return Result{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var out Result
	if err := json.Unmarshal(raw, &out); err != nil {
		return Result{}, fmt.Errorf("decode ffprobe report for %s: %w", path, err)
	}
	return out, nil
}

// AudioDuration returns the playable length of an audio file in seconds. Files
// without an audio stream or a positive finite duration are rejected.
func AudioDuration(ctx context.Context, binary, path string) (float64, error) {
	probe, err := Inspect(ctx, binary, path)
	if err != nil {
		return 0, err
	}
	if probe.AudioStreamCount() == 0 {
		return 0, fmt.Errorf("ffprobe: %s has no audio stream", path)
	}
	secs := probe.DurationSeconds()
	if !(secs > 0) || math.IsInf(secs, 0) {
		return 0, fmt.Errorf("ffprobe: %s reports no usable duration", path)
	}
	return secs, nil
}

func (r Result) VideoStreamCount() int { return r.count("video") }

func (r Result) AudioStreamCount() int { return r.count("audio") }

func (r Result) count(kind string) int {
	n := 0
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, kind) {
			n++
		}
	}
	return n
}

// DurationSeconds prefers the container duration and otherwise takes the
// longest stream. A value that does not parse yields NaN.
func (r Result) DurationSeconds() float64 {
	if strings.TrimSpace(r.Format.Duration) != "" {
		return seconds(r.Format.Duration)
	}
	var longest float64
	for _, s := range r.Streams {
		if d := seconds(s.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// VideoSize reports the frame size of the first video stream.
func (r Result) VideoSize() (width, height int) {
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, "video") {
			return s.Width, s.Height
		}
	}
	return 0, 0
}

// Expectation is the shape a rendered composition must have.
type Expectation struct {
	Width           int
	Height          int
	DurationSeconds float64
	// Tolerance is the allowed duration drift in seconds.
	Tolerance float64
}

// Verify compares the probe with want: exactly one video stream, at least one
// audio stream, the requested frame size and a duration within tolerance.
func (r Result) Verify(want Expectation) error {
	if n := r.VideoStreamCount(); n != 1 {
		return fmt.Errorf("expected 1 video stream, found %d", n)
	}
	if r.AudioStreamCount() == 0 {
		return errors.New("output has no audio stream")
	}
	if want.Width > 0 && want.Height > 0 {
		if w, h := r.VideoSize(); w != want.Width || h != want.Height {
			return fmt.Errorf("video is %dx%d, expected %dx%d", w, h, want.Width, want.Height)
		}
	}
	if want.DurationSeconds > 0 {
		got := r.DurationSeconds()
		if !(math.Abs(got-want.DurationSeconds) <= want.Tolerance) {
			return fmt.Errorf("duration %.3fs differs from expected %.3fs", got, want.DurationSeconds)
		}
	}
	return nil
}

// seconds parses an ffprobe decimal field. Blank is zero; garbage is NaN.
func seconds(field string) float64 {
	field = strings.TrimSpace(field)
	if field == "" {
		return 0
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
