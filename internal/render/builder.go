package render

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// CommandBuilder assembles ffmpeg argument lists.
type CommandBuilder struct {
	Encoding Encoding
}

// NewCommandBuilder fills unset encoding fields with safe defaults.
func NewCommandBuilder(enc Encoding) *CommandBuilder {
	if enc.VideoCodec == "" {
		enc.VideoCodec = "libx264"
	}
	if enc.Preset == "" {
		enc.Preset = "medium"
	}
	if enc.CRF <= 0 {
		enc.CRF = 23
	}
	if enc.PixelFormat == "" {
		enc.PixelFormat = "yuv420p"
	}
	if enc.AudioCodec == "" {
		enc.AudioCodec = "aac"
	}
	if enc.AudioBitrate == "" {
		enc.AudioBitrate = "192k"
	}
	return &CommandBuilder{Encoding: enc}
}

func baseArgs() []string {
	return []string{"-y", "-nostats", "-hide_banner", "-loglevel", "error"}
}

func (b *CommandBuilder) videoEncodeArgs(fps int) []string {
	return []string{
		"-c:v", b.Encoding.VideoCodec,
		"-preset", b.Encoding.Preset,
		"-crf", strconv.Itoa(b.Encoding.CRF),
		"-pix_fmt", b.Encoding.PixelFormat,
		"-r", strconv.Itoa(fps),
	}
}

// Slice returns the arguments that encode one still image into a clip.
func (b *CommandBuilder) Slice(slice Slice, spec VideoSpec) []string {
	args := baseArgs()
	args = append(args,
		"-loop", "1",
		"-framerate", strconv.Itoa(spec.FPS),
		"-t", seconds(slice.Timing.Length),
		"-i", slice.ImagePath,
		"-vf", SliceFilter(slice.Index, slice.Timing, spec),
	)
	args = append(args, b.videoEncodeArgs(spec.FPS)...)
	args = append(args, "-t", seconds(slice.Timing.Length), "-an", slice.Output)
	return args
}

// SliceFilter builds the filter chain for one clip. Ken Burns zooms in on
// even slices and out on odd ones.
func SliceFilter(index int, timing ClipTiming, spec VideoSpec) string {
	w, h := spec.Width, spec.Height
	var filters []string
	if spec.KenBurns {
		frames := max(int(timing.Length*float64(spec.FPS)+0.5), 1)
		step := (kenBurnsZoom - 1) / float64(frames)
		zoom := fmt.Sprintf("min(zoom+%.6f,%.2f)", step, kenBurnsZoom)
		if index%2 == 1 {
			zoom = fmt.Sprintf("if(eq(on,0),%.2f,max(zoom-%.6f,1))", kenBurnsZoom, step)
		}
		// Upscale first so the zoom does not jitter on integer pixel steps.
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", w*2, h*2),
			fmt.Sprintf("crop=%d:%d", w*2, h*2),
			fmt.Sprintf("zoompan=z='%s':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=%d:s=%dx%d:fps=%d", zoom, frames, w, h, spec.FPS),
		)
	} else {
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h),
		)
	}
	filters = append(filters, "setsar=1", fmt.Sprintf("fps=%d", spec.FPS))
	if timing.FadeIn > 0 {
		filters = append(filters, fmt.Sprintf("fade=t=in:st=0:d=%s", seconds(timing.FadeIn)))
	}
	if timing.FadeOut > 0 {
		filters = append(filters, fmt.Sprintf("fade=t=out:st=%s:d=%s", seconds(timing.Length-timing.FadeOut), seconds(timing.FadeOut)))
	}
	return strings.Join(filters, ",")
}

// ConcatList renders an ffconcat playlist for the given files.
func ConcatList(files []string) string {
	var list strings.Builder
	list.WriteString("ffconcat version 1.0\n")
	for _, file := range files {
		safe := strings.ReplaceAll(filepath.ToSlash(file), "'", `'\''`)
		fmt.Fprintf(&list, "file '%s'\n", safe)
	}
	return list.String()
}

// ConcatCopy joins clips listed in listPath without re-encoding.
func (b *CommandBuilder) ConcatCopy(listPath, output string) []string {
	args := baseArgs()
	return append(args, "-f", "concat", "-safe", "0", "-i", listPath, "-c", "copy", "-an", output)
}

// Crossfade joins clips with an xfade chain. Each offset is the start of the
// incoming clip's slice on the timeline.
func (b *CommandBuilder) Crossfade(clips []string, timings []ClipTiming, output string, spec VideoSpec) []string {
	args := baseArgs()
	for _, clip := range clips {
		args = append(args, "-i", clip)
	}
	args = append(args, "-filter_complex", CrossfadeGraph(timings), "-map", "[vout]")
	args = append(args, b.videoEncodeArgs(spec.FPS)...)
	return append(args, "-an", output)
}

// CrossfadeGraph builds the filter graph used by Crossfade.
func CrossfadeGraph(timings []ClipTiming) string {
	if len(timings) == 1 {
		return "[0:v]null[vout]"
	}
	var graph strings.Builder
	previous := "[0:v]"
	offset := 0.0
	for i := 1; i < len(timings); i++ {
		overlap := timings[i-1].Overlap
		offset += timings[i-1].Length - overlap
		label := fmt.Sprintf("[x%d]", i)
		if i == len(timings)-1 {
			label = "[vout]"
		}
		if i > 1 {
			graph.WriteString(";")
		}
		fmt.Fprintf(&graph, "%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s",
			previous, i, seconds(overlap), seconds(offset), label)
		previous = label
	}
	return graph.String()
}

// Mux concatenates audio inputs in order and muxes them with the video.
// The output runs to the end of the longer stream, so frame rounding in the
// slices never trims the audio.
func (b *CommandBuilder) Mux(video string, audio []string, output string) []string {
	args := baseArgs()
	args = append(args, "-i", video)
	for _, track := range audio {
		args = append(args, "-i", track)
	}
	if len(audio) == 1 {
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	} else {
		var graph strings.Builder
		for i := range audio {
			fmt.Fprintf(&graph, "[%d:a]", i+1)
		}
		fmt.Fprintf(&graph, "concat=n=%d:v=0:a=1[aout]", len(audio))
		args = append(args, "-filter_complex", graph.String(), "-map", "0:v:0", "-map", "[aout]")
	}
	return append(args,
		"-c:v", "copy",
		"-c:a", b.Encoding.AudioCodec,
		"-b:a", b.Encoding.AudioBitrate,
		"-movflags", "+faststart",
		output,
	)
}

func seconds(value float64) string {
	return strconv.FormatFloat(value, 'f', 3, 64)
}
