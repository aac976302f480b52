package render

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"montage/internal/logging"
	"montage/internal/services"
)

func spec(transition string, td float64, kenBurns bool) VideoSpec {
	return VideoSpec{Width: 1280, Height: 720, FPS: 30, Transition: transition, TransitionDuration: td, KenBurns: kenBurns}
}

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestClampTransition(t *testing.T) {
	if got := ClampTransition(spec(TransitionCrossfade, 1, false), []float64{4, 1.2, 3}); !almost(got, 0.6) {
		t.Fatalf("clamped = %v, want 0.6", got)
	}
	if got := ClampTransition(spec(TransitionFade, 1, false), []float64{4, 5}); !almost(got, 1) {
		t.Fatalf("unclamped = %v, want 1", got)
	}
	if got := ClampTransition(spec(TransitionNone, 1, false), []float64{4, 5}); got != 0 {
		t.Fatalf("none = %v", got)
	}
	if got := ClampTransition(spec(TransitionFade, 1, false), []float64{4}); got != 0 {
		t.Fatalf("single slice = %v", got)
	}
}

func TestLayoutCrossfadePreservesTimeline(t *testing.T) {
	durations := []float64{3, 4, 5}
	timings := Layout(spec(TransitionCrossfade, 1, false), durations)
	joined := 0.0
	for i, timing := range timings {
		joined += timing.Length - timing.Overlap
		if i < len(timings)-1 && !almost(timing.Overlap, 1) {
			t.Fatalf("clip %d overlap = %v", i, timing.Overlap)
		}
	}
	if !almost(joined, 12) {
		t.Fatalf("joined length = %v, want 12", joined)
	}
	if timings[2].Overlap != 0 || !almost(timings[2].Length, 5) {
		t.Fatalf("last clip timing = %+v", timings[2])
	}
}

func TestLayoutFade(t *testing.T) {
	timings := Layout(spec(TransitionFade, 0.5, false), []float64{2, 2, 2})
	if timings[0].FadeIn != 0 || !almost(timings[0].FadeOut, 0.5) {
		t.Fatalf("first = %+v", timings[0])
	}
	if !almost(timings[1].FadeIn, 0.5) || !almost(timings[1].FadeOut, 0.5) {
		t.Fatalf("middle = %+v", timings[1])
	}
	if !almost(timings[2].FadeIn, 0.5) || timings[2].FadeOut != 0 {
		t.Fatalf("last = %+v", timings[2])
	}
	for _, timing := range timings {
		if timing.Length != 2 || timing.Overlap != 0 {
			t.Fatalf("fade must not change length: %+v", timing)
		}
	}
}

func TestSliceFilterKenBurnsAlternates(t *testing.T) {
	s := spec(TransitionNone, 0, true)
	in := SliceFilter(0, ClipTiming{Length: 2}, s)
	out := SliceFilter(1, ClipTiming{Length: 2}, s)
	if !strings.Contains(in, "zoompan=z='min(zoom+") {
		t.Fatalf("even slice should zoom in: %s", in)
	}
	if !strings.Contains(out, "if(eq(on,0),1.20,max(zoom-") {
		t.Fatalf("odd slice should zoom out: %s", out)
	}
	if !strings.Contains(in, "d=60:s=1280x720:fps=30") {
		t.Fatalf("zoompan frames/size missing: %s", in)
	}
}

func TestSliceFilterStaticWithFades(t *testing.T) {
	filter := SliceFilter(1, ClipTiming{Length: 3, FadeIn: 0.5, FadeOut: 0.5}, spec(TransitionFade, 0.5, false))
	for _, want := range []string{
		"scale=1280:720:force_original_aspect_ratio=decrease",
		"pad=1280:720:(ow-iw)/2:(oh-ih)/2",
		"fade=t=in:st=0:d=0.500",
		"fade=t=out:st=2.500:d=0.500",
	} {
		if !strings.Contains(filter, want) {
			t.Fatalf("filter %q missing %q", filter, want)
		}
	}
	if strings.Contains(filter, "zoompan") {
		t.Fatal("static slice should not zoom")
	}
}

func TestCrossfadeGraphOffsets(t *testing.T) {
	timings := Layout(spec(TransitionCrossfade, 1, false), []float64{3, 4, 5})
	got := CrossfadeGraph(timings)
	want := "[0:v][1:v]xfade=transition=fade:duration=1.000:offset=3.000[x1];" +
		"[x1][2:v]xfade=transition=fade:duration=1.000:offset=7.000[vout]"
	if got != want {
		t.Fatalf("graph =\n%s\nwant\n%s", got, want)
	}
	if CrossfadeGraph([]ClipTiming{{Length: 2}}) != "[0:v]null[vout]" {
		t.Fatal("single clip graph")
	}
}

func TestMuxArgs(t *testing.T) {
	b := NewCommandBuilder(Encoding{})
	single := b.Mux("v.mp4", []string{"a.mp3"}, "out.mp4")
	if !slices.Contains(single, "1:a:0") || slices.Contains(single, "-filter_complex") {
		t.Fatalf("single-track mux args %v", single)
	}
	multi := b.Mux("v.mp4", []string{"a.mp3", "b.wav", "c.m4a"}, "out.mp4")
	idx := slices.Index(multi, "-filter_complex")
	if idx < 0 || multi[idx+1] != "[1:a][2:a][3:a]concat=n=3:v=0:a=1[aout]" {
		t.Fatalf("multi-track mux args %v", multi)
	}
	for _, want := range []string{"aac", "192k", "out.mp4"} {
		if !slices.Contains(multi, want) {
			t.Fatalf("mux args missing %q: %v", want, multi)
		}
	}
	if slices.Contains(single, "-shortest") || slices.Contains(multi, "-shortest") {
		t.Fatalf("mux must not stop at the shorter stream: %v", multi)
	}
}

func TestConcatListEscapesQuotes(t *testing.T) {
	list := ConcatList([]string{"/tmp/a.mp4", "/tmp/it's.mp4"})
	if !strings.HasPrefix(list, "ffconcat version 1.0\n") {
		t.Fatalf("missing header: %q", list)
	}
	if !strings.Contains(list, `file '/tmp/it'\''s.mp4'`) {
		t.Fatalf("quote not escaped: %q", list)
	}
}

type recordedCall struct {
	name string
	args []string
}

func recordingRenderer(t *testing.T, fail error) (*FFmpeg, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	runner := func(_ context.Context, name string, args ...string) error {
		calls = append(calls, recordedCall{name: name, args: append([]string(nil), args...)})
		return fail
	}
	return NewFFmpeg("/opt/ffmpeg", Encoding{CRF: 20}, logging.NewNop(), WithRunner(runner)), &calls
}

func TestFFmpegJoinUsesConcatWithoutCrossfade(t *testing.T) {
	r, calls := recordingRenderer(t, nil)
	dir := t.TempDir()
	output := filepath.Join(dir, "video.mp4")
	clips := []string{filepath.Join(dir, "0.mp4"), filepath.Join(dir, "1.mp4")}
	timings := Layout(spec(TransitionFade, 1, false), []float64{3, 3})

	if err := r.Join(context.Background(), clips, timings, output, spec(TransitionFade, 1, false)); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(*calls) != 1 || (*calls)[0].name != "/opt/ffmpeg" {
		t.Fatalf("calls = %+v", *calls)
	}
	args := (*calls)[0].args
	if !slices.Contains(args, "concat") || !slices.Contains(args, "copy") {
		t.Fatalf("expected concat copy, got %v", args)
	}
	if _, err := os.Stat(output + ".ffconcat"); !os.IsNotExist(err) {
		t.Fatal("concat list not cleaned up")
	}
}

func TestFFmpegJoinCrossfade(t *testing.T) {
	r, calls := recordingRenderer(t, nil)
	s := spec(TransitionCrossfade, 1, false)
	timings := Layout(s, []float64{3, 3})
	if err := r.Join(context.Background(), []string{"0.mp4", "1.mp4"}, timings, "out.mp4", s); err != nil {
		t.Fatalf("Join: %v", err)
	}
	args := (*calls)[0].args
	if !slices.Contains(args, "-filter_complex") || !slices.Contains(args, "20") {
		t.Fatalf("expected xfade encode with crf 20, got %v", args)
	}
}

func TestFFmpegFailuresAreRenderErrors(t *testing.T) {
	r, _ := recordingRenderer(t, errors.New("exit status 1"))
	slice := Slice{Index: 0, ImagePath: "in.png", Output: filepath.Join(t.TempDir(), "clips", "0.mp4"), Timing: ClipTiming{Length: 2}}
	err := r.RenderSlice(context.Background(), slice, spec(TransitionNone, 0, false))
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("err = %v, want ErrRender", err)
	}

	err = r.Mux(context.Background(), "v.mp4", nil, "out.mp4")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("mux without audio err = %v", err)
	}
}

func TestFFmpegReportsContextCancellation(t *testing.T) {
	r, _ := recordingRenderer(t, errors.New("signal: killed"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Mux(ctx, "v.mp4", []string{"a.mp3"}, "out.mp4")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestVideoSpecNormalize(t *testing.T) {
	s, err := VideoSpec{Width: 640, Height: 360, FPS: 24, Transition: " Crossfade "}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if s.Transition != TransitionCrossfade {
		t.Fatalf("transition = %q", s.Transition)
	}
	if _, err := (VideoSpec{Width: 641, Height: 360, FPS: 24}).Normalize(); err == nil {
		t.Fatal("odd width accepted")
	}
	if _, err := (VideoSpec{Width: 640, Height: 360, FPS: 24, Transition: "wipe"}).Normalize(); err == nil {
		t.Fatal("unknown transition accepted")
	}
}
