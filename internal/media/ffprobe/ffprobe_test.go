package ffprobe

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResultHelpers(t *testing.T) {
	result := Result{
		Streams: []Stream{
			{CodecType: "video", Width: 1920, Height: 1080},
			{CodecType: "audio"},
			{CodecType: "audio"},
		},
		Format: Format{Duration: "123.45"},
	}
	if result.VideoStreamCount() != 1 {
		t.Fatalf("expected 1 video stream, got %d", result.VideoStreamCount())
	}
	if result.AudioStreamCount() != 2 {
		t.Fatalf("expected 2 audio streams, got %d", result.AudioStreamCount())
	}
	if result.DurationSeconds() != 123.45 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
	if w, h := result.VideoSize(); w != 1920 || h != 1080 {
		t.Fatalf("unexpected size %dx%d", w, h)
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{Streams: []Stream{
		{CodecType: "audio", Duration: "10.5"},
		{CodecType: "video", Duration: "12.25"},
	}}
	if got := result.DurationSeconds(); got != 12.25 {
		t.Fatalf("duration = %v, want 12.25", got)
	}
}

func TestResultHelpersHandleInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected duration NaN, got %v", result.DurationSeconds())
	}
	if err := result.Verify(Expectation{DurationSeconds: 10, Tolerance: 1}); err == nil {
		t.Fatal("expected unparseable duration to fail verification")
	}
}

func TestVerify(t *testing.T) {
	good := Result{
		Streams: []Stream{{CodecType: "video", Width: 1280, Height: 720}, {CodecType: "audio"}},
		Format:  Format{Duration: "30.02"},
	}
	want := Expectation{Width: 1280, Height: 720, DurationSeconds: 30, Tolerance: 0.5}
	if err := good.Verify(want); err != nil {
		t.Fatalf("Verify good: %v", err)
	}

	cases := map[string]Result{
		"no audio":   {Streams: []Stream{{CodecType: "video", Width: 1280, Height: 720}}, Format: Format{Duration: "30"}},
		"wrong size": {Streams: []Stream{{CodecType: "video", Width: 640, Height: 360}, {CodecType: "audio"}}, Format: Format{Duration: "30"}},
		"too short":  {Streams: []Stream{{CodecType: "video", Width: 1280, Height: 720}, {CodecType: "audio"}}, Format: Format{Duration: "20"}},
		"no video":   {Streams: []Stream{{CodecType: "audio"}}, Format: Format{Duration: "30"}},
	}
	for name, result := range cases {
		if err := result.Verify(want); err == nil {
			t.Fatalf("%s: expected verification error", name)
		}
	}
}

func writeProbeStub(t *testing.T, output string) string {
	t.Helper()
	dir := t.TempDir()
	payload := filepath.Join(dir, "probe.json")
	if err := os.WriteFile(payload, []byte(output), 0o644); err != nil {
		t.Fatalf("write payload: %v", err)
	}
	script := "#!/bin/sh\ncat '" + payload + "'\n"
	binary := filepath.Join(dir, "ffprobe")
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return binary
}

func TestAudioDuration(t *testing.T) {
	binary := writeProbeStub(t, `{"streams":[{"index":0,"codec_type":"audio","codec_name":"mp3"}],"format":{"duration":"184.32"}}`)
	got, err := AudioDuration(context.Background(), binary, "/music/song.mp3")
	if err != nil {
		t.Fatalf("AudioDuration: %v", err)
	}
	if got != 184.32 {
		t.Fatalf("duration = %v", got)
	}
}

func TestAudioDurationRejectsSilentFiles(t *testing.T) {
	binary := writeProbeStub(t, `{"streams":[{"index":0,"codec_type":"video"}],"format":{"duration":"5"}}`)
	if _, err := AudioDuration(context.Background(), binary, "/clip.mp4"); err == nil || !strings.Contains(err.Error(), "no audio stream") {
		t.Fatalf("err = %v", err)
	}
	binary = writeProbeStub(t, `{"streams":[{"index":0,"codec_type":"audio"}],"format":{}}`)
	if _, err := AudioDuration(context.Background(), binary, "/empty.wav"); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestInspectRejectsEmptyPath(t *testing.T) {
	if _, err := Inspect(context.Background(), "", "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}
