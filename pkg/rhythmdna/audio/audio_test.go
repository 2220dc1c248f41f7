package audio

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeWAV encodes interleaved 16-bit samples to a temp file.
func writeWAV(t *testing.T, rate, channels int, samples []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "take.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create WAV: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("Failed to write samples: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Failed to close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Failed to close file: %v", err)
	}
	return path
}

func TestOpenWAVMono(t *testing.T) {
	samples := make([]int, 1000)
	for i := range samples {
		samples[i] = 16384 // half scale
	}
	path := writeWAV(t, 48000, 1, samples)

	r, err := OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV failed: %v", err)
	}
	defer r.Close()

	if r.SampleRate() != 48000 || r.Channels() != 1 {
		t.Errorf("Unexpected format: %d Hz, %d channels", r.SampleRate(), r.Channels())
	}

	frame := make([]float32, 128)
	total := 0
	for {
		n, err := r.Next(frame)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		for i := 0; i < n; i++ {
			if math.Abs(float64(frame[i])-0.5) > 1e-4 {
				t.Fatalf("Sample %d: expected 0.5, got %v", total+i, frame[i])
			}
		}
		total += n
	}
	if total != len(samples) {
		t.Errorf("Expected %d samples, got %d", len(samples), total)
	}
}

func TestOpenWAVStereoIsAveraged(t *testing.T) {
	// left full positive, right silent
	samples := make([]int, 200)
	for i := 0; i < len(samples); i += 2 {
		samples[i] = 32767
	}
	r, err := OpenWAV(writeWAV(t, 44100, 2, samples))
	if err != nil {
		t.Fatalf("OpenWAV failed: %v", err)
	}
	defer r.Close()

	frame := make([]float32, 256)
	n, err := r.Next(frame)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if n != 100 {
		t.Fatalf("Expected 100 mono samples, got %d", n)
	}
	if math.Abs(float64(frame[0])-0.5) > 1e-3 {
		t.Errorf("Expected averaged sample ~0.5, got %v", frame[0])
	}
}

func TestOpenWAVRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenWAV(path); err == nil {
		t.Error("Expected error for invalid WAV")
	}
	if _, err := OpenWAV(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Error("Expected error for missing file")
	}
}

type countingSink struct {
	frames  int
	samples int
	maxLen  int
}

func (s *countingSink) ProcessAudio(frame []float32) {
	s.frames++
	s.samples += len(frame)
	if len(frame) > s.maxLen {
		s.maxLen = len(frame)
	}
}

func TestReplayDeliversAllSamples(t *testing.T) {
	r, err := OpenWAV(writeWAV(t, 48000, 1, make([]int, 1000)))
	if err != nil {
		t.Fatalf("OpenWAV failed: %v", err)
	}
	defer r.Close()

	sink := &countingSink{}
	n, err := Replay(context.Background(), r, sink, 128)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if n != 1000 || sink.samples != 1000 {
		t.Errorf("Expected 1000 samples, got %d (sink %d)", n, sink.samples)
	}
	if sink.maxLen > 128 {
		t.Errorf("Frame larger than requested: %d", sink.maxLen)
	}
}

func TestReplayHonoursCancel(t *testing.T) {
	r, err := OpenWAV(writeWAV(t, 48000, 1, make([]int, 1000)))
	if err != nil {
		t.Fatalf("OpenWAV failed: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Replay(ctx, r, &countingSink{}, 128); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestProbeWAV(t *testing.T) {
	path := writeWAV(t, 48000, 1, make([]int, 48000))
	rec, err := Probe(context.Background(), path)
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if rec.SampleRate != 48000 || rec.Channels != 1 || rec.BitDepth != 16 {
		t.Errorf("Unexpected recording info: %+v", rec)
	}
	if math.Abs(rec.DurationSec-1) > 0.01 {
		t.Errorf("Expected ~1s duration, got %v", rec.DurationSec)
	}
}

// requireFFmpeg skips tests that shell out when ffmpeg is not installed.
func requireFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH")
	}
}

func TestConvertToMonoWAV(t *testing.T) {
	requireFFmpeg(t)

	// half a second of stereo 44.1 kHz, encoded to FLAC so the input is not a WAV
	samples := make([]int, 44100)
	for i := range samples {
		samples[i] = 8000
	}
	src := writeWAV(t, 44100, 2, samples)
	flac := filepath.Join(t.TempDir(), "take.flac")
	if out, err := exec.Command("ffmpeg", "-y", "-v", "quiet", "-i", src, flac).CombinedOutput(); err != nil {
		t.Fatalf("Failed to encode FLAC: %v (%s)", err, out)
	}
	if IsWAV(flac) {
		t.Fatal("FLAC input reported as WAV")
	}

	outDir := filepath.Join(t.TempDir(), "converted")
	path, err := ConvertToMonoWAV(context.Background(), flac, outDir, ConvertWAVConfig{SampleRate: 48000})
	if err != nil {
		t.Fatalf("ConvertToMonoWAV failed: %v", err)
	}
	if filepath.Dir(path) != outDir || !IsWAV(path) {
		t.Errorf("Unexpected output path %s", path)
	}
	if _, err := os.Stat(path + ".tmp.wav"); !os.IsNotExist(err) {
		t.Errorf("Temporary file left behind: %v", err)
	}

	r, err := OpenWAV(path)
	if err != nil {
		t.Fatalf("OpenWAV on converted file failed: %v", err)
	}
	defer r.Close()
	if r.Channels() != 1 || r.SampleRate() != 48000 {
		t.Errorf("Expected mono 48000 Hz, got %d channels at %d Hz", r.Channels(), r.SampleRate())
	}
	if d := r.Duration().Seconds(); math.Abs(d-0.5) > 0.05 {
		t.Errorf("Expected ~0.5s after conversion, got %vs", d)
	}
}

func TestConvertToMonoWAVRejectsGarbage(t *testing.T) {
	requireFFmpeg(t)

	path := filepath.Join(t.TempDir(), "noise.mp3")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ConvertToMonoWAV(context.Background(), path, t.TempDir(), ConvertWAVConfig{}); err == nil {
		t.Error("Expected ffmpeg to fail on garbage input")
	}
}
