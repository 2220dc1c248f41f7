package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned when a file has no valid RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV/RIFF file")

// FrameReader streams a PCM WAV file as mono float32 frames in [-1, 1].
// Multi-channel audio is averaged down to one channel.
type FrameReader struct {
	f        *os.File
	dec      *wav.Decoder
	buf      *goaudio.IntBuffer
	channels int
	rate     int
	scale    float32
	unsigned bool
	duration time.Duration
}

func OpenWAV(path string) (*FrameReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotWAV, path)
	}
	duration, err := dec.Duration()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading duration: %w", err)
	}
	if dec.NumChans == 0 || dec.BitDepth == 0 || dec.SampleRate == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: missing format chunk", ErrNotWAV)
	}

	return &FrameReader{
		f:        f,
		dec:      dec,
		channels: int(dec.NumChans),
		rate:     int(dec.SampleRate),
		scale:    float32(int64(1) << (dec.BitDepth - 1)),
		unsigned: dec.BitDepth == 8,
		duration: duration,
	}, nil
}

func (r *FrameReader) SampleRate() int { return r.rate }

func (r *FrameReader) Channels() int { return r.channels }

func (r *FrameReader) Duration() time.Duration { return r.duration }

// Next fills frame with up to len(frame) mono samples and returns how many
// were written. It returns io.EOF once the data chunk is exhausted.
func (r *FrameReader) Next(frame []float32) (int, error) {
	if len(frame) == 0 {
		return 0, nil
	}
	want := len(frame) * r.channels
	if r.buf == nil || len(r.buf.Data) != want {
		r.buf = &goaudio.IntBuffer{
			Format: &goaudio.Format{NumChannels: r.channels, SampleRate: r.rate},
			Data:   make([]int, want),
		}
	}

	n, err := r.dec.PCMBuffer(r.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("reading PCM data: %w", err)
	}
	frames := n / r.channels
	if frames == 0 {
		return 0, io.EOF
	}

	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < r.channels; c++ {
			v := r.buf.Data[i*r.channels+c]
			if r.unsigned {
				v -= 128
			}
			sum += float32(v) / r.scale
		}
		frame[i] = sum / float32(r.channels)
	}
	return frames, nil
}

func (r *FrameReader) Close() error {
	if r == nil || r.f == nil {
		return nil
	}
	return r.f.Close()
}
