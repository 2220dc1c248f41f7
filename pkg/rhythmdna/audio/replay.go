package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const DefaultReplayFrameSize = 128

// Source yields mono sample frames. FrameReader is one.
type Source interface {
	Next(frame []float32) (int, error)
}

// Sink consumes frames in the same way an audio callback would.
type Sink interface {
	ProcessAudio(frame []float32)
}

// Replay feeds src into sink in fixed-size frames, in order, as fast as the
// sink accepts them. It returns the number of samples delivered.
func Replay(ctx context.Context, src Source, sink Sink, frameSize int) (int, error) {
	if frameSize <= 0 {
		frameSize = DefaultReplayFrameSize
	}
	frame := make([]float32, frameSize)
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := src.Next(frame)
		if n > 0 {
			sink.ProcessAudio(frame[:n])
			total += n
		}
		if errors.Is(err, io.EOF) {
			return total, nil
		}
		if err != nil {
			return total, fmt.Errorf("replay: %w", err)
		}
	}
}
