package timeline

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
)

// Mode selects how voices are resolved while building.
type Mode int

const (
	// ModeController keeps every voice so hits can be filtered by drum.
	ModeController Mode = iota
	// ModeMicrophone collapses every step to a single VoiceAny note, since a
	// microphone cannot tell drums apart.
	ModeMicrophone
)

// Timeline is an immutable, time-ordered list of expected notes for one pass.
type Timeline struct {
	name        string
	bpm         float64
	mode        Mode
	notes       []models.ExpectedNote
	stepCount   int
	durationMs  float64
	fingerprint string
}

// Build converts a pattern into a timeline. It always builds from scratch.
func Build(p Pattern, mode Mode) (*Timeline, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var (
		notes     []models.ExpectedNote
		offset    float64
		stepCount int
		seq       int
	)

	for si, seg := range p.Segments {
		stepMs, err := seg.StepDurationMs(p.BPM)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", si, err)
		}
		steps, err := seg.steps()
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", si, err)
		}

		for rep := 0; rep < seg.Repeat; rep++ {
			for _, st := range steps {
				for _, sym := range resolve(st.voices, mode) {
					voice, _ := voiceForSymbol(sym)
					if mode == ModeMicrophone {
						voice = models.VoiceAny
					}
					notes = append(notes, models.ExpectedNote{
						TimeMs:        offset,
						Voice:         voice,
						SequenceIndex: seq,
						Dynamic:       dynamicFor(sym, st.dynamic),
						Sticking:      st.sticking,
					})
					seq++
				}
				offset += stepMs
				stepCount++
			}
		}
	}

	if len(notes) == 0 {
		return nil, ErrEmptyTimeline
	}

	return &Timeline{
		name:        p.Name,
		bpm:         p.BPM,
		mode:        mode,
		notes:       notes,
		stepCount:   stepCount,
		durationMs:  offset,
		fingerprint: fingerprint(notes),
	}, nil
}

// resolve returns the symbols struck on a step. In microphone mode a group
// collapses to its loudest-looking member: an uppercase symbol if there is one.
func resolve(voices []rune, mode Mode) []rune {
	if mode != ModeMicrophone || len(voices) <= 1 {
		return voices
	}
	for _, r := range voices {
		if dynamicFor(r, 0) != models.DynamicGhost {
			return []rune{r}
		}
	}
	return voices[:1]
}

func fingerprint(notes []models.ExpectedNote) string {
	h := sha256.New()
	var buf [8]byte
	for _, n := range notes {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(n.TimeMs))
		h.Write(buf[:])
		h.Write([]byte(n.Voice))
		h.Write([]byte(n.Dynamic))
		h.Write([]byte(n.Sticking))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// Notes returns a copy of the expected notes.
func (t *Timeline) Notes() []models.ExpectedNote {
	out := make([]models.ExpectedNote, len(t.notes))
	copy(out, t.notes)
	return out
}

func (t *Timeline) Len() int            { return len(t.notes) }
func (t *Timeline) Name() string        { return t.name }
func (t *Timeline) BPM() float64        { return t.bpm }
func (t *Timeline) Mode() Mode          { return t.mode }
func (t *Timeline) StepCount() int      { return t.stepCount }
func (t *Timeline) DurationMs() float64 { return t.durationMs }

// Fingerprint identifies the note content; equal inputs give equal fingerprints.
func (t *Timeline) Fingerprint() string { return t.fingerprint }
