package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

var (
	ErrInvalidTempo         = errors.New("tempo must be a positive number of beats per minute")
	ErrNoSegments           = errors.New("pattern has no segments")
	ErrInvalidTimeSignature = errors.New("invalid time signature")
	ErrInvalidSubdivision   = errors.New("subdivision must be positive")
	ErrInvalidRepeat        = errors.New("repeat count must be at least 1")
	ErrEmptyVoicing         = errors.New("voicing is empty")
	ErrUnknownSymbol        = errors.New("unknown voicing symbol")
	ErrUnbalancedGroup      = errors.New("unbalanced voice group")
	ErrInvalidGroup         = errors.New("voice group must hold only voice symbols")
	ErrAnnotationLength     = errors.New("annotation longer than voicing")
	ErrEmptyTimeline        = errors.New("pattern contains no notes")
)

// Pattern is a symbolic rhythm pattern played at a fixed tempo.
type Pattern struct {
	Name     string    `json:"name"`
	BPM      float64   `json:"bpm"`
	Segments []Segment `json:"segments"`
}

// Segment is a run of grid steps sharing a time signature and subdivision.
//
// Voicing holds one symbol per step, whitespace ignored. A bracket group such
// as "[KH]" strikes several voices on a single step. Subdivision also
// decodes from the older "subdivision" key.
type Segment struct {
	TimeSignature string `json:"timeSignature"`
	Subdivision   int    `json:"subdivisionPerBeat"`
	Voicing       string `json:"voicing"`
	Dynamics      string `json:"dynamics,omitempty"`
	Sticking      string `json:"sticking,omitempty"`
	Repeat        int    `json:"repeat"`
}

func (s *Segment) UnmarshalJSON(data []byte) error {
	type plain Segment
	aux := struct {
		*plain
		Legacy *int `json:"subdivision"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Legacy != nil && s.Subdivision == 0 {
		s.Subdivision = *aux.Legacy
	}
	return nil
}

// ParsePattern decodes a JSON pattern and validates it.
func ParsePattern(data []byte) (Pattern, error) {
	var p Pattern
	if err := json.Unmarshal(data, &p); err != nil {
		return Pattern{}, fmt.Errorf("decoding pattern: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Pattern{}, err
	}
	return p, nil
}

// LoadPattern reads a JSON pattern file.
func LoadPattern(path string) (Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pattern{}, fmt.Errorf("reading pattern %s: %w", path, err)
	}
	return ParsePattern(data)
}

// Validate checks tempo and every segment without building a timeline.
func (p Pattern) Validate() error {
	if p.BPM <= 0 || math.IsNaN(p.BPM) || math.IsInf(p.BPM, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidTempo, p.BPM)
	}
	if len(p.Segments) == 0 {
		return ErrNoSegments
	}
	for i, seg := range p.Segments {
		if _, err := seg.steps(); err != nil {
			return fmt.Errorf("segment %d: %w", i, err)
		}
	}
	return nil
}

// beatUnit parses "n/d" and returns d.
func (s Segment) beatUnit() (int, error) {
	num, den, ok := strings.Cut(strings.TrimSpace(s.TimeSignature), "/")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeSignature, s.TimeSignature)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeSignature, s.TimeSignature)
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeSignature, s.TimeSignature)
	}
	return d, nil
}

// StepDurationMs is the length of one grid step at the given tempo.
func (s Segment) StepDurationMs(bpm float64) (float64, error) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidTempo, bpm)
	}
	unit, err := s.beatUnit()
	if err != nil {
		return 0, err
	}
	if s.Subdivision <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSubdivision, s.Subdivision)
	}
	return 60000.0 / bpm / (float64(s.Subdivision) / float64(unit)), nil
}

// step is one grid position after parsing; an empty voice list is a rest.
type step struct {
	voices   []rune
	dynamic  rune
	sticking string
}

func (s Segment) steps() ([]step, error) {
	if _, err := s.beatUnit(); err != nil {
		return nil, err
	}
	if s.Subdivision <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSubdivision, s.Subdivision)
	}
	if s.Repeat < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRepeat, s.Repeat)
	}

	steps, err := parseVoicing(s.Voicing)
	if err != nil {
		return nil, err
	}

	dyn := compact(s.Dynamics)
	if len(dyn) > len(steps) {
		return nil, fmt.Errorf("%w: dynamics has %d steps, voicing %d", ErrAnnotationLength, len(dyn), len(steps))
	}
	for i, r := range dyn {
		if !isRest(r) {
			steps[i].dynamic = r
		}
	}

	stick := compact(s.Sticking)
	if len(stick) > len(steps) {
		return nil, fmt.Errorf("%w: sticking has %d steps, voicing %d", ErrAnnotationLength, len(stick), len(steps))
	}
	for i, r := range stick {
		if !isRest(r) {
			steps[i].sticking = string(r)
		}
	}
	return steps, nil
}

func parseVoicing(voicing string) ([]step, error) {
	var steps []step
	var group []rune
	inGroup := false

	for _, r := range voicing {
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '|':
			continue
		case r == '[':
			if inGroup {
				return nil, fmt.Errorf("%w: nested '['", ErrUnbalancedGroup)
			}
			inGroup = true
			group = nil
		case r == ']':
			if !inGroup {
				return nil, fmt.Errorf("%w: unexpected ']'", ErrUnbalancedGroup)
			}
			inGroup = false
			if len(group) == 0 {
				return nil, fmt.Errorf("%w: empty group", ErrInvalidGroup)
			}
			steps = append(steps, step{voices: group})
		case isRest(r):
			if inGroup {
				return nil, fmt.Errorf("%w: rest %q inside group", ErrInvalidGroup, r)
			}
			steps = append(steps, step{})
		default:
			if _, ok := voiceForSymbol(r); !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnknownSymbol, r)
			}
			if inGroup {
				group = append(group, r)
			} else {
				steps = append(steps, step{voices: []rune{r}})
			}
		}
	}
	if inGroup {
		return nil, fmt.Errorf("%w: missing ']'", ErrUnbalancedGroup)
	}
	if len(steps) == 0 {
		return nil, ErrEmptyVoicing
	}
	return steps, nil
}

// compact drops whitespace and bar lines so annotations align with voicing steps.
func compact(s string) []rune {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '|' {
			continue
		}
		out = append(out, r)
	}
	return out
}

func isRest(r rune) bool {
	return r == '-' || r == '.' || r == '_'
}
