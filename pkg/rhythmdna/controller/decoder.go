package controller

import (
	"errors"
	"fmt"
	"math"

	"gitlab.com/gomidi/midi/v2"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
)

// DefaultDuplicateWindowMs is how close two note-ons for one voice may be
// before the second is treated as a hardware double trigger.
const DefaultDuplicateWindowMs = 10

var ErrMalformedMessage = errors.New("malformed MIDI message")

// VoiceMap maps MIDI note numbers to drum voices.
type VoiceMap map[uint8]models.Voice

// GeneralMIDIDrums is the General MIDI percussion key map.
func GeneralMIDIDrums() VoiceMap {
	return VoiceMap{
		35: models.VoiceKick,
		36: models.VoiceKick,
		37: models.VoiceSnare, // side stick
		38: models.VoiceSnare,
		40: models.VoiceSnare,
		41: models.VoiceFloorTom,
		43: models.VoiceFloorTom,
		42: models.VoiceHiHat,
		44: models.VoiceHiHat, // pedal
		46: models.VoiceOpenHat,
		45: models.VoiceTom2,
		47: models.VoiceTom2,
		48: models.VoiceTom1,
		50: models.VoiceTom1,
		49: models.VoiceCrash,
		52: models.VoiceCrash,
		55: models.VoiceCrash,
		57: models.VoiceCrash,
		51: models.VoiceRide,
		53: models.VoiceRide,
		59: models.VoiceRide,
	}
}

// Voice returns the voice for a note, VoiceOther when unmapped.
func (m VoiceMap) Voice(note uint8) models.Voice {
	if v, ok := m[note]; ok {
		return v
	}
	return models.VoiceOther
}

type Config struct {
	Voices            VoiceMap
	DuplicateWindowMs float64
	// Channel restricts decoding to one MIDI channel (0-15); -1 accepts all.
	Channel int
}

func DefaultConfig() Config {
	return Config{
		Voices:            GeneralMIDIDrums(),
		DuplicateWindowMs: DefaultDuplicateWindowMs,
		Channel:           -1,
	}
}

// Decoder turns raw controller messages into hit events. It is invoked once
// per incoming message and is not safe for concurrent use.
type Decoder struct {
	voices  VoiceMap
	window  float64
	channel int
	last    map[models.Voice]float64
}

func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.Voices == nil {
		cfg.Voices = GeneralMIDIDrums()
	}
	if cfg.DuplicateWindowMs < 0 || math.IsNaN(cfg.DuplicateWindowMs) {
		return nil, fmt.Errorf("duplicate window must be non-negative, got %v", cfg.DuplicateWindowMs)
	}
	if cfg.Channel < -1 || cfg.Channel > 15 {
		return nil, fmt.Errorf("channel must be -1 or 0-15, got %d", cfg.Channel)
	}
	return &Decoder{
		voices:  cfg.Voices,
		window:  cfg.DuplicateWindowMs,
		channel: cfg.Channel,
		last:    make(map[models.Voice]float64),
	}, nil
}

// Decode interprets one message received at atMs. It reports a hit only for
// a note-on with non-zero velocity that is not a double trigger. System and
// real-time messages, note-offs and other channel messages are ignored
// without error.
func (d *Decoder) Decode(msg []byte, atMs float64) (models.HitEvent, bool, error) {
	if len(msg) == 0 {
		return models.HitEvent{}, false, fmt.Errorf("%w: empty", ErrMalformedMessage)
	}
	status := msg[0]
	if status >= 0xF0 {
		return models.HitEvent{}, false, nil
	}
	if status < 0x80 {
		return models.HitEvent{}, false, fmt.Errorf("%w: missing status byte 0x%02X", ErrMalformedMessage, status)
	}
	if status&0xF0 != 0x90 {
		return models.HitEvent{}, false, nil
	}
	if len(msg) < 3 {
		return models.HitEvent{}, false, fmt.Errorf("%w: note-on with %d bytes", ErrMalformedMessage, len(msg))
	}
	if msg[1] > 0x7F || msg[2] > 0x7F {
		return models.HitEvent{}, false, fmt.Errorf("%w: data byte out of range", ErrMalformedMessage)
	}

	var ch, key, vel uint8
	if !midi.Message(msg[:3]).GetNoteStart(&ch, &key, &vel) {
		// note-on with velocity 0 is a note-off
		return models.HitEvent{}, false, nil
	}
	if d.channel >= 0 && int(ch) != d.channel {
		return models.HitEvent{}, false, nil
	}

	voice := d.voices.Voice(key)
	if prev, ok := d.last[voice]; ok && atMs-prev < d.window {
		return models.HitEvent{}, false, nil
	}
	d.last[voice] = atMs

	return models.HitEvent{
		TimeMs:      atMs,
		Voice:       voice,
		Velocity:    vel,
		HasVelocity: true,
		Source:      models.SourceController,
	}, true, nil
}

// Reset forgets duplicate-suppression history.
func (d *Decoder) Reset() {
	clear(d.last)
}
