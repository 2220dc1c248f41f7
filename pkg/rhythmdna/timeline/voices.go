package timeline

import (
	"unicode"

	"github.com/himanishpuri/RhythmDNA/pkg/models"
)

var symbolVoices = map[rune]models.Voice{
	'K': models.VoiceKick,
	'S': models.VoiceSnare,
	'H': models.VoiceHiHat,
	'O': models.VoiceOpenHat,
	'T': models.VoiceTom1,
	'M': models.VoiceTom2,
	'F': models.VoiceFloorTom,
	'C': models.VoiceCrash,
	'R': models.VoiceRide,
	'X': models.VoiceAny,
}

func voiceForSymbol(r rune) (models.Voice, bool) {
	v, ok := symbolVoices[unicode.ToUpper(r)]
	return v, ok
}

// dynamicFor resolves a step's dynamic. An explicit annotation wins over
// the case of the voice symbol; lowercase symbols are ghost notes.
func dynamicFor(symbol, annotation rune) models.Dynamic {
	switch annotation {
	case 'g', 'G':
		return models.DynamicGhost
	case 'a', 'A', '>':
		return models.DynamicAccent
	case 0:
		if unicode.IsLower(symbol) {
			return models.DynamicGhost
		}
		return models.DynamicNormal
	default:
		return models.DynamicNormal
	}
}
