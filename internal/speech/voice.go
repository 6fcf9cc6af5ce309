package speech

import (
	"strings"

	"github.com/MrWong99/vozcards/pkg/types"
)

// Prosody is the delivery applied to one language: slower and slightly
// brighter than a default voice, which young learners follow more easily.
type Prosody struct {
	Rate   float64
	Pitch  float64
	Volume float64

	// Preferred lists voice names to pick first when the provider offers them.
	Preferred []string
}

// avoidVoice marks voice names that tend to sound robotic to children.
const avoidVoice = "Google"

var prosodies = map[string]Prosody{
	"es": {
		Rate: 0.85, Pitch: 1.0, Volume: 0.9,
		Preferred: []string{"Elena", "Diego", "Mónica", "Jorge"},
	},
	"en": {
		Rate: 0.9, Pitch: 1.1, Volume: 0.9,
		Preferred: []string{"Samantha", "Victoria", "Karen", "Susan", "Allison", "Ava", "Zoe"},
	},
}

// ProsodyFor returns the prosody for the BCP-47 tag lang. Unknown languages
// get a neutral delivery.
func ProsodyFor(lang string) Prosody {
	if p, ok := prosodies[primaryTag(lang)]; ok {
		return p
	}
	return Prosody{Rate: 1, Pitch: 1, Volume: 1}
}

// SelectVoice picks the best voice for lang from voices. The order of
// preference is:
//
//  1. a local voice for exactly lang,
//  2. a voice of the same language whose name is in preferred,
//  3. a local voice of the same language,
//  4. a voice of the same language not named after [avoidVoice],
//  5. any voice of the same language.
//
// ok is false when no voice speaks the language.
func SelectVoice(voices []types.VoiceProfile, lang string, preferred []string) (types.VoiceProfile, bool) {
	primary := primaryTag(lang)
	var sameLang []types.VoiceProfile
	for _, v := range voices {
		if primaryTag(v.Language) == primary {
			sameLang = append(sameLang, v)
		}
	}
	if len(sameLang) == 0 {
		return types.VoiceProfile{}, false
	}

	for _, v := range sameLang {
		if v.Local && strings.EqualFold(v.Language, lang) {
			return v, true
		}
	}
	for _, name := range preferred {
		for _, v := range sameLang {
			if strings.Contains(strings.ToLower(v.Name), strings.ToLower(name)) {
				return v, true
			}
		}
	}
	for _, v := range sameLang {
		if v.Local {
			return v, true
		}
	}
	for _, v := range sameLang {
		if !strings.Contains(v.Name, avoidVoice) {
			return v, true
		}
	}
	return sameLang[0], true
}

// primaryTag returns the lower-cased language subtag of a BCP-47 tag.
func primaryTag(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i >= 0 {
		lang = lang[:i]
	}
	return lang
}
