package app

import (
	"strings"
	"time"

	"github.com/MrWong99/vozcards/internal/config"
	"github.com/MrWong99/vozcards/internal/deck"
	"github.com/MrWong99/vozcards/internal/game"
	"github.com/MrWong99/vozcards/internal/pronounce"
	"github.com/MrWong99/vozcards/pkg/types"
)

// policyFrom overlays the non-zero values of cfg on [game.DefaultPolicy].
// Negative values are kept so that Validate reports them.
func policyFrom(cfg *config.Config) game.Policy {
	p := game.DefaultPolicy()
	g := cfg.Game
	setInt(&p.CorrectPoints, g.CorrectPoints)
	setInt(&p.StarEvery, g.StarEvery)
	setInt(&p.MasteryThreshold, g.MasteryThreshold)
	setDur(&p.AdvanceDelay, g.AdvanceDelay)
	setDur(&p.RetryDelay, g.RetryDelay)
	setDur(&p.ErrorDelay, g.ErrorDelay)
	setDur(&p.SettleDelay, g.SettleDelay)
	setDur(&p.WriteTimeout, cfg.Storage.WriteTimeout)
	if g.SourceLanguage != "" {
		p.SourceLanguage = g.SourceLanguage
	}
	if g.TargetLanguage != "" {
		p.TargetLanguage = g.TargetLanguage
	}
	return p
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDur(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// classifierFrom builds the answer classifier for cfg. Variants from the
// config and from every loaded deck are merged over the built-in table.
func classifierFrom(cfg *config.Config, lib *deck.Library) *pronounce.Classifier {
	table := pronounce.DefaultVariants.
		Merge(pronounce.DefaultVariants.Version()+"+config", cfg.Variants).
		Merge(pronounce.DefaultVariants.Version()+"+config+decks", lib.Variants())

	opts := []pronounce.Option{pronounce.WithVariants(table)}
	if t := cfg.Game.SimilarityThreshold; t > 0 {
		opts = append(opts, pronounce.WithSimilarityThreshold(t))
	}
	if cfg.Game.SoundAlike != nil {
		opts = append(opts, pronounce.WithSoundAlike(*cfg.Game.SoundAlike))
	}
	return pronounce.NewClassifier(opts...)
}

// pinnedVoices maps the config's voice pins, keyed by primary language tag,
// onto the full tags the policy speaks in.
func pinnedVoices(cfg *config.Config, p game.Policy) map[string]types.VoiceProfile {
	out := make(map[string]types.VoiceProfile, len(cfg.Game.Voices))
	for tag, id := range cfg.Game.Voices {
		lang := tag
		for _, full := range []string{p.SourceLanguage, p.TargetLanguage} {
			if strings.EqualFold(primaryTag(full), tag) {
				lang = full
				break
			}
		}
		out[lang] = types.VoiceProfile{ID: id}
	}
	return out
}

func primaryTag(lang string) string {
	base, _, _ := strings.Cut(lang, "-")
	return base
}
