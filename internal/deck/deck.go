// Package deck loads vocabulary decks: the ordered Spanish/English card sets
// a learner practises. Decks are authored as YAML files or imported from
// spreadsheets, validated, kept in a [Library] and written into a
// [progress.Store] so progress can be tracked against them.
package deck

import (
	"github.com/samber/lo"

	"github.com/MrWong99/vozcards/pkg/types"
)

// Deck is the top-level structure of a deck YAML file.
//
// Example:
//
//	set:
//	  id: animals
//	  name: "Los animales"
//	  level: 1
//	cards:
//	  - id: animals-cat
//	    spanish: gato
//	    english: cat
//	    difficulty: 1
//	variants:
//	  cat: [kat, cad]
type Deck struct {
	Set   SetMeta   `yaml:"set"`
	Cards []CardDef `yaml:"cards"`

	// Variants lists accepted mis-hearings per English word. They are merged
	// into the pronunciation table when the deck is loaded.
	Variants map[string][]string `yaml:"variants,omitempty"`
}

// SetMeta identifies a deck.
type SetMeta struct {
	// ID is the card set identifier learners' progress is keyed by.
	ID string `yaml:"id"`

	// Name is the display name shown to the learner.
	Name string `yaml:"name"`

	// Level orders decks from easiest (1) upwards.
	Level int `yaml:"level"`
}

// CardDef is one card as authored in a deck file.
type CardDef struct {
	// ID is optional; cards without one get "<set id>-<english>".
	ID string `yaml:"id,omitempty"`

	Spanish    string `yaml:"spanish"`
	English    string `yaml:"english"`
	Difficulty int    `yaml:"difficulty,omitempty"`
	ImageURL   string `yaml:"image_url,omitempty"`
}

// Summary describes a loaded deck without its cards.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Level int    `json:"level"`
	Cards int    `json:"cards"`
}

// defaultDifficulty is used for cards that do not state one.
const defaultDifficulty = 1

// CardSet converts d into the storage representation, filling in default
// card IDs and difficulties. Card order is preserved.
func (d *Deck) CardSet() types.CardSet {
	return types.CardSet{
		ID:    d.Set.ID,
		Name:  d.Set.Name,
		Level: d.Set.Level,
		Cards: lo.Map(d.Cards, func(c CardDef, _ int) types.Flashcard {
			return types.Flashcard{
				ID:         cardID(d.Set.ID, c),
				SourceText: c.Spanish,
				TargetText: c.English,
				Difficulty: lo.Ternary(c.Difficulty == 0, defaultDifficulty, c.Difficulty),
				ImageURL:   c.ImageURL,
			}
		}),
	}
}

// Summary returns the deck's listing entry.
func (d *Deck) Summary() Summary {
	return Summary{ID: d.Set.ID, Name: d.Set.Name, Level: d.Set.Level, Cards: len(d.Cards)}
}

func cardID(setID string, c CardDef) string {
	if c.ID != "" {
		return c.ID
	}
	return setID + "-" + slug(c.English)
}
