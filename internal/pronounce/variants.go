package pronounce

import (
	"maps"
	"slices"
	"strings"
)

// VariantTable maps an expected word to spellings a recogniser commonly
// produces when a child says that word. The table is read-only after
// construction and safe for concurrent use.
type VariantTable struct {
	version string
	entries map[string][]string
}

// NewVariantTable builds a table from entries. Keys and variants are
// normalised the same way utterances are, and empty variants are dropped.
func NewVariantTable(version string, entries map[string][]string) *VariantTable {
	t := &VariantTable{version: version, entries: make(map[string][]string, len(entries))}
	for word, variants := range entries {
		key := Normalize(word)
		if key == "" {
			continue
		}
		for _, v := range variants {
			if v = Normalize(v); v != "" && !slices.Contains(t.entries[key], v) {
				t.entries[key] = append(t.entries[key], v)
			}
		}
	}
	return t
}

// DefaultVariants is version 1 of the built-in variant table.
var DefaultVariants = NewVariantTable("v1", map[string][]string{
	"cat":   {"kat", "cot", "cut", "cats", "kitty"},
	"dog":   {"dug", "dok", "dogs", "doggy", "puppy"},
	"bird":  {"burd", "berd", "bird", "birdy"},
	"house": {"hous", "haus", "home"},
	"apple": {"apel", "aple", "appel", "apul"},
	"red":   {"rad", "reed", "reds"},
})

// Version identifies the table revision, e.g. for logging which table
// produced a classification.
func (t *VariantTable) Version() string {
	if t == nil {
		return ""
	}
	return t.version
}

// Variants returns the accepted variants for expected, or nil.
func (t *VariantTable) Variants(expected string) []string {
	if t == nil {
		return nil
	}
	return slices.Clone(t.entries[Normalize(expected)])
}

// Len returns the number of words that have variants.
func (t *VariantTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Merge returns a new table holding t's entries plus extra. The result takes
// version; t is left untouched.
func (t *VariantTable) Merge(version string, extra map[string][]string) *VariantTable {
	combined := make(map[string][]string, t.Len()+len(extra))
	if t != nil {
		maps.Copy(combined, t.entries)
	}
	for word, variants := range extra {
		key := Normalize(word)
		combined[key] = append(slices.Clone(combined[key]), variants...)
	}
	return NewVariantTable(version, combined)
}

// match reports whether spoken contains, or is contained by, any variant of
// expected. Both arguments must already be normalised.
func (t *VariantTable) match(spoken, expected string) bool {
	if t == nil {
		return false
	}
	for _, v := range t.entries[expected] {
		if strings.Contains(spoken, v) || strings.Contains(v, spoken) {
			return true
		}
	}
	return false
}
