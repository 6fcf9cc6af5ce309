package pronounce

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

const (
	// DefaultSimilarityThreshold is the minimum [Similarity] accepted by the
	// similarity tier.
	DefaultSimilarityThreshold = 0.6

	// looseMaxLengthDiff and looseMinLength bound the first-letter tier.
	looseMaxLengthDiff = 2
	looseMinLength     = 2
)

// Reason names the ladder tier that decided a classification.
type Reason int

const (
	// ReasonNone means every tier was evaluated and none accepted.
	ReasonNone Reason = iota

	// ReasonEmpty means the utterance or the expected word normalised to
	// nothing, so no tier could be evaluated.
	ReasonEmpty

	// ReasonExact means the normalised strings are equal.
	ReasonExact

	// ReasonContainedInExpected means the expected word contains the spoken one.
	ReasonContainedInExpected

	// ReasonContainsExpected means the spoken utterance contains the expected word.
	ReasonContainsExpected

	// ReasonSimilar means the edit-distance similarity met the threshold.
	ReasonSimilar

	// ReasonVariant means the utterance matched a known misrecognition.
	ReasonVariant

	// ReasonSoundsAlike means the two share a Double Metaphone code. This tier
	// only runs when enabled with [WithSoundAlike].
	ReasonSoundsAlike

	// ReasonLoosePhonetic means the first letters agree and the lengths are close.
	ReasonLoosePhonetic
)

// String returns the stable identifier used in logs and metrics.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonEmpty:
		return "empty"
	case ReasonExact:
		return "exact"
	case ReasonContainedInExpected:
		return "contained_in_expected"
	case ReasonContainsExpected:
		return "contains_expected"
	case ReasonSimilar:
		return "similar"
	case ReasonVariant:
		return "variant"
	case ReasonSoundsAlike:
		return "sounds_alike"
	case ReasonLoosePhonetic:
		return "loose_phonetic"
	default:
		return "unknown"
	}
}

// Result is the outcome of a single classification.
type Result struct {
	IsMatch bool
	Reason  Reason

	// Spoken and Expected are the normalised inputs.
	Spoken   string
	Expected string

	// Score is the edit-distance similarity of the normalised inputs. It is
	// zero when the result is [ReasonEmpty].
	Score float64
}

// Option is a functional option for configuring a [Classifier].
type Option func(*Classifier)

// WithSimilarityThreshold sets the minimum similarity accepted by the
// similarity tier. Default: 0.6.
func WithSimilarityThreshold(threshold float64) Option {
	return func(c *Classifier) {
		c.threshold = threshold
	}
}

// WithVariants replaces the variant table. A nil table disables the tier.
func WithVariants(t *VariantTable) Option {
	return func(c *Classifier) {
		c.variants = t
	}
}

// WithSoundAlike enables the Double Metaphone tier between the variant table
// and the first-letter heuristic. Disabled by default.
func WithSoundAlike(enabled bool) Option {
	return func(c *Classifier) {
		c.soundAlike = enabled
	}
}

// Classifier applies the match ladder. It is read-only after construction
// and safe for concurrent use.
type Classifier struct {
	threshold  float64
	variants   *VariantTable
	soundAlike bool
}

// NewClassifier returns a [Classifier] with the default threshold and the
// built-in [DefaultVariants] table, modified by opts.
func NewClassifier(opts ...Option) *Classifier {
	c := &Classifier{
		threshold: DefaultSimilarityThreshold,
		variants:  DefaultVariants,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Threshold returns the similarity threshold in effect.
func (c *Classifier) Threshold() float64 { return c.threshold }

// Classify decides whether transcript counts as expectedWord.
func (c *Classifier) Classify(transcript, expectedWord string) Result {
	spoken := Normalize(transcript)
	expected := Normalize(expectedWord)

	res := Result{Spoken: spoken, Expected: expected}
	if spoken == "" || expected == "" {
		res.Reason = ReasonEmpty
		return res
	}
	res.Score = Similarity(spoken, expected)

	switch {
	case spoken == expected:
		res.Reason = ReasonExact
	case strings.Contains(expected, spoken):
		res.Reason = ReasonContainedInExpected
	case strings.Contains(spoken, expected):
		res.Reason = ReasonContainsExpected
	case res.Score >= c.threshold:
		res.Reason = ReasonSimilar
	case c.variants.match(spoken, expected):
		res.Reason = ReasonVariant
	case c.soundAlike && soundsAlike(spoken, expected):
		res.Reason = ReasonSoundsAlike
	case looseMatch(spoken, expected):
		res.Reason = ReasonLoosePhonetic
	default:
		res.Reason = ReasonNone
		return res
	}
	res.IsMatch = true
	return res
}

// Normalize lower-cases s, removes every rune that is neither a letter, a
// digit, an underscore nor whitespace, and trims surrounding whitespace.
func Normalize(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}

func looseMatch(spoken, expected string) bool {
	sl := utf8.RuneCountInString(spoken)
	el := utf8.RuneCountInString(expected)
	if sl < looseMinLength {
		return false
	}
	diff := sl - el
	if diff < 0 {
		diff = -diff
	}
	if diff > looseMaxLengthDiff {
		return false
	}
	s, _ := utf8.DecodeRuneInString(spoken)
	e, _ := utf8.DecodeRuneInString(expected)
	return s == e
}

func soundsAlike(spoken, expected string) bool {
	a := metaphoneCodes(strings.Fields(spoken))
	b := metaphoneCodes(strings.Fields(expected))
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// metaphoneCodes returns the union of primary and secondary Double Metaphone
// codes for tokens, excluding empty codes.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}
