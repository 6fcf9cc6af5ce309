package pronounce_test

import (
	"math"
	"testing"

	"github.com/MrWong99/vozcards/internal/pronounce"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"a", "", 0.0},
		{"", "abc", 0.0},
		{"cat", "cat", 1.0},
		{"Cat", "cAT", 1.0},
		{"kitten", "sitting", 1.0 - 3.0/7.0},
		{"dawg", "dog", 0.5},
		{"xyz", "dog", 0.0},
		{"niño", "nino", 0.75},
	}
	for _, tt := range tests {
		got := pronounce.Similarity(tt.a, tt.b)
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
		if rev := pronounce.Similarity(tt.b, tt.a); math.Abs(rev-got) > 1e-9 {
			t.Errorf("Similarity not symmetric for (%q, %q): %f vs %f", tt.a, tt.b, got, rev)
		}
	}
}

func TestClassify_Ladder(t *testing.T) {
	t.Parallel()

	c := pronounce.NewClassifier()

	tests := []struct {
		name       string
		transcript string
		expected   string
		wantMatch  bool
		wantReason pronounce.Reason
	}{
		{"exact", "cat", "cat", true, pronounce.ReasonExact},
		{"exact after normalisation", "  Cat! ", "CAT", true, pronounce.ReasonExact},
		{"spoken inside expected", "ca", "cat", true, pronounce.ReasonContainedInExpected},
		{"expected inside spoken", "the cat", "cat", true, pronounce.ReasonContainsExpected},
		{"similar", "hose", "house", true, pronounce.ReasonSimilar},
		{"variant", "kitty", "cat", true, pronounce.ReasonVariant},
		{"variant for dog", "puppy", "dog", true, pronounce.ReasonVariant},
		{"loose phonetic", "dawg", "dog", true, pronounce.ReasonLoosePhonetic},
		{"loose phonetic two letters", "dx", "dog", true, pronounce.ReasonLoosePhonetic},
		{"no match", "xyz", "dog", false, pronounce.ReasonNone},
		{"first letter but too long", "dinosaur", "dog", false, pronounce.ReasonNone},
		{"empty transcript", "", "dog", false, pronounce.ReasonEmpty},
		{"punctuation only", "?!.", "dog", false, pronounce.ReasonEmpty},
		{"empty expected", "dog", "", false, pronounce.ReasonEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tt.transcript, tt.expected)
			if got.IsMatch != tt.wantMatch {
				t.Errorf("Classify(%q, %q).IsMatch = %v, want %v", tt.transcript, tt.expected, got.IsMatch, tt.wantMatch)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Classify(%q, %q).Reason = %s, want %s", tt.transcript, tt.expected, got.Reason, tt.wantReason)
			}
		})
	}
}

func TestClassify_SameWordAlwaysExact(t *testing.T) {
	t.Parallel()

	c := pronounce.NewClassifier()
	for _, w := range []string{"a", "dog", "Apple", "ice cream", "niño", "red_2"} {
		got := c.Classify(w, w)
		if !got.IsMatch || got.Reason != pronounce.ReasonExact {
			t.Errorf("Classify(%q, %q) = %+v, want exact match", w, w, got)
		}
	}
}

func TestClassify_DefaultThresholdPinned(t *testing.T) {
	t.Parallel()

	if pronounce.DefaultSimilarityThreshold != 0.6 {
		t.Fatalf("DefaultSimilarityThreshold = %v, want 0.6", pronounce.DefaultSimilarityThreshold)
	}
	if got := pronounce.NewClassifier().Threshold(); got != 0.6 {
		t.Errorf("Threshold() = %v, want 0.6", got)
	}
}

func TestClassify_ThresholdOption(t *testing.T) {
	t.Parallel()

	// "hose" vs "house" scores 0.8: a stricter threshold pushes it down to
	// the first-letter tier.
	c := pronounce.NewClassifier(pronounce.WithSimilarityThreshold(0.9))
	got := c.Classify("hose", "house")
	if !got.IsMatch || got.Reason != pronounce.ReasonLoosePhonetic {
		t.Errorf("Classify(hose, house) = %+v, want loose phonetic match", got)
	}
	if math.Abs(got.Score-0.8) > 1e-9 {
		t.Errorf("Score = %f, want 0.8", got.Score)
	}
}

func TestClassify_WithoutVariants(t *testing.T) {
	t.Parallel()

	c := pronounce.NewClassifier(pronounce.WithVariants(nil))
	got := c.Classify("puppy", "dog")
	if got.IsMatch {
		t.Errorf("Classify(puppy, dog) without variants = %+v, want no match", got)
	}
}

func TestClassify_CustomVariants(t *testing.T) {
	t.Parallel()

	table := pronounce.NewVariantTable("test", map[string][]string{
		"perro": {"pero", "bero"},
	})
	c := pronounce.NewClassifier(pronounce.WithVariants(table))

	got := c.Classify("bero", "perro")
	if !got.IsMatch {
		t.Fatalf("Classify(bero, perro) = %+v, want match", got)
	}
	// "bero" vs "perro" already scores 0.6 so similarity decides first.
	if got.Reason != pronounce.ReasonSimilar && got.Reason != pronounce.ReasonVariant {
		t.Errorf("Reason = %s, want similar or variant", got.Reason)
	}

	if got := c.Classify("kitty", "cat"); got.IsMatch {
		t.Errorf("Classify(kitty, cat) with custom table = %+v, want no match", got)
	}
}

func TestClassify_SoundAlike(t *testing.T) {
	t.Parallel()

	off := pronounce.NewClassifier()
	if got := off.Classify("nite", "knight"); got.IsMatch {
		t.Fatalf("Classify(nite, knight) with sound-alike off = %+v, want no match", got)
	}

	on := pronounce.NewClassifier(pronounce.WithSoundAlike(true))
	got := on.Classify("nite", "knight")
	if !got.IsMatch || got.Reason != pronounce.ReasonSoundsAlike {
		t.Errorf("Classify(nite, knight) with sound-alike on = %+v, want sounds_alike match", got)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"  Hello, World! ": "hello world",
		"¡Perro!":          "perro",
		"ÑANDÚ":            "ñandú",
		"snake_case":       "snake_case",
		"...":              "",
	}
	for in, want := range tests {
		if got := pronounce.Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReasonString(t *testing.T) {
	t.Parallel()

	if got := pronounce.ReasonLoosePhonetic.String(); got != "loose_phonetic" {
		t.Errorf("String() = %q", got)
	}
	if got := pronounce.Reason(99).String(); got != "unknown" {
		t.Errorf("String() = %q, want unknown", got)
	}
}
