package deck

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// LoadFile reads, parses and validates a deck YAML file from disk.
func LoadFile(path string) (*Deck, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("deck: open %q: %w", path, err)
	}
	defer f.Close()

	d, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("deck: load %q: %w", path, err)
	}
	return d, nil
}

// LoadFromReader parses and validates deck YAML from r.
func LoadFromReader(r io.Reader) (*Deck, error) {
	var d Deck
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true) // reject unknown keys to catch typos such as "englsh"
	if err := dec.Decode(&d); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("deck: empty document")
		}
		return nil, fmt.Errorf("deck: decode yaml: %w", err)
	}
	if err := Validate(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadPaths loads every deck named by paths. A directory contributes all of
// its *.yaml and *.yml files in name order. Every failure is reported; decks
// that loaded are returned alongside the joined error.
func LoadPaths(paths []string) ([]*Deck, error) {
	var (
		decks []*Deck
		errs  []error
	)
	for _, p := range paths {
		files, err := expand(p)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, file := range files {
			d, err := LoadFile(file)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			decks = append(decks, d)
		}
	}
	return decks, errors.Join(errs...)
}

func expand(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("deck: stat %q: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("deck: read dir %q: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// slug turns an English word into an ID fragment: lower case, letters and
// digits kept, runs of anything else collapsed into one dash.
func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
