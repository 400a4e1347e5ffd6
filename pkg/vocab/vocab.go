// Package vocab holds the static per-level symbol vocabulary shared by the
// recitation model and the decode engine.
//
// Symbol id 0 is the CTC blank on every level and never has a label. A
// [Vocabulary] is read-only after construction and safe for concurrent use.
//
// The vocabulary must stay in lock-step with the model: looking up an id the
// vocabulary does not know is a programming error and is reported as
// [ErrUnknownSymbol] rather than replaced by a placeholder.
package vocab

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/muaalem/pkg/sifat"
)

// Blank is the reserved no-symbol id.
const Blank = 0

var (
	// ErrUnknownSymbol is matched by every [*UnknownSymbolError].
	ErrUnknownSymbol = errors.New("vocab: unknown symbol")

	// ErrUnknownLabel is returned when reference text or a reference label
	// cannot be mapped to a symbol id.
	ErrUnknownLabel = errors.New("vocab: unknown label")

	// ErrUnknownLevel is returned for lookups on a level the vocabulary has
	// no table for.
	ErrUnknownLevel = errors.New("vocab: unknown level")
)

//go:embed default.yaml
var defaultYAML []byte

// UnknownSymbolError reports a symbol id with no label on its level.
type UnknownSymbolError struct {
	Level sifat.Level
	ID    int
}

func (e *UnknownSymbolError) Error() string {
	return fmt.Sprintf("vocab: unknown symbol id %d on level %q", e.ID, e.Level)
}

// Is makes errors.Is(err, ErrUnknownSymbol) succeed.
func (e *UnknownSymbolError) Is(target error) bool {
	return target == ErrUnknownSymbol
}

type table struct {
	labels   map[int]string
	ids      map[string]int
	maxRunes int
}

// Vocabulary maps symbol ids to label text for every level.
type Vocabulary struct {
	levels map[sifat.Level]*table
}

// File is the YAML layout of a vocabulary file.
type File struct {
	Levels map[sifat.Level]map[int]string `yaml:"levels"`
}

// New builds a [Vocabulary] from per-level id→label maps. It rejects unknown
// levels, a label for the blank id, negative ids, empty labels and duplicate
// labels within a level.
func New(levels map[sifat.Level]map[int]string) (*Vocabulary, error) {
	var errs []error
	v := &Vocabulary{levels: make(map[sifat.Level]*table, len(levels))}

	for level, labels := range levels {
		if !level.IsValid() {
			errs = append(errs, fmt.Errorf("vocab: level %q is not recognised", level))
			continue
		}
		t := &table{
			labels: make(map[int]string, len(labels)),
			ids:    make(map[string]int, len(labels)),
		}
		for id, label := range labels {
			switch {
			case id == Blank:
				errs = append(errs, fmt.Errorf("vocab: level %q: id 0 is reserved for blank", level))
				continue
			case id < 0:
				errs = append(errs, fmt.Errorf("vocab: level %q: negative id %d", level, id))
				continue
			case label == "":
				errs = append(errs, fmt.Errorf("vocab: level %q: id %d has an empty label", level, id))
				continue
			}
			if prev, dup := t.ids[label]; dup {
				errs = append(errs, fmt.Errorf("vocab: level %q: label %q used by ids %d and %d", level, label, min(prev, id), max(prev, id)))
				continue
			}
			t.labels[id] = label
			t.ids[label] = id
			t.maxRunes = max(t.maxRunes, utf8.RuneCountInString(label))
		}
		v.levels[level] = t
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads a YAML vocabulary file from path.
func Load(path string) (*Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vocab: open %q: %w", path, err)
	}
	defer f.Close()

	v, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("vocab: parse %q: %w", path, err)
	}
	return v, nil
}

// LoadFromReader decodes a YAML vocabulary from r.
func LoadFromReader(r io.Reader) (*Vocabulary, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("vocab: decode yaml: %w", err)
	}
	return New(file.Levels)
}

// Default returns the vocabulary shipped with the package. It panics if the
// embedded file is invalid, which the package tests rule out.
func Default() *Vocabulary {
	v, err := LoadFromReader(strings.NewReader(string(defaultYAML)))
	if err != nil {
		panic("vocab: embedded default vocabulary is invalid: " + err.Error())
	}
	return v
}

// Levels returns the levels with a table, in canonical order.
func (v *Vocabulary) Levels() []sifat.Level {
	var out []sifat.Level
	for _, l := range sifat.AllLevels() {
		if _, ok := v.levels[l]; ok {
			out = append(out, l)
		}
	}
	return out
}

// Size returns the number of labelled symbols on level, excluding blank.
func (v *Vocabulary) Size(level sifat.Level) int {
	t, ok := v.levels[level]
	if !ok {
		return 0
	}
	return len(t.labels)
}

// Label returns the label of id on level.
func (v *Vocabulary) Label(level sifat.Level, id int) (string, error) {
	t, ok := v.levels[level]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	label, ok := t.labels[id]
	if !ok {
		return "", &UnknownSymbolError{Level: level, ID: id}
	}
	return label, nil
}

// ID returns the symbol id of label on level.
func (v *Vocabulary) ID(level sifat.Level, label string) (int, error) {
	t, ok := v.levels[level]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	id, ok := t.ids[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q on level %q", ErrUnknownLabel, label, level)
	}
	return id, nil
}

// Text joins the labels of ids on level.
func (v *Vocabulary) Text(level sifat.Level, ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		label, err := v.Label(level, id)
		if err != nil {
			return "", err
		}
		b.WriteString(label)
	}
	return b.String(), nil
}

// Tokenize splits text into symbol ids of level by greedy longest match
// against the level's labels.
func (v *Vocabulary) Tokenize(level sifat.Level, text string) ([]int, error) {
	t, ok := v.levels[level]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	runes := []rune(text)
	ids := make([]int, 0, len(runes))
	for pos := 0; pos < len(runes); {
		matched := false
		for n := min(t.maxRunes, len(runes)-pos); n > 0; n-- {
			if id, ok := t.ids[string(runes[pos:pos+n])]; ok {
				ids = append(ids, id)
				pos += n
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("%w: %q at rune %d on level %q", ErrUnknownLabel, string(runes[pos]), pos, level)
		}
	}
	return ids, nil
}

// IDs returns the sorted symbol ids of level.
func (v *Vocabulary) IDs(level sifat.Level) []int {
	t, ok := v.levels[level]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(t.labels))
	for id := range t.labels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
