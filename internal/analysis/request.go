package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/muaalem/pkg/ctc"
	"github.com/MrWong99/muaalem/pkg/explain"
	"github.com/MrWong99/muaalem/pkg/multilevel"
	"github.com/MrWong99/muaalem/pkg/sifat"
	"github.com/MrWong99/muaalem/pkg/vocab"
)

// ErrInvalidRequest is returned for requests that cannot be analysed as
// given. It is always wrapped with a description.
var ErrInvalidRequest = errors.New("analysis: invalid request")

// Request is one recited utterance plus its phonetized reference.
//
// Model output is given per level either as argmax frames in Streams or as
// frames×classes probability matrices in Probabilities; a level must not
// appear in both.
type Request struct {
	// ID identifies the request in the report. Generated when empty.
	ID string `json:"id,omitempty"`

	Streams       map[sifat.Level]ctc.FrameStream `json:"streams,omitempty"`
	Probabilities map[sifat.Level][][]float64     `json:"probabilities,omitempty"`

	// Lengths holds the number of real frames per level for padded input.
	Lengths map[sifat.Level]int `json:"lengths,omitempty"`

	Reference Reference `json:"reference"`

	// Elongations lists sustained phonemes to check against a mandated
	// frame count.
	Elongations []ElongationTarget `json:"elongations,omitempty"`
}

// Reference is the phonetizer output for the recited verse.
type Reference struct {
	Sura        *int   `json:"sura,omitempty"`
	Aya         *int   `json:"aya,omitempty"`
	UthmaniText string `json:"uthmani_text,omitempty"`

	// PhonemesText is the expected phoneme string of the whole verse.
	PhonemesText string `json:"phonemes_text"`

	// Groups splits PhonemesText into phoneme groups, one per sifa record.
	// When empty it is derived with [explain.ChunkPhonemes].
	Groups []string `json:"groups,omitempty"`

	// ExpectedSifat holds one entry per group. Levels fully labelled here
	// are aligned against these labels.
	ExpectedSifat []ExpectedSifa `json:"expected_sifat,omitempty"`

	// Words holds the per-word phonetization used to map groups back to
	// source words.
	Words []Word `json:"words,omitempty"`
}

// Word is one source word with its own phonetization.
type Word struct {
	Text     string `json:"text"`
	Phonemes string `json:"phonemes"`
}

// ExpectedSifa is the expected label of every feature level for one group.
// Empty strings mean no expectation.
type ExpectedSifa struct {
	Index            int    `json:"index"`
	Phonemes         string `json:"phonemes"`
	HamsOrJahr       string `json:"hams_or_jahr,omitempty"`
	ShiddaOrRakhawa  string `json:"shidda_or_rakhawa,omitempty"`
	TafkheemOrTaqeeq string `json:"tafkheem_or_taqeeq,omitempty"`
	Itbaq            string `json:"itbaq,omitempty"`
	Safeer           string `json:"safeer,omitempty"`
	Qalqla           string `json:"qalqla,omitempty"`
	Tikraar          string `json:"tikraar,omitempty"`
	Tafashie         string `json:"tafashie,omitempty"`
	Istitala         string `json:"istitala,omitempty"`
	Ghonna           string `json:"ghonna,omitempty"`
}

// Label returns the expected label of level l.
func (e ExpectedSifa) Label(l sifat.Level) string {
	switch l {
	case sifat.HamsOrJahr:
		return e.HamsOrJahr
	case sifat.ShiddaOrRakhawa:
		return e.ShiddaOrRakhawa
	case sifat.TafkheemOrTaqeeq:
		return e.TafkheemOrTaqeeq
	case sifat.Itbaq:
		return e.Itbaq
	case sifat.Safeer:
		return e.Safeer
	case sifat.Qalqla:
		return e.Qalqla
	case sifat.Tikraar:
		return e.Tikraar
	case sifat.Tafashie:
		return e.Tafashie
	case sifat.Istitala:
		return e.Istitala
	case sifat.Ghonna:
		return e.Ghonna
	}
	return ""
}

// ElongationTarget asks how long Phoneme was held. Frames is the mandated
// duration in frames; MinRepeat is the shortest run treated as sustained.
type ElongationTarget struct {
	Phoneme   string `json:"phoneme"`
	Frames    int    `json:"frames"`
	MinRepeat int    `json:"min_repeat,omitempty"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// prepared is a request resolved against a vocabulary.
type prepared struct {
	input    multilevel.Input
	groups   []string
	text     string
	expected []sifat.Sifa
	words    []string
	perWord  [][]string
	targets  []elongationTarget
}

type elongationTarget struct {
	ElongationTarget
	id int
}

func prepare(req Request, v *vocab.Vocabulary) (*prepared, error) {
	ref := req.Reference
	p := &prepared{groups: ref.Groups, text: ref.PhonemesText}

	switch {
	case len(p.groups) == 0 && p.text == "":
		return nil, invalid("reference has neither phonemes_text nor groups")
	case len(p.groups) == 0:
		p.groups = explain.ChunkPhonemes(p.text)
	case p.text == "":
		p.text = strings.Join(p.groups, "")
	case strings.Join(p.groups, "") != p.text:
		return nil, invalid("reference groups do not spell phonemes_text")
	}

	streams := make(map[sifat.Level]ctc.FrameStream, len(req.Streams)+len(req.Probabilities))
	for l, fs := range req.Streams {
		streams[l] = fs
	}
	for l, m := range req.Probabilities {
		if _, dup := streams[l]; dup {
			return nil, invalid("level %s given as both stream and probabilities", l)
		}
		streams[l] = ctc.Greedy(m)
	}

	refs, expected, err := expectations(ref.ExpectedSifat, p.groups, v)
	if err != nil {
		return nil, err
	}
	p.expected = expected
	p.input = multilevel.Input{
		Streams:    streams,
		Lengths:    req.Lengths,
		Groups:     p.groups,
		References: refs,
	}

	for i, w := range ref.Words {
		if w.Text == "" {
			return nil, invalid("word %d has no text", i)
		}
		p.words = append(p.words, w.Text)
		p.perWord = append(p.perWord, explain.ChunkPhonemes(w.Phonemes))
	}

	for i, t := range req.Elongations {
		if t.Frames <= 0 {
			return nil, invalid("elongation %d: frames must be positive", i)
		}
		id, err := v.ID(sifat.Phonemes, t.Phoneme)
		if err != nil {
			return nil, fmt.Errorf("%w: elongation %d: %w", ErrInvalidRequest, i, err)
		}
		p.targets = append(p.targets, elongationTarget{ElongationTarget: t, id: id})
	}
	return p, nil
}

// expectations turns expected labels into alignment references for every
// fully labelled level and into records for comparison.
func expectations(exp []ExpectedSifa, groups []string, v *vocab.Vocabulary) (map[sifat.Level][]int, []sifat.Sifa, error) {
	if len(exp) == 0 {
		return nil, nil, nil
	}
	if len(exp) != len(groups) {
		return nil, nil, invalid("expected_sifat has %d entries for %d groups", len(exp), len(groups))
	}

	records := make([]sifat.Sifa, len(exp))
	for i, e := range exp {
		g := e.Phonemes
		if g == "" {
			g = groups[i]
		}
		records[i] = sifat.Sifa{PhonemesGroup: g}
	}

	refs := make(map[sifat.Level][]int)
	for _, l := range sifat.Features {
		ids := make([]int, 0, len(exp))
		for i, e := range exp {
			label := e.Label(l)
			if label == "" {
				continue
			}
			id, err := v.ID(l, label)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: expected_sifat[%d]: %w", ErrInvalidRequest, i, err)
			}
			records[i].Set(l, &sifat.SingleUnit{Text: label, Prob: 1, Idx: id})
			ids = append(ids, id)
		}
		switch len(ids) {
		case 0:
		case len(exp):
			refs[l] = ids
		default:
			return nil, nil, invalid("expected_sifat labels %s on %d of %d groups", l, len(ids), len(exp))
		}
	}
	return refs, records, nil
}
