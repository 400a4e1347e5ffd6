package analysis

import (
	"github.com/MrWong99/muaalem/pkg/explain"
	"github.com/MrWong99/muaalem/pkg/multilevel"
	"github.com/MrWong99/muaalem/pkg/sifat"
)

// Status summarises how trustworthy a report is.
type Status string

const (
	// StatusOK means every level aligned and every word projected cleanly.
	StatusOK Status = "ok"

	// StatusLowConfidence means at least one word projection was flagged.
	StatusLowConfidence Status = "low_confidence"

	// StatusUnaligned means at least one level had no viable alignment.
	StatusUnaligned Status = "unaligned"
)

// Report is the analysis result of one [Request].
type Report struct {
	ID       string   `json:"id"`
	Status   Status   `json:"status"`
	Warnings []string `json:"warnings,omitempty"`

	// PhonemesText is the recited phoneme string.
	PhonemesText string          `json:"phonemes_text"`
	Phonemes     multilevel.Unit `json:"phonemes"`

	// Sifat has one record per reference group.
	Sifat []IndexedSifa `json:"sifat"`

	Reference     ReferenceSummary `json:"reference"`
	ExpectedSifat []ExpectedSifa   `json:"expected_sifat"`

	PhonemeDiff    []explain.Segment   `json:"phoneme_diff"`
	SifatErrors    []explain.SifaError `json:"sifat_errors"`
	PhonemesByWord []explain.WordSpan  `json:"phonemes_by_word"`
	Explanation    []explain.Row       `json:"explanation"`
	Elongations    []Elongation        `json:"elongations,omitempty"`

	Levels map[sifat.Level]multilevel.LevelStats `json:"levels"`
}

// IndexedSifa is a sifa record with its position.
type IndexedSifa struct {
	Index int `json:"index"`
	sifat.Sifa
}

// ReferenceSummary echoes the reference the recitation was compared with.
type ReferenceSummary struct {
	Sura           *int           `json:"sura,omitempty"`
	Aya            *int           `json:"aya,omitempty"`
	UthmaniText    string         `json:"uthmani_text,omitempty"`
	PhoneticScript PhoneticScript `json:"phonetic_script"`
}

// PhoneticScript holds the expected phoneme text.
type PhoneticScript struct {
	PhonemesText string `json:"phonemes_text"`
}

// Elongation is the outcome of one [ElongationTarget].
type Elongation struct {
	Phoneme string `json:"phoneme"`
	Target  int    `json:"target"`

	// Found is false when the phoneme occupies no frame.
	Found bool `json:"found"`

	// Start and Frames describe the longest run of the phoneme.
	Start  int `json:"start"`
	Frames int `json:"frames"`

	// Excess lists the frame indices held beyond Target.
	Excess []int `json:"excess,omitempty"`
}

// Short reports whether the phoneme was held for fewer frames than Target.
func (e Elongation) Short() bool { return e.Found && e.Frames < e.Target }
