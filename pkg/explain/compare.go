package explain

import "github.com/MrWong99/muaalem/pkg/sifat"

// compareOrder is the attribute order of mismatch reports.
var compareOrder = []sifat.Level{
	sifat.HamsOrJahr,
	sifat.ShiddaOrRakhawa,
	sifat.TafkheemOrTaqeeq,
	sifat.Ghonna,
	sifat.Qalqla,
	sifat.Safeer,
	sifat.Tikraar,
	sifat.Tafashie,
	sifat.Istitala,
	sifat.Itbaq,
}

// AttributeError is one sifa recited with a different label than expected.
type AttributeError struct {
	Attribute   sifat.Level `json:"attribute"`
	AttributeAr string      `json:"attribute_ar"`
	Expected    string      `json:"expected"`
	Actual      string      `json:"actual"`
	Prob        float64     `json:"prob"`
}

// SifaError collects the mismatching attributes of one position.
type SifaError struct {
	Index           int              `json:"index"`
	Phoneme         string           `json:"phoneme"`
	ExpectedPhoneme string           `json:"expected_phoneme"`
	Errors          []AttributeError `json:"errors"`
}

// CompareSifat compares actual and expected records index by index over
// their common length. Attributes absent on either side are skipped.
func CompareSifat(actual, expected []sifat.Sifa) []SifaError {
	var out []SifaError
	for i := range min(len(actual), len(expected)) {
		a, e := actual[i], expected[i]
		var errs []AttributeError
		for _, l := range compareOrder {
			au, eu := a.Get(l), e.Get(l)
			if au == nil || eu == nil || au.Text == "" || eu.Text == "" || au.Text == eu.Text {
				continue
			}
			errs = append(errs, AttributeError{
				Attribute:   l,
				AttributeAr: l.ArabicName(),
				Expected:    eu.Text,
				Actual:      au.Text,
				Prob:        au.Prob,
			})
		}
		if len(errs) > 0 {
			out = append(out, SifaError{
				Index:           i,
				Phoneme:         a.PhonemesGroup,
				ExpectedPhoneme: e.PhonemesGroup,
				Errors:          errs,
			})
		}
	}
	return out
}

// Cell is one attribute of an explanation row.
type Cell struct {
	Attribute sifat.Level `json:"attribute"`
	Actual    string      `json:"actual,omitempty"`
	Expected  string      `json:"expected,omitempty"`
	Prob      float64     `json:"prob,omitempty"`
	Mismatch  bool        `json:"mismatch"`
}

// Row is one line of the sifat explanation table.
type Row struct {
	Tag         Tag    `json:"tag"`
	Phonemes    string `json:"phonemes"`
	ExpPhonemes string `json:"exp_phonemes"`
	Cells       []Cell `json:"cells"`
}

// Mismatches returns the number of mismatching cells.
func (r Row) Mismatches() int {
	n := 0
	for _, c := range r.Cells {
		if c.Mismatch {
			n++
		}
	}
	return n
}

// ExplainSifat builds one row per phoneme group. Recited records are
// indexed by reference position like the expected ones, so both are looked
// up at RefIdx and inserted groups carry no attributes. Mismatches are only
// marked on groups present on both sides.
func ExplainSifat(groups []PhonemeGroup, actual, expected []sifat.Sifa) []Row {
	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		row := Row{Tag: g.Tag, Phonemes: g.Out, ExpPhonemes: g.Ref}
		a := recordAt(actual, g.RefIdx)
		e := recordAt(expected, g.RefIdx)
		paired := g.Tag == TagExact || g.Tag == TagPartial
		for _, l := range sifat.Features {
			c := Cell{Attribute: l}
			if a != nil {
				if u := a.Get(l); u != nil {
					c.Actual, c.Prob = u.Text, u.Prob
				}
			}
			if e != nil {
				if u := e.Get(l); u != nil {
					c.Expected = u.Text
				}
			}
			c.Mismatch = paired && c.Actual != "" && c.Expected != "" && c.Actual != c.Expected
			row.Cells = append(row.Cells, c)
		}
		rows = append(rows, row)
	}
	return rows
}

func recordAt(recs []sifat.Sifa, i int) *sifat.Sifa {
	if i < 0 || i >= len(recs) {
		return nil
	}
	return &recs[i]
}
