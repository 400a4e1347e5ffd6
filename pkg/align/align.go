// Package align repairs a decoded symbol sequence to the length of its
// reference so the two can be compared position by position.
//
// The decoded sequence is slid along the reference. Every shift places
// pred[j] at ref[j+shift]; reference positions outside the overlap get the
// [Missing] sentinel and decoded symbols outside it are discarded. Exact
// anchors at the front or the back win, otherwise the shift with the most
// equal positions is chosen. A total mismatch is a result, not an error.
package align

import (
	"errors"
	"fmt"
)

// Missing marks a reference position with no decoded symbol. It is outside
// every vocabulary.
const Missing = -100

// ErrEmptyReference is returned when the reference sequence is empty.
var ErrEmptyReference = errors.New("align: empty reference sequence")

// Outcome says how an alignment was chosen.
type Outcome int

const (
	// OutcomePassthrough means the lengths matched and no search was done.
	OutcomePassthrough Outcome = iota
	// OutcomeFront means the overlap anchored at the start matched exactly.
	OutcomeFront
	// OutcomeBack means the overlap anchored at the end matched exactly.
	OutcomeBack
	// OutcomeShifted means the best partial match was used.
	OutcomeShifted
	// OutcomeDegenerate means no shift matched a single position.
	OutcomeDegenerate
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassthrough:
		return "passthrough"
	case OutcomeFront:
		return "front"
	case OutcomeBack:
		return "back"
	case OutcomeShifted:
		return "shifted"
	case OutcomeDegenerate:
		return "degenerate"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Result is the repaired sequence.
type Result struct {
	// IDs has the reference length. Unmatched positions hold Missing.
	IDs []int
	// Source maps each reference position to the index of the decoded
	// symbol placed there, or -1.
	Source []int
	// Kept has the decoded length and flags accepted symbols.
	Kept []bool

	Outcome Outcome
	// Shift is the reference offset of pred[0].
	Shift int
	// Matches counts positions where the placed symbol equals the reference.
	Matches int
}

// Discarded returns the number of decoded symbols not placed.
func (r Result) Discarded() int {
	n := 0
	for _, k := range r.Kept {
		if !k {
			n++
		}
	}
	return n
}

// Align fits pred to the length of ref.
func Align(pred, ref []int) (Result, error) {
	n, m := len(ref), len(pred)
	if n == 0 {
		return Result{}, ErrEmptyReference
	}

	if m == n {
		r := Result{
			IDs:     append([]int(nil), pred...),
			Source:  make([]int, n),
			Kept:    make([]bool, m),
			Outcome: OutcomePassthrough,
		}
		for i := range pred {
			r.Source[i] = i
			r.Kept[i] = true
			if pred[i] == ref[i] {
				r.Matches++
			}
		}
		return r, nil
	}

	if m == 0 {
		return place(pred, ref, 0, OutcomeDegenerate), nil
	}

	if matches, overlap := score(pred, ref, 0); matches == overlap {
		return place(pred, ref, 0, OutcomeFront), nil
	}
	back := n - m
	if matches, overlap := score(pred, ref, back); matches == overlap {
		return place(pred, ref, back, OutcomeBack), nil
	}

	bestShift, bestMatches, bestOverlap := 0, -1, -1
	for _, s := range shifts(m, n) {
		matches, overlap := score(pred, ref, s)
		if matches > bestMatches || (matches == bestMatches && overlap > bestOverlap) {
			bestShift, bestMatches, bestOverlap = s, matches, overlap
		}
	}
	if bestMatches == 0 {
		return place(pred, ref, 0, OutcomeDegenerate), nil
	}
	return place(pred, ref, bestShift, OutcomeShifted), nil
}

// shifts lists every shift with a non-empty overlap in order of increasing
// magnitude, the non-negative one first.
func shifts(m, n int) []int {
	lo, hi := -(m - 1), n-1
	out := make([]int, 0, hi-lo+1)
	for d := 0; len(out) < hi-lo+1; d++ {
		if d <= hi {
			out = append(out, d)
		}
		if d > 0 && -d >= lo {
			out = append(out, -d)
		}
	}
	return out
}

func window(m, n, s int) (lo, hi int) {
	return max(0, -s), min(m, n-s)
}

func score(pred, ref []int, s int) (matches, size int) {
	lo, hi := window(len(pred), len(ref), s)
	for j := lo; j < hi; j++ {
		if pred[j] == ref[j+s] {
			matches++
		}
	}
	return matches, max(0, hi-lo)
}

func place(pred, ref []int, s int, outcome Outcome) Result {
	n, m := len(ref), len(pred)
	r := Result{
		IDs:     make([]int, n),
		Source:  make([]int, n),
		Kept:    make([]bool, m),
		Outcome: outcome,
		Shift:   s,
	}
	for i := range r.IDs {
		r.IDs[i] = Missing
		r.Source[i] = -1
	}
	if outcome == OutcomeDegenerate {
		r.Shift = 0
		return r
	}
	lo, hi := window(m, n, s)
	for j := lo; j < hi; j++ {
		r.IDs[j+s] = pred[j]
		r.Source[j+s] = j
		r.Kept[j] = true
		if pred[j] == ref[j+s] {
			r.Matches++
		}
	}
	return r
}
