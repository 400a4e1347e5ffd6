// Package explain compares predicted phoneme text and sifat against the
// phonetized reference and maps the differences back onto source words.
//
// Nothing in this package fails: every function returns a best-effort result
// and flags doubtful parts instead.
package explain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op classifies a diff segment.
type Op int8

const (
	// OpDelete is text present in the reference but not recited.
	OpDelete Op = -1
	// OpEqual is text recited as expected.
	OpEqual Op = 0
	// OpInsert is text recited but not in the reference.
	OpInsert Op = 1
)

func (o Op) String() string {
	switch o {
	case OpDelete:
		return "delete"
	case OpEqual:
		return "equal"
	case OpInsert:
		return "insert"
	}
	return fmt.Sprintf("Op(%d)", int8(o))
}

// MarshalText implements encoding.TextMarshaler.
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Op) UnmarshalText(b []byte) error {
	switch string(b) {
	case "delete":
		*o = OpDelete
	case "equal":
		*o = OpEqual
	case "insert":
		*o = OpInsert
	default:
		return fmt.Errorf("explain: unknown diff op %q", b)
	}
	return nil
}

// Segment is one span of the edit script from expected to actual text.
type Segment struct {
	Op   Op     `json:"type"`
	Text string `json:"text"`
}

// DiffPhonemes returns the character-level edit script turning expected
// into actual. The diff runs without a deadline so results are
// deterministic. When either text is not valid UTF-8 the script is computed
// over bytes, so Expected and Actual still rebuild the inputs exactly.
func DiffPhonemes(expected, actual string) []Segment {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0

	bytewise := !utf8.ValidString(expected) || !utf8.ValidString(actual)
	var diffs []diffmatchpatch.Diff
	if bytewise {
		diffs = dmp.DiffMainRunes(byteRunes(expected), byteRunes(actual), false)
	} else {
		diffs = dmp.DiffMain(expected, actual, false)
	}

	out := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		if bytewise {
			d.Text = runeBytes(d.Text)
		}
		var op Op
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = OpDelete
		case diffmatchpatch.DiffInsert:
			op = OpInsert
		default:
			op = OpEqual
		}
		out = append(out, Segment{Op: op, Text: d.Text})
	}
	return out
}

// byteRunes maps every byte of s to the rune of the same value.
func byteRunes(s string) []rune {
	out := make([]rune, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = rune(s[i])
	}
	return out
}

// runeBytes reverses byteRunes.
func runeBytes(s string) string {
	b := make([]byte, 0, len(s))
	for _, r := range s {
		b = append(b, byte(r))
	}
	return string(b)
}

// Expected rebuilds the reference text from the equal and delete segments.
func Expected(segs []Segment) string {
	return join(segs, OpDelete)
}

// Actual rebuilds the recited text from the equal and insert segments.
func Actual(segs []Segment) string {
	return join(segs, OpInsert)
}

func join(segs []Segment, side Op) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Op == OpEqual || s.Op == side {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// HasDifferences reports whether any segment is an insertion or deletion.
func HasDifferences(segs []Segment) bool {
	for _, s := range segs {
		if s.Op != OpEqual {
			return true
		}
	}
	return false
}
