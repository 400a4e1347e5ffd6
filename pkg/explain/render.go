package explain

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/MrWong99/muaalem/pkg/sifat"
)

// RenderText writes a plain-text report of the phoneme diff followed by the
// sifat table. Insertions are shown as [+text] and deletions as [-text];
// mismatching cells read "actual!=expected".
func RenderText(w io.Writer, segs []Segment, rows []Row) error {
	var line strings.Builder
	for _, s := range segs {
		switch s.Op {
		case OpInsert:
			fmt.Fprintf(&line, "[+%s]", s.Text)
		case OpDelete:
			fmt.Fprintf(&line, "[-%s]", s.Text)
		default:
			line.WriteString(s.Text)
		}
	}
	if _, err := fmt.Fprintf(w, "phonemes: %s\n", line.String()); err != nil {
		return fmt.Errorf("explain: render: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	header := []string{"tag", "phonemes", "expected"}
	for _, l := range sifat.Features {
		header = append(header, string(l))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	for _, r := range rows {
		fields := []string{string(r.Tag), orDash(r.Phonemes), orDash(r.ExpPhonemes)}
		for _, c := range r.Cells {
			v := orDash(c.Actual)
			if c.Mismatch {
				v = c.Actual + "!=" + c.Expected
			}
			fields = append(fields, v)
		}
		fmt.Fprintln(tw, strings.Join(fields, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("explain: render: %w", err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
