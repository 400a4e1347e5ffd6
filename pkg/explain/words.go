package explain

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// WordSpan maps one source word to the half-open range [Start, End) of
// verse-level reference groups.
type WordSpan struct {
	WordIndex int    `json:"word_index"`
	Word      string `json:"word"`
	Phonemes  string `json:"phonemes"`
	Start     int    `json:"sifat_start"`
	End       int    `json:"-"`
	// Last is the inclusive end index; it equals Start for an empty range.
	Last  int `json:"sifat_end"`
	Count int `json:"sifat_count"`

	// Forced is set when no group matched and one was taken anyway.
	Forced bool `json:"forced"`
	// Similarity is the Jaro-Winkler similarity between the word's own
	// phonetization and the mapped verse-level text.
	Similarity    float64 `json:"similarity"`
	LowConfidence bool    `json:"low_confidence"`
}

// ProjectOption configures [ProjectWords].
type ProjectOption func(*projector)

type projector struct {
	tolerance int
	threshold float64
}

// WithContainmentTolerance sets the largest rune-length difference at which
// one group containing the other still counts as a match. Defaults to 2.
func WithContainmentTolerance(n int) ProjectOption {
	return func(p *projector) { p.tolerance = n }
}

// WithLowConfidenceSimilarity sets the similarity below which a span is
// flagged low confidence. Defaults to 0.6.
func WithLowConfidenceSimilarity(s float64) ProjectOption {
	return func(p *projector) { p.threshold = s }
}

// simplify normalises a phoneme group for loose comparison: long-vowel
// marks become their letters, doubled vowels and fully repeated groups
// collapse, and harakat are removed.
func simplify(s string) string {
	s = strings.NewReplacer("ۦ", "ي", "ۥ", "و").Replace(s)
	s = strings.ReplaceAll(s, "aa", "a")
	s = strings.ReplaceAll(s, "uu", "u")
	s = strings.ReplaceAll(s, "ii", "i")
	if r, size := utf8.DecodeRuneInString(s); utf8.RuneCountInString(s) > 1 && strings.Trim(s, string(r)) == "" {
		s = s[:size]
	}
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune("ًٌٍَُِّْ", r) {
			return -1
		}
		return r
	}, s)
}

func loose(a, b string) bool {
	return a == b || simplify(a) == simplify(b)
}

func sharesRune(s, chars string) bool {
	for _, c := range chars {
		if strings.ContainsRune(s, c) {
			return true
		}
	}
	return false
}

// ProjectWords assigns every source word a contiguous range of the
// verse-level reference groups full, guided by perWord, the phonetization
// of each word on its own. The words are walked in order; the last word
// always takes whatever is left. The heuristic is not exact; spans that
// needed a forced group or whose text drifted from the word's own
// phonetization are flagged LowConfidence.
func ProjectWords(words, full []string, perWord [][]string, opts ...ProjectOption) []WordSpan {
	p := projector{tolerance: 2, threshold: 0.6}
	for _, o := range opts {
		o(&p)
	}
	if len(words) == 0 || len(full) == 0 {
		return []WordSpan{}
	}
	wordGroups := func(i int) []string {
		if i < len(perWord) {
			return perWord[i]
		}
		return nil
	}

	spans := make([]WordSpan, 0, len(words))
	fi := 0
	for wi, word := range words {
		start := fi
		wg := wordGroups(wi)
		last := wi == len(words)-1

		for w := 0; w < len(wg) && fi < len(full); {
			fp, wp := full[fi], wg[w]

			if loose(fp, wp) {
				fi++
				w++
				continue
			}
			if fi+1 < len(full) && loose(fp+full[fi+1], wp) {
				fi += 2
				w++
				continue
			}
			if (strings.Contains(wp, fp) || strings.Contains(fp, wp)) &&
				abs(utf8.RuneCountInString(fp)-utf8.RuneCountInString(wp)) <= p.tolerance {
				fi++
				w++
				continue
			}
			if w+1 < len(wg) && loose(fp, wg[w+1]) {
				w++
				continue
			}
			if fi+1 < len(full) && loose(full[fi+1], wp) {
				fi++
				continue
			}

			if w < len(wg)-1 {
				fi++
				w++
				continue
			}
			if !p.ownsBoundary(fp, wp, last, wordGroups(wi+1)) {
				break
			}
			fi++
			w++
		}

		if last {
			fi = len(full)
		}
		forced := false
		if fi == start && fi < len(full) && len(wg) > 0 {
			fi++
			forced = true
		}

		span := WordSpan{
			WordIndex: wi,
			Word:      word,
			Phonemes:  strings.Join(full[start:fi], ""),
			Start:     start,
			End:       fi,
			Last:      start,
			Count:     fi - start,
			Forced:    forced,
		}
		if fi > start {
			span.Last = fi - 1
		}
		span.Similarity = similarity(strings.Join(wg, ""), span.Phonemes)
		span.LowConfidence = forced || span.Similarity < p.threshold
		spans = append(spans, span)
	}
	return spans
}

// ownsBoundary decides whether the verse group fp at the end of a word
// belongs to that word, whose last own group is wp, or to the next word.
func (p projector) ownsBoundary(fp, wp string, last bool, next []string) bool {
	if last || len(next) == 0 {
		return true
	}
	nextStart := next[0]
	switch {
	case strings.Contains(fp, wp):
		return true
	case strings.Contains(fp, nextStart) || strings.Contains(nextStart, fp):
		return false
	case sharesRune(fp, wp) && !sharesRune(fp, nextStart):
		return true
	}
	return false
}

func similarity(a, b string) float64 {
	switch {
	case a == b:
		return 1
	case a == "" || b == "":
		return 0
	}
	return matchr.JaroWinkler(a, b, false)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
