// Package elongation locates sustained runs in frame-level occupancy signals
// so elongated vowels and doubled consonants can be checked against the
// duration tajweed mandates for them.
package elongation

// Run is one maximal stretch of equal values.
type Run struct {
	Value  int
	Start  int
	Length int
}

// End returns the index one past the run's last frame.
func (r Run) End() int { return r.Start + r.Length }

// Runs splits seq into maximal runs of equal values.
func Runs(seq []int) []Run {
	var out []Run
	for i := 0; i < len(seq); {
		j := i + 1
		for j < len(seq) && seq[j] == seq[i] {
			j++
		}
		out = append(out, Run{Value: seq[i], Start: i, Length: j - i})
		i = j
	}
	return out
}

// FindRunStarts returns the frame indices to trim so seq keeps targetLen
// frames. The len(seq)-targetLen indices are taken from the start of the
// first run that is at least minRepeat long and strictly longer than the
// trim. The result is empty when nothing needs trimming or no run
// qualifies.
func FindRunStarts(seq []int, targetLen, minRepeat int) []int {
	trim := len(seq) - targetLen
	if trim <= 0 {
		return []int{}
	}
	for _, r := range Runs(seq) {
		if r.Length < minRepeat || r.Length <= trim {
			continue
		}
		out := make([]int, trim)
		for k := range out {
			out[k] = r.Start + k
		}
		return out
	}
	return []int{}
}

// Occupancy returns 1 for every frame holding symbol and 0 elsewhere.
func Occupancy(ids []int, symbol int) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		if id == symbol {
			out[i] = 1
		}
	}
	return out
}

// Longest returns the longest run of value, or false when value never
// occurs. The earliest run wins ties.
func Longest(seq []int, value int) (Run, bool) {
	var best Run
	found := false
	for _, r := range Runs(seq) {
		if r.Value == value && (!found || r.Length > best.Length) {
			best, found = r, true
		}
	}
	return best, found
}
