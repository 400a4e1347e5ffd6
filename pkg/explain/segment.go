package explain

import (
	"math"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// Tag classifies a [PhonemeGroup].
type Tag string

const (
	TagExact   Tag = "exact"
	TagPartial Tag = "partial"
	TagInsert  Tag = "insert"
	TagDelete  Tag = "delete"
)

// PhonemeGroup pairs reference groups with the recited groups the diff says
// belong to them. Merged groups have their texts concatenated; RefIdx and
// OutIdx are the first merged index, or -1 when that side is empty.
type PhonemeGroup struct {
	Ref      string `json:"ref"`
	RefIdx   int    `json:"ref_idx"`
	RefCount int    `json:"ref_count"`
	Out      string `json:"out"`
	OutIdx   int    `json:"out_idx"`
	OutCount int    `json:"out_count"`
	Tag      Tag    `json:"tag"`
	// Distance is the Levenshtein distance between Ref and Out.
	Distance int `json:"distance"`
}

// owners maps every rune position of the concatenated groups to its group.
func owners(groups []string) []int {
	var out []int
	for i, g := range groups {
		for range utf8.RuneCountInString(g) {
			out = append(out, i)
		}
	}
	return out
}

type unionFind []int

func newUnionFind(n int) unionFind {
	u := make(unionFind, n)
	for i := range u {
		u[i] = i
	}
	return u
}

func (u unionFind) find(x int) int {
	for u[x] != x {
		u[x] = u[u[x]]
		x = u[x]
	}
	return x
}

// union reports whether x and y were in different sets.
func (u unionFind) union(x, y int) bool {
	rx, ry := u.find(x), u.find(y)
	if rx == ry {
		return false
	}
	if ry < rx {
		rx, ry = ry, rx
	}
	u[ry] = rx
	return true
}

// SegmentGroups re-partitions a character diff into the caller's phoneme
// groups. Reference and recited groups sharing an equal character are
// merged, merges are widened to contiguous index ranges, and the result is
// ordered by where each entry first shows up in the diff. Groups the diff
// never reaches are appended at the end.
func SegmentGroups(refGroups, outGroups []string, diffs []Segment) []PhonemeGroup {
	nRef, nOut := len(refGroups), len(outGroups)
	refOwner, outOwner := owners(refGroups), owners(outGroups)
	at := func(own []int, pos int) int {
		if pos < len(own) {
			return own[pos]
		}
		return -1
	}

	// Nodes 0..nRef-1 are reference groups, the rest recited groups.
	uf := newUnionFind(nRef + nOut)
	firstSeen := make([]int, nRef+nOut)
	for i := range firstSeen {
		firstSeen[i] = math.MaxInt
	}
	tick := 0
	visit := func(node int) {
		if node >= 0 && firstSeen[node] == math.MaxInt {
			firstSeen[node] = tick
			tick++
		}
	}

	refPos, outPos := 0, 0
	for _, d := range diffs {
		for range utf8.RuneCountInString(d.Text) {
			r, o := -1, -1
			switch d.Op {
			case OpEqual:
				r, o = at(refOwner, refPos), at(outOwner, outPos)
				refPos++
				outPos++
			case OpDelete:
				r = at(refOwner, refPos)
				refPos++
			case OpInsert:
				o = at(outOwner, outPos)
				outPos++
			}
			if o >= 0 {
				o += nRef
			}
			visit(r)
			visit(o)
			if r >= 0 && o >= 0 {
				uf.union(r, o)
			}
		}
	}

	closeRanges(uf, nRef, nOut)

	members := make(map[int][]int)
	var roots []int
	for node := range nRef + nOut {
		root := uf.find(node)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], node)
	}

	key := func(root int) int {
		k := math.MaxInt
		for _, n := range members[root] {
			k = min(k, firstSeen[n])
		}
		return k
	}
	slices.SortStableFunc(roots, func(a, b int) int {
		ka, kb := key(a), key(b)
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		}
		return a - b
	})

	out := make([]PhonemeGroup, 0, len(roots))
	for _, root := range roots {
		out = append(out, buildGroup(members[root], refGroups, outGroups))
	}
	return out
}

// closeRanges merges every group lying between two members of the same set
// on either side until each set covers contiguous index ranges.
func closeRanges(uf unionFind, nRef, nOut int) {
	for changed := true; changed; {
		changed = false
		lo := make(map[int][2]int)
		hi := make(map[int][2]int)
		for node := range nRef + nOut {
			side, idx := 0, node
			if node >= nRef {
				side, idx = 1, node-nRef
			}
			root := uf.find(node)
			l, okL := lo[root]
			h := hi[root]
			if !okL {
				l = [2]int{math.MaxInt, math.MaxInt}
				h = [2]int{-1, -1}
			}
			l[side] = min(l[side], idx)
			h[side] = max(h[side], idx)
			lo[root], hi[root] = l, h
		}
		for root, l := range lo {
			h := hi[root]
			for i := l[0]; i <= h[0]; i++ {
				changed = uf.union(root, i) || changed
			}
			for i := l[1]; i <= h[1]; i++ {
				changed = uf.union(root, nRef+i) || changed
			}
		}
	}
}

func buildGroup(nodes []int, refGroups, outGroups []string) PhonemeGroup {
	nRef := len(refGroups)
	g := PhonemeGroup{RefIdx: -1, OutIdx: -1}
	var ref, out strings.Builder
	for _, n := range nodes {
		if n < nRef {
			if g.RefIdx < 0 {
				g.RefIdx = n
			}
			g.RefCount++
			ref.WriteString(refGroups[n])
			continue
		}
		if g.OutIdx < 0 {
			g.OutIdx = n - nRef
		}
		g.OutCount++
		out.WriteString(outGroups[n-nRef])
	}
	g.Ref, g.Out = ref.String(), out.String()

	switch {
	case g.RefCount > 0 && g.OutCount > 0 && g.Ref == g.Out:
		g.Tag = TagExact
	case g.RefCount > 0 && g.OutCount > 0:
		g.Tag = TagPartial
	case g.OutCount > 0:
		g.Tag = TagInsert
	default:
		g.Tag = TagDelete
	}
	g.Distance = matchr.Levenshtein(g.Ref, g.Out)
	return g
}
