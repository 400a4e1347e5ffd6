// Package ctc collapses frame-rate classifier output into one entry per
// decoded symbol occurrence.
//
// A [FrameStream] holds the per-frame argmax id and its probability for one
// classification head. [Decode] drops blank frames (id 0) and merges each
// maximal run of one repeated non-blank id into a single occurrence whose
// probability is the mean over exactly that run's frames. A blank always ends
// the current run, so "a _ a" decodes to two occurrences.
package ctc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Blank is the reserved no-symbol id.
const Blank = 0

// ErrMalformedStream is returned for inconsistent or out-of-range input.
var ErrMalformedStream = errors.New("ctc: malformed frame stream")

// FrameStream is the per-frame output of one classification head.
type FrameStream struct {
	IDs   []int
	Probs []float64
}

// Len returns the number of frames.
func (f FrameStream) Len() int { return len(f.IDs) }

// Validate checks that ids and probabilities line up and are in range.
func (f FrameStream) Validate() error {
	if len(f.IDs) != len(f.Probs) {
		return fmt.Errorf("%w: %d ids but %d probabilities", ErrMalformedStream, len(f.IDs), len(f.Probs))
	}
	for i, id := range f.IDs {
		if id < 0 {
			return fmt.Errorf("%w: negative id %d at frame %d", ErrMalformedStream, id, i)
		}
		p := f.Probs[i]
		if math.IsNaN(p) || p < 0 || p > 1 {
			return fmt.Errorf("%w: probability %v at frame %d outside [0,1]", ErrMalformedStream, p, i)
		}
	}
	return nil
}

// Truncate validates the whole stream and returns its first n frames. n past
// the end is clamped.
func (f FrameStream) Truncate(n int) (FrameStream, error) {
	if err := f.Validate(); err != nil {
		return FrameStream{}, err
	}
	n = max(0, min(n, len(f.IDs)))
	return FrameStream{IDs: f.IDs[:n], Probs: f.Probs[:n]}, nil
}

// Collapsed is the run-collapsed sequence of one stream.
type Collapsed struct {
	IDs   []int
	Probs []float64
}

// Len returns the number of decoded occurrences.
func (c Collapsed) Len() int { return len(c.IDs) }

// Decode collapses frames. The input is never modified.
func Decode(frames FrameStream) (Collapsed, error) {
	if err := frames.Validate(); err != nil {
		return Collapsed{}, err
	}

	out := Collapsed{IDs: []int{}, Probs: []float64{}}
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		out.IDs = append(out.IDs, frames.IDs[start])
		out.Probs = append(out.Probs, stat.Mean(frames.Probs[start:end], nil))
		start = -1
	}

	for i, id := range frames.IDs {
		switch {
		case id == Blank:
			flush(i)
		case start >= 0 && frames.IDs[start] != id:
			flush(i)
			start = i
		case start < 0:
			start = i
		}
	}
	flush(len(frames.IDs))
	return out, nil
}

// BatchItem is one utterance of a padded batch. Length is the number of real
// frames; zero or negative means the whole stream is real.
type BatchItem struct {
	Frames FrameStream
	Length int
}

// DecodeBatch decodes every item independently, cutting padding frames off
// before decoding.
func DecodeBatch(items []BatchItem) ([]Collapsed, error) {
	out := make([]Collapsed, len(items))
	for i, it := range items {
		frames := it.Frames
		if it.Length > 0 {
			var err error
			if frames, err = frames.Truncate(it.Length); err != nil {
				return nil, fmt.Errorf("ctc: batch item %d: %w", i, err)
			}
		}
		c, err := Decode(frames)
		if err != nil {
			return nil, fmt.Errorf("ctc: batch item %d: %w", i, err)
		}
		out[i] = c
	}
	return out, nil
}

// Greedy picks the most probable id of every frame of a frames×classes
// probability matrix. Ties go to the lower id.
func Greedy(matrix [][]float64) FrameStream {
	fs := FrameStream{
		IDs:   make([]int, len(matrix)),
		Probs: make([]float64, len(matrix)),
	}
	for t, row := range matrix {
		best, bestP := 0, math.Inf(-1)
		for id, p := range row {
			if p > bestP {
				best, bestP = id, p
			}
		}
		if len(row) == 0 {
			bestP = 0
		}
		fs.IDs[t] = best
		fs.Probs[t] = bestP
	}
	return fs
}
