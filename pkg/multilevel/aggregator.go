// Package multilevel fuses the per-head output of the recitation model into
// one feature record per reference phoneme group.
//
// Every head (the phoneme head and the ten sifat heads) is decoded with
// [ctc.Decode] and, when a reference sequence is supplied, repaired to the
// reference length with [align.Align]. The aligned sifat streams are then
// zipped position by position into [sifat.Sifa] records. Heads are processed
// concurrently; nothing is shared between them except read-only input.
package multilevel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/muaalem/pkg/align"
	"github.com/MrWong99/muaalem/pkg/ctc"
	"github.com/MrWong99/muaalem/pkg/sifat"
	"github.com/MrWong99/muaalem/pkg/vocab"
)

// ErrMalformedInput is matched by every [*InputError].
var ErrMalformedInput = errors.New("multilevel: malformed input")

// InputError reports structurally invalid input for one level.
type InputError struct {
	Level sifat.Level
	Err   error
}

func (e *InputError) Error() string {
	if e.Level == "" {
		return "multilevel: " + e.Err.Error()
	}
	return fmt.Sprintf("multilevel: level %q: %v", e.Level, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedInput) succeed.
func (e *InputError) Is(target error) bool { return target == ErrMalformedInput }

// ─────────────────────────────────────────────────────────────────────────────
// Types
// ─────────────────────────────────────────────────────────────────────────────

// Unit is the decoded output of one head. Aligned units hold [align.Missing]
// (with probability 0) at positions no decoded symbol was placed. Text is
// only set for the phoneme level.
type Unit struct {
	Text  string    `json:"text"`
	Probs []float64 `json:"probs"`
	IDs   []int     `json:"ids"`
}

// Len returns the number of positions.
func (u Unit) Len() int { return len(u.IDs) }

// Input is everything the model and the phonetizer produced for one
// utterance.
type Input struct {
	// Streams holds the argmax frames of every head. The phoneme stream is
	// required; a missing sifat stream leaves that attribute absent.
	Streams map[sifat.Level]ctc.FrameStream

	// Lengths optionally holds the number of real frames per head for
	// padded batches.
	Lengths map[sifat.Level]int

	// Groups is the reference phoneme-group text, one entry per record.
	Groups []string

	// References optionally holds the expected symbol ids per head. A sifat
	// reference must have one id per group. When the phoneme reference is
	// absent it is derived by tokenizing the joined groups.
	References map[sifat.Level][]int
}

// LevelStats describes how one head was decoded and aligned.
type LevelStats struct {
	Decoded   int           `json:"decoded"`
	Aligned   bool          `json:"aligned"`
	Outcome   align.Outcome `json:"outcome"`
	Matches   int           `json:"matches"`
	Discarded int           `json:"discarded"`
	Reference int           `json:"reference"`
}

// Output is the fused result of one utterance.
type Output struct {
	// Phonemes is the decoded phoneme stream before alignment, so
	// insertions stay visible to the diff layer.
	Phonemes Unit

	// Sifat has exactly one record per reference group.
	Sifat []sifat.Sifa

	Levels map[sifat.Level]LevelStats
}

// ─────────────────────────────────────────────────────────────────────────────
// Aggregator
// ─────────────────────────────────────────────────────────────────────────────

// Observer is called once per decoded level with its stats and the time the
// level took. It must be safe for concurrent use.
type Observer func(level sifat.Level, stats LevelStats, elapsed time.Duration)

// Aggregator decodes and fuses model output against a fixed vocabulary.
// It is safe for concurrent use.
type Aggregator struct {
	vocab    *vocab.Vocabulary
	workers  int
	observer Observer
}

// Option is a functional option for [New].
type Option func(*Aggregator)

// WithWorkers caps the number of utterances [Aggregator.AggregateBatch]
// processes at once. Values below 1 mean no limit. Defaults to 4.
func WithWorkers(n int) Option {
	return func(a *Aggregator) { a.workers = n }
}

// WithObserver registers fn to receive per-level stats.
func WithObserver(fn Observer) Option {
	return func(a *Aggregator) { a.observer = fn }
}

// New creates an [Aggregator] over v.
func New(v *vocab.Vocabulary, opts ...Option) *Aggregator {
	a := &Aggregator{vocab: v, workers: 4}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Vocabulary returns the vocabulary the aggregator resolves labels with.
func (a *Aggregator) Vocabulary() *vocab.Vocabulary { return a.vocab }

type levelResult struct {
	unit    Unit
	decoded Unit
	stats   LevelStats
	present bool
}

// Aggregate decodes every head of in and zips the sifat heads into one
// record per group.
func (a *Aggregator) Aggregate(ctx context.Context, in Input) (Output, error) {
	n := len(in.Groups)
	if n == 0 {
		return Output{}, &InputError{Err: errors.New("no phoneme groups")}
	}
	if _, ok := in.Streams[sifat.Phonemes]; !ok {
		return Output{}, &InputError{Level: sifat.Phonemes, Err: errors.New("stream is required")}
	}
	for l := range in.Streams {
		if !l.IsValid() {
			return Output{}, &InputError{Level: l, Err: errors.New("unknown level")}
		}
	}

	levels := sifat.AllLevels()
	results := make([]levelResult, len(levels))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, level := range levels {
		frames, ok := in.Streams[level]
		if !ok {
			continue
		}
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			start := time.Now()
			r, err := a.level(level, frames, in)
			if err != nil {
				return err
			}
			if a.observer != nil {
				a.observer(level, r.stats, time.Since(start))
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Output{}, err
	}

	units := make(map[sifat.Level]Unit, len(levels))
	out := Output{Levels: make(map[sifat.Level]LevelStats, len(levels))}
	for i, level := range levels {
		r := results[i]
		if !r.present {
			continue
		}
		out.Levels[level] = r.stats
		if level == sifat.Phonemes {
			out.Phonemes = r.decoded
			continue
		}
		units[level] = r.unit
	}

	records, err := a.Format(units, in.Groups)
	if err != nil {
		return Output{}, err
	}
	out.Sifat = records
	return out, nil
}

func (a *Aggregator) level(level sifat.Level, frames ctc.FrameStream, in Input) (levelResult, error) {
	if n, ok := in.Lengths[level]; ok && n > 0 {
		var err error
		if frames, err = frames.Truncate(n); err != nil {
			return levelResult{}, &InputError{Level: level, Err: err}
		}
	}
	collapsed, err := ctc.Decode(frames)
	if err != nil {
		return levelResult{}, &InputError{Level: level, Err: err}
	}
	decoded := Unit{IDs: collapsed.IDs, Probs: collapsed.Probs}
	if level == sifat.Phonemes {
		text, err := a.vocab.Text(level, decoded.IDs)
		if err != nil {
			return levelResult{}, fmt.Errorf("multilevel: level %q: %w", level, err)
		}
		decoded.Text = text
	}

	r := levelResult{
		unit:    decoded,
		decoded: decoded,
		present: true,
		stats:   LevelStats{Decoded: decoded.Len()},
	}

	ref, err := a.reference(level, in)
	if err != nil {
		return levelResult{}, err
	}
	if ref == nil {
		return r, nil
	}

	res, err := align.Align(decoded.IDs, ref)
	if err != nil {
		return levelResult{}, &InputError{Level: level, Err: err}
	}
	aligned := Unit{Text: decoded.Text, IDs: res.IDs, Probs: make([]float64, len(res.IDs))}
	for i, src := range res.Source {
		if src >= 0 {
			aligned.Probs[i] = decoded.Probs[src]
		}
	}
	r.unit = aligned
	r.stats.Aligned = true
	r.stats.Outcome = res.Outcome
	r.stats.Matches = res.Matches
	r.stats.Discarded = res.Discarded()
	r.stats.Reference = len(ref)
	return r, nil
}

func (a *Aggregator) reference(level sifat.Level, in Input) ([]int, error) {
	ref, ok := in.References[level]
	if level == sifat.Phonemes {
		if ok {
			return ref, nil
		}
		ids, err := a.vocab.Tokenize(sifat.Phonemes, strings.Join(in.Groups, ""))
		if err != nil {
			return nil, &InputError{Level: level, Err: err}
		}
		return ids, nil
	}
	if !ok {
		return nil, nil
	}
	if len(ref) != len(in.Groups) {
		return nil, &InputError{
			Level: level,
			Err:   fmt.Errorf("reference has %d ids for %d groups", len(ref), len(in.Groups)),
		}
	}
	return ref, nil
}

// Format zips sifat units into one record per group. Positions holding
// [align.Missing] or lying past the end of a unit are left absent, as are
// levels with no unit at all.
func (a *Aggregator) Format(units map[sifat.Level]Unit, groups []string) ([]sifat.Sifa, error) {
	records := make([]sifat.Sifa, len(groups))
	for i, g := range groups {
		records[i].PhonemesGroup = g
	}
	for _, level := range sifat.Features {
		u, ok := units[level]
		if !ok {
			continue
		}
		for i := range records {
			if i >= len(u.IDs) || u.IDs[i] == align.Missing {
				continue
			}
			label, err := a.vocab.Label(level, u.IDs[i])
			if err != nil {
				return nil, fmt.Errorf("multilevel: group %d: %w", i, err)
			}
			var p float64
			if i < len(u.Probs) {
				p = u.Probs[i]
			}
			records[i].Set(level, &sifat.SingleUnit{Text: label, Prob: p, Idx: u.IDs[i]})
		}
	}
	return records, nil
}

// AggregateBatch aggregates independent utterances concurrently. The output
// order matches ins. The first error aborts the batch.
func (a *Aggregator) AggregateBatch(ctx context.Context, ins []Input) ([]Output, error) {
	outs := make([]Output, len(ins))
	eg, egCtx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		eg.SetLimit(a.workers)
	}
	for i, in := range ins {
		eg.Go(func() error {
			out, err := a.Aggregate(egCtx, in)
			if err != nil {
				return fmt.Errorf("multilevel: batch item %d: %w", i, err)
			}
			outs[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outs, nil
}
