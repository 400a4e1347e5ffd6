// Package analysis turns one recited utterance and its phonetized reference
// into a [Report]: the fused sifat records, the phoneme diff, attribute
// errors, the word mapping and elongation checks.
//
// An [Analyzer] is immutable after construction and safe for concurrent use.
// Configuration changes are applied by building a new one.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/muaalem/internal/observe"
	"github.com/MrWong99/muaalem/pkg/align"
	"github.com/MrWong99/muaalem/pkg/elongation"
	"github.com/MrWong99/muaalem/pkg/explain"
	"github.com/MrWong99/muaalem/pkg/multilevel"
	"github.com/MrWong99/muaalem/pkg/sifat"
	"github.com/MrWong99/muaalem/pkg/vocab"
)

// Analyzer runs the decoding engine and the explain layer.
type Analyzer struct {
	vocab   *vocab.Vocabulary
	agg     *multilevel.Aggregator
	workers int
	metrics *observe.Metrics
	project []explain.ProjectOption
	newID   func() string
	sink    Sink
}

// Sink receives every successful report. Save must be safe for concurrent
// use. A failing Save is logged and does not fail the analysis.
type Sink interface {
	Save(rep *Report) error
}

// Option is a functional option for [New].
type Option func(*Analyzer)

// WithWorkers caps how many requests [Analyzer.AnalyzeBatch] runs at once.
// Values below 1 mean no limit. Defaults to 4.
func WithWorkers(n int) Option {
	return func(a *Analyzer) { a.workers = n }
}

// WithMetrics records analysis and per-level metrics into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithProjection tunes the word projection heuristics.
func WithProjection(containmentTolerance int, lowConfidenceSimilarity float64) Option {
	return func(a *Analyzer) {
		a.project = []explain.ProjectOption{
			explain.WithContainmentTolerance(containmentTolerance),
			explain.WithLowConfidenceSimilarity(lowConfidenceSimilarity),
		}
	}
}

// WithIDFunc replaces the report ID generator. Defaults to random UUIDs.
func WithIDFunc(fn func() string) Option {
	return func(a *Analyzer) { a.newID = fn }
}

// WithSink passes every successful report to s.
func WithSink(s Sink) Option {
	return func(a *Analyzer) { a.sink = s }
}

// New creates an [Analyzer] over v.
func New(v *vocab.Vocabulary, opts ...Option) *Analyzer {
	a := &Analyzer{vocab: v, workers: 4, newID: uuid.NewString}
	for _, o := range opts {
		o(a)
	}
	agg := []multilevel.Option{multilevel.WithWorkers(a.workers)}
	if a.metrics != nil {
		m := a.metrics
		agg = append(agg, multilevel.WithObserver(func(l sifat.Level, s multilevel.LevelStats, elapsed time.Duration) {
			m.RecordLevel(context.Background(), string(l), s.Outcome.String(), elapsed)
		}))
	}
	a.agg = multilevel.New(v, agg...)
	return a
}

// Vocabulary returns the vocabulary labels are resolved with.
func (a *Analyzer) Vocabulary() *vocab.Vocabulary { return a.vocab }

// Analyze analyses one request. Structural problems with the request are
// returned as errors wrapping [ErrInvalidRequest] or the engine's malformed
// input errors; a recitation that could not be aligned still yields a
// report with [StatusUnaligned].
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	ctx, span := observe.StartSpan(ctx, "analysis.Analyze")
	defer span.End()

	if a.metrics != nil {
		a.metrics.InFlight.Add(ctx, 1)
		defer a.metrics.InFlight.Add(ctx, -1)
	}

	start := time.Now()
	rep, err := a.analyze(ctx, req)
	elapsed := time.Since(start)

	status := "error"
	if err == nil {
		status = string(rep.Status)
	}
	if a.metrics != nil {
		a.metrics.RecordAnalysis(ctx, status, elapsed)
	}
	if err != nil {
		observe.RecordError(span, err)
		observe.Logger(ctx).Debug("analysis failed", "err", err, "duration", elapsed)
		return nil, err
	}

	if a.sink != nil {
		if err := a.sink.Save(rep); err != nil {
			observe.Logger(ctx).Warn("report sink failed", "id", rep.ID, "err", err)
		}
	}

	span.SetAttributes(
		attribute.String("analysis.id", rep.ID),
		attribute.String("analysis.status", status),
		attribute.Int("analysis.groups", len(rep.Sifat)),
	)
	observe.Logger(ctx).Debug("analysis finished",
		"id", rep.ID,
		"status", status,
		"groups", len(rep.Sifat),
		"warnings", len(rep.Warnings),
		"duration", elapsed,
	)
	return rep, nil
}

func (a *Analyzer) analyze(ctx context.Context, req Request) (*Report, error) {
	p, err := prepare(req, a.vocab)
	if err != nil {
		return nil, err
	}
	out, err := a.agg.Aggregate(ctx, p.input)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	id := req.ID
	if id == "" {
		id = a.newID()
	}
	actual := out.Phonemes.Text
	diff := explain.DiffPhonemes(p.text, actual)

	rep := &Report{
		ID:           id,
		Status:       StatusOK,
		PhonemesText: actual,
		Phonemes:     out.Phonemes,
		Sifat:        make([]IndexedSifa, len(out.Sifat)),
		Reference: ReferenceSummary{
			Sura:           req.Reference.Sura,
			Aya:            req.Reference.Aya,
			UthmaniText:    req.Reference.UthmaniText,
			PhoneticScript: PhoneticScript{PhonemesText: p.text},
		},
		ExpectedSifat:  make([]ExpectedSifa, len(req.Reference.ExpectedSifat)),
		PhonemeDiff:    diff,
		SifatErrors:    explain.CompareSifat(out.Sifat, p.expected),
		PhonemesByWord: []explain.WordSpan{},
		Levels:         out.Levels,
	}
	for i, s := range out.Sifat {
		rep.Sifat[i] = IndexedSifa{Index: i, Sifa: s}
	}
	for i, e := range req.Reference.ExpectedSifat {
		e.Index = i
		if e.Phonemes == "" {
			e.Phonemes = p.groups[i]
		}
		rep.ExpectedSifat[i] = e
	}
	if rep.SifatErrors == nil {
		rep.SifatErrors = []explain.SifaError{}
	}

	groups := explain.SegmentGroups(p.groups, explain.ChunkPhonemes(actual), diff)
	rep.Explanation = explain.ExplainSifat(groups, out.Sifat, p.expected)

	if len(p.words) > 0 {
		rep.PhonemesByWord = explain.ProjectWords(p.words, p.groups, p.perWord, a.project...)
	}
	if rep.Elongations, err = a.elongations(p); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	a.summarise(ctx, rep)
	return rep, nil
}

// elongations measures every requested target on the phoneme frames.
func (a *Analyzer) elongations(p *prepared) ([]Elongation, error) {
	if len(p.targets) == 0 {
		return nil, nil
	}
	frames := p.input.Streams[sifat.Phonemes]
	if n, ok := p.input.Lengths[sifat.Phonemes]; ok && n > 0 {
		var err error
		if frames, err = frames.Truncate(n); err != nil {
			return nil, err
		}
	}

	out := make([]Elongation, 0, len(p.targets))
	for _, t := range p.targets {
		e := Elongation{Phoneme: t.Phoneme, Target: t.Frames}
		occ := elongation.Occupancy(frames.IDs, t.id)
		run, ok := elongation.Longest(occ, 1)
		if ok {
			e.Found, e.Start, e.Frames = true, run.Start, run.Length
			for _, k := range elongation.FindRunStarts(occ[run.Start:run.End()], t.Frames, t.MinRepeat) {
				e.Excess = append(e.Excess, run.Start+k)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// summarise derives the status and warnings and records word metrics.
func (a *Analyzer) summarise(ctx context.Context, rep *Report) {
	for _, l := range sifat.AllLevels() {
		s, ok := rep.Levels[l]
		if ok && s.Aligned && s.Outcome == align.OutcomeDegenerate {
			rep.Status = StatusUnaligned
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("level %s: no viable alignment against %d reference symbols", l, s.Reference))
		}
	}

	low := 0
	for _, w := range rep.PhonemesByWord {
		if !w.LowConfidence {
			continue
		}
		low++
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("word %d %q: low confidence mapping (similarity %.2f)", w.WordIndex, w.Word, w.Similarity))
	}
	if low > 0 && rep.Status == StatusOK {
		rep.Status = StatusLowConfidence
	}
	if a.metrics != nil {
		a.metrics.RecordLowConfidenceWords(ctx, low)
	}

	for _, e := range rep.Elongations {
		switch {
		case !e.Found:
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("elongation %q: phoneme not held in any frame", e.Phoneme))
		case len(e.Excess) > 0:
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("elongation %q: held %d frames, %d expected", e.Phoneme, e.Frames, e.Target))
		case e.Short():
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("elongation %q: held only %d frames, %d expected", e.Phoneme, e.Frames, e.Target))
		}
	}
}

// AnalyzeBatch analyses reqs concurrently, bounded by the worker limit.
// Reports are returned in request order. The first failure cancels the
// remaining work.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, reqs []Request) ([]*Report, error) {
	ctx, span := observe.StartSpan(ctx, "analysis.AnalyzeBatch")
	defer span.End()
	span.SetAttributes(attribute.Int("analysis.batch_size", len(reqs)))

	out := make([]*Report, len(reqs))
	eg, egCtx := errgroup.WithContext(ctx)
	if a.workers > 0 {
		eg.SetLimit(a.workers)
	}
	for i, req := range reqs {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			rep, err := a.Analyze(egCtx, req)
			if err != nil {
				return fmt.Errorf("analysis: request %d: %w", i, err)
			}
			out[i] = rep
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		observe.RecordError(span, err)
		return nil, err
	}
	return out, nil
}
