package analysis_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/muaalem/internal/analysis"
	"github.com/MrWong99/muaalem/internal/observe"
	"github.com/MrWong99/muaalem/pkg/align"
	"github.com/MrWong99/muaalem/pkg/ctc"
	"github.com/MrWong99/muaalem/pkg/explain"
	"github.com/MrWong99/muaalem/pkg/multilevel"
	"github.com/MrWong99/muaalem/pkg/sifat"
	"github.com/MrWong99/muaalem/pkg/vocab"
)

// ── helpers ──────────────────────────────────────────────────────────────────

func testVocab(t *testing.T) *vocab.Vocabulary {
	t.Helper()
	v, err := vocab.New(map[sifat.Level]map[int]string{
		sifat.Phonemes:   {1: "a", 2: "b", 3: "c", 4: "d"},
		sifat.HamsOrJahr: {1: "hams", 2: "jahr"},
		sifat.Ghonna:     {1: "maghnoon", 2: "not_maghnoon"},
	})
	if err != nil {
		t.Fatalf("vocab.New: %v", err)
	}
	return v
}

func stream(ids ...int) ctc.FrameStream {
	probs := make([]float64, len(ids))
	for i := range probs {
		probs[i] = 0.9
	}
	return ctc.FrameStream{IDs: ids, Probs: probs}
}

func newAnalyzer(t *testing.T, opts ...analysis.Option) *analysis.Analyzer {
	t.Helper()
	opts = append([]analysis.Option{analysis.WithIDFunc(func() string { return "fixed" })}, opts...)
	return analysis.New(testVocab(t), opts...)
}

// baseRequest recites "abcd" against four single-phoneme groups with the
// last group voiced although voiceless was expected.
func baseRequest() analysis.Request {
	return analysis.Request{
		Streams: map[sifat.Level]ctc.FrameStream{
			sifat.Phonemes:   stream(1, 1, 2, 0, 3, 4),
			sifat.HamsOrJahr: stream(1, 0, 1, 0, 1, 0, 2),
		},
		Reference: analysis.Reference{
			PhonemesText: "abcd",
			Groups:       []string{"a", "b", "c", "d"},
			ExpectedSifat: []analysis.ExpectedSifa{
				{HamsOrJahr: "hams"}, {HamsOrJahr: "hams"}, {HamsOrJahr: "hams"}, {HamsOrJahr: "hams"},
			},
			Words: []analysis.Word{{Text: "w1", Phonemes: "ab"}, {Text: "w2", Phonemes: "cd"}},
		},
	}
}

// ── Analyze ──────────────────────────────────────────────────────────────────

func TestAnalyze(t *testing.T) {
	t.Parallel()
	rep, err := newAnalyzer(t).Analyze(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if rep.ID != "fixed" {
		t.Errorf("ID = %q, want fixed", rep.ID)
	}
	if rep.Status != analysis.StatusOK || len(rep.Warnings) != 0 {
		t.Errorf("status = %q warnings = %v, want ok and none", rep.Status, rep.Warnings)
	}
	if rep.PhonemesText != "abcd" {
		t.Errorf("PhonemesText = %q, want abcd", rep.PhonemesText)
	}
	if !slices.Equal(rep.Phonemes.IDs, []int{1, 2, 3, 4}) {
		t.Errorf("phoneme ids = %v, want [1 2 3 4]", rep.Phonemes.IDs)
	}
	if rep.Reference.PhoneticScript.PhonemesText != "abcd" {
		t.Errorf("reference text = %q", rep.Reference.PhoneticScript.PhonemesText)
	}

	if len(rep.Sifat) != 4 {
		t.Fatalf("got %d sifat, want 4", len(rep.Sifat))
	}
	for i, s := range rep.Sifat {
		if s.Index != i || s.PhonemesGroup != []string{"a", "b", "c", "d"}[i] {
			t.Errorf("sifa %d = index %d group %q", i, s.Index, s.PhonemesGroup)
		}
		if s.Ghonna != nil {
			t.Errorf("sifa %d has ghonna without a ghonna stream", i)
		}
	}
	if got := rep.Sifat[3].HamsOrJahr; got == nil || got.Text != "jahr" {
		t.Errorf("sifa 3 hams_or_jahr = %+v, want jahr", got)
	}

	if len(rep.SifatErrors) != 1 || rep.SifatErrors[0].Index != 3 {
		t.Fatalf("sifat errors = %+v, want one at index 3", rep.SifatErrors)
	}
	if e := rep.SifatErrors[0].Errors[0]; e.Expected != "hams" || e.Actual != "jahr" {
		t.Errorf("attribute error = %+v", e)
	}

	if explain.HasDifferences(rep.PhonemeDiff) {
		t.Errorf("phoneme diff = %+v, want all equal", rep.PhonemeDiff)
	}
	if len(rep.Explanation) != 4 || rep.Explanation[3].Mismatches() != 1 {
		t.Errorf("explanation = %+v, want 4 rows with one mismatch in the last", rep.Explanation)
	}

	if len(rep.PhonemesByWord) != 2 {
		t.Fatalf("got %d word spans, want 2", len(rep.PhonemesByWord))
	}
	if w := rep.PhonemesByWord[1]; w.Start != 2 || w.End != 4 || w.Phonemes != "cd" {
		t.Errorf("word 1 = [%d,%d) %q, want [2,4) cd", w.Start, w.End, w.Phonemes)
	}

	for _, l := range []sifat.Level{sifat.Phonemes, sifat.HamsOrJahr} {
		s, ok := rep.Levels[l]
		if !ok || !s.Aligned || s.Outcome != align.OutcomePassthrough {
			t.Errorf("level %s stats = %+v, want aligned passthrough", l, s)
		}
	}
	if len(rep.ExpectedSifat) != 4 || rep.ExpectedSifat[2].Index != 2 || rep.ExpectedSifat[2].Phonemes != "c" {
		t.Errorf("expected sifat = %+v", rep.ExpectedSifat)
	}
}

func TestAnalyze_DerivedGroupsAndText(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(t)

	fromText := analysis.Request{
		Streams:   map[sifat.Level]ctc.FrameStream{sifat.Phonemes: stream(1, 2)},
		Reference: analysis.Reference{PhonemesText: "ab"},
	}
	rep, err := a.Analyze(context.Background(), fromText)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(rep.Sifat) != 2 {
		t.Errorf("groups from text: got %d records, want 2", len(rep.Sifat))
	}

	fromGroups := analysis.Request{
		Streams:   map[sifat.Level]ctc.FrameStream{sifat.Phonemes: stream(1, 2)},
		Reference: analysis.Reference{Groups: []string{"ab"}},
	}
	rep, err = a.Analyze(context.Background(), fromGroups)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.Reference.PhoneticScript.PhonemesText != "ab" {
		t.Errorf("text from groups = %q, want ab", rep.Reference.PhoneticScript.PhonemesText)
	}
	if len(rep.PhonemesByWord) != 0 || rep.PhonemesByWord == nil {
		t.Errorf("PhonemesByWord = %#v, want empty non-nil", rep.PhonemesByWord)
	}
	if rep.SifatErrors == nil {
		t.Error("SifatErrors is nil, want empty slice")
	}
}

func TestAnalyze_Probabilities(t *testing.T) {
	t.Parallel()
	req := baseRequest()
	delete(req.Streams, sifat.HamsOrJahr)
	req.Probabilities = map[sifat.Level][][]float64{
		sifat.HamsOrJahr: {
			{0.1, 0.8, 0.1},
			{0.9, 0.05, 0.05},
			{0.1, 0.7, 0.2},
			{0.9, 0.05, 0.05},
			{0.2, 0.6, 0.2},
			{0.9, 0.05, 0.05},
			{0.1, 0.1, 0.8},
		},
	}
	rep, err := newAnalyzer(t).Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := rep.Sifat[0].HamsOrJahr; got == nil || got.Text != "hams" || got.Prob != 0.8 {
		t.Errorf("sifa 0 = %+v, want hams with prob 0.8", got)
	}
	if got := rep.Sifat[3].HamsOrJahr; got == nil || got.Text != "jahr" {
		t.Errorf("sifa 3 = %+v, want jahr", got)
	}
}

func TestAnalyze_PaddingLengths(t *testing.T) {
	t.Parallel()
	req := baseRequest()
	req.Streams[sifat.Phonemes] = stream(1, 2, 3, 4, 1, 1, 2)
	req.Lengths = map[sifat.Level]int{sifat.Phonemes: 4}
	rep, err := newAnalyzer(t).Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.PhonemesText != "abcd" {
		t.Errorf("PhonemesText = %q, want padding cut to abcd", rep.PhonemesText)
	}
}

func TestAnalyze_Unaligned(t *testing.T) {
	t.Parallel()
	req := baseRequest()
	req.Streams[sifat.Phonemes] = stream(0, 0, 0)
	rep, err := newAnalyzer(t).Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.Status != analysis.StatusUnaligned {
		t.Errorf("status = %q, want unaligned", rep.Status)
	}
	if len(rep.Warnings) == 0 || !strings.Contains(rep.Warnings[0], "level phonemes") {
		t.Errorf("warnings = %v, want phonemes alignment warning", rep.Warnings)
	}
	if explain.Expected(rep.PhonemeDiff) != "abcd" || explain.Actual(rep.PhonemeDiff) != "" {
		t.Errorf("diff = %+v, want all deleted", rep.PhonemeDiff)
	}
	for i, row := range rep.Explanation {
		if row.Tag != explain.TagDelete {
			t.Errorf("row %d tag = %q, want delete", i, row.Tag)
		}
	}
}

func TestAnalyze_LowConfidenceWord(t *testing.T) {
	t.Parallel()
	req := analysis.Request{
		Streams: map[sifat.Level]ctc.FrameStream{sifat.Phonemes: stream(1, 3)},
		Reference: analysis.Reference{
			Groups: []string{"a", "c"},
			Words:  []analysis.Word{{Text: "w1", Phonemes: "b"}, {Text: "w2", Phonemes: "c"}},
		},
	}
	rep, err := newAnalyzer(t).Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.Status != analysis.StatusLowConfidence {
		t.Errorf("status = %q, want low_confidence", rep.Status)
	}
	if !rep.PhonemesByWord[0].LowConfidence || rep.PhonemesByWord[1].LowConfidence {
		t.Errorf("word flags = %v/%v, want true/false", rep.PhonemesByWord[0].LowConfidence, rep.PhonemesByWord[1].LowConfidence)
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], `word 0 "w1"`) {
		t.Errorf("warnings = %v", rep.Warnings)
	}
}

func TestAnalyze_Elongations(t *testing.T) {
	t.Parallel()
	req := baseRequest()
	req.Streams[sifat.Phonemes] = stream(1, 1, 1, 1, 1, 2, 3, 4)
	req.Elongations = []analysis.ElongationTarget{
		{Phoneme: "a", Frames: 3, MinRepeat: 2},
		{Phoneme: "d", Frames: 3},
		{Phoneme: "b", Frames: 1},
	}
	rep, err := newAnalyzer(t).Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(rep.Elongations) != 3 {
		t.Fatalf("got %d elongations, want 3", len(rep.Elongations))
	}

	long := rep.Elongations[0]
	if !long.Found || long.Start != 0 || long.Frames != 5 || !slices.Equal(long.Excess, []int{0, 1}) {
		t.Errorf("a = %+v, want 5 frames from 0 with excess [0 1]", long)
	}
	short := rep.Elongations[1]
	if !short.Short() || short.Start != 7 {
		t.Errorf("d = %+v, want short run at 7", short)
	}
	exact := rep.Elongations[2]
	if exact.Short() || len(exact.Excess) != 0 {
		t.Errorf("b = %+v, want exact", exact)
	}

	if rep.Status != analysis.StatusOK {
		t.Errorf("status = %q, elongation must not change it", rep.Status)
	}
	if len(rep.Warnings) != 2 {
		t.Errorf("warnings = %v, want two elongation warnings", rep.Warnings)
	}
}

func TestAnalyze_ElongationNotFound(t *testing.T) {
	t.Parallel()
	req := baseRequest()
	req.Elongations = []analysis.ElongationTarget{{Phoneme: "a", Frames: 2}}
	req.Streams[sifat.Phonemes] = stream(2, 3, 4)
	req.Reference = analysis.Reference{PhonemesText: "bcd", Groups: []string{"b", "c", "d"}}
	delete(req.Streams, sifat.HamsOrJahr)

	rep, err := newAnalyzer(t).Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.Elongations[0].Found {
		t.Errorf("elongation = %+v, want not found", rep.Elongations[0])
	}
	if len(rep.Warnings) != 1 || !strings.Contains(rep.Warnings[0], "not held") {
		t.Errorf("warnings = %v", rep.Warnings)
	}
}

func TestAnalyze_Invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*analysis.Request)
		want   []error
	}{
		{"no reference", func(r *analysis.Request) { r.Reference = analysis.Reference{} },
			[]error{analysis.ErrInvalidRequest}},
		{"groups do not spell text", func(r *analysis.Request) { r.Reference.PhonemesText = "abdc" },
			[]error{analysis.ErrInvalidRequest}},
		{"expected sifat count", func(r *analysis.Request) { r.Reference.ExpectedSifat = r.Reference.ExpectedSifat[:2] },
			[]error{analysis.ErrInvalidRequest}},
		{"partially labelled level", func(r *analysis.Request) { r.Reference.ExpectedSifat[1].HamsOrJahr = "" },
			[]error{analysis.ErrInvalidRequest}},
		{"unknown expected label", func(r *analysis.Request) { r.Reference.ExpectedSifat[0].HamsOrJahr = "loud" },
			[]error{analysis.ErrInvalidRequest, vocab.ErrUnknownLabel}},
		{"stream and probabilities", func(r *analysis.Request) {
			r.Probabilities = map[sifat.Level][][]float64{sifat.HamsOrJahr: {{1}}}
		}, []error{analysis.ErrInvalidRequest}},
		{"word without text", func(r *analysis.Request) { r.Reference.Words[0].Text = "" },
			[]error{analysis.ErrInvalidRequest}},
		{"elongation frames", func(r *analysis.Request) {
			r.Elongations = []analysis.ElongationTarget{{Phoneme: "a"}}
		}, []error{analysis.ErrInvalidRequest}},
		{"elongation phoneme", func(r *analysis.Request) {
			r.Elongations = []analysis.ElongationTarget{{Phoneme: "z", Frames: 2}}
		}, []error{analysis.ErrInvalidRequest, vocab.ErrUnknownLabel}},
		{"no phoneme stream", func(r *analysis.Request) { delete(r.Streams, sifat.Phonemes) },
			[]error{multilevel.ErrMalformedInput}},
		{"malformed stream", func(r *analysis.Request) {
			r.Streams[sifat.Phonemes] = ctc.FrameStream{IDs: []int{1, 2}, Probs: []float64{1}}
		}, []error{multilevel.ErrMalformedInput, ctc.ErrMalformedStream}},
		{"malformed padded stream", func(r *analysis.Request) {
			r.Streams[sifat.HamsOrJahr] = ctc.FrameStream{IDs: []int{1, 0, 1, 0, 2}, Probs: []float64{.5, .5, .5}}
			r.Lengths = map[sifat.Level]int{sifat.HamsOrJahr: 4}
		}, []error{multilevel.ErrMalformedInput, ctc.ErrMalformedStream}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := baseRequest()
			tt.mutate(&req)
			_, err := newAnalyzer(t).Analyze(context.Background(), req)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("error %v is not %v", err, want)
				}
			}
		})
	}
}

func TestAnalyze_GeneratesUUID(t *testing.T) {
	t.Parallel()
	rep, err := analysis.New(testVocab(t)).Analyze(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, err := uuid.Parse(rep.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", rep.ID, err)
	}

	req := baseRequest()
	req.ID = "caller-id"
	rep, err = analysis.New(testVocab(t)).Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if rep.ID != "caller-id" {
		t.Errorf("ID = %q, want caller-id", rep.ID)
	}
}

func TestReport_JSON(t *testing.T) {
	t.Parallel()
	rep, err := newAnalyzer(t).Analyze(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"phonemes_text", "phonemes", "sifat", "reference", "expected_sifat",
		"phoneme_diff", "sifat_errors", "phonemes_by_word", "levels"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("report JSON missing %q", key)
		}
	}
	first := doc["sifat"].([]any)[0].(map[string]any)
	if first["index"] != float64(0) || first["phonemes_group"] != "a" {
		t.Errorf("first sifa = %v", first)
	}
	if seg := doc["phoneme_diff"].([]any)[0].(map[string]any); seg["type"] != "equal" {
		t.Errorf("first diff segment = %v", seg)
	}
}

type recordingSink struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (s *recordingSink) Save(rep *analysis.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, rep.ID)
	return s.err
}

func TestAnalyze_Sink(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	a := newAnalyzer(t, analysis.WithSink(sink))
	if _, err := a.Analyze(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	bad := baseRequest()
	bad.Reference = analysis.Reference{}
	_, _ = a.Analyze(context.Background(), bad)
	if !slices.Equal(sink.ids, []string{"fixed"}) {
		t.Errorf("sink saw %v, want only the successful report", sink.ids)
	}

	failing := &recordingSink{err: errors.New("disk full")}
	if _, err := newAnalyzer(t, analysis.WithSink(failing)).Analyze(context.Background(), baseRequest()); err != nil {
		t.Errorf("sink failure failed the analysis: %v", err)
	}
}

// ── AnalyzeBatch ─────────────────────────────────────────────────────────────

func TestAnalyzeBatch(t *testing.T) {
	t.Parallel()
	a := newAnalyzer(t, analysis.WithWorkers(2))
	reqs := make([]analysis.Request, 5)
	for i := range reqs {
		reqs[i] = baseRequest()
		reqs[i].ID = string(rune('a' + i))
	}
	reps, err := a.AnalyzeBatch(context.Background(), reqs)
	if err != nil {
		t.Fatalf("AnalyzeBatch: %v", err)
	}
	for i, rep := range reps {
		if rep.ID != reqs[i].ID {
			t.Errorf("report %d ID = %q, want %q", i, rep.ID, reqs[i].ID)
		}
	}
}

func TestAnalyzeBatch_Error(t *testing.T) {
	t.Parallel()
	bad := baseRequest()
	bad.Reference = analysis.Reference{}
	_, err := newAnalyzer(t).AnalyzeBatch(context.Background(), []analysis.Request{baseRequest(), bad})
	if !errors.Is(err, analysis.ErrInvalidRequest) {
		t.Fatalf("err = %v, want ErrInvalidRequest", err)
	}
	if !strings.Contains(err.Error(), "request 1") {
		t.Errorf("error should name the request, got: %v", err)
	}
}

func TestAnalyzeBatch_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newAnalyzer(t).AnalyzeBatch(ctx, []analysis.Request{baseRequest()})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

// ── metrics ──────────────────────────────────────────────────────────────────

func TestAnalyze_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	a := newAnalyzer(t, analysis.WithMetrics(m))
	if _, err := a.Analyze(context.Background(), baseRequest()); err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	bad := baseRequest()
	bad.Reference = analysis.Reference{}
	_, _ = a.Analyze(context.Background(), bad)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	alignments := int64(0)
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch met.Name {
				case "muaalem.analyses":
					v, _ := dp.Attributes.Value("status")
					counts[v.AsString()] += dp.Value
				case "muaalem.alignments":
					alignments += dp.Value
				}
			}
		}
	}
	if counts["ok"] != 1 || counts["error"] != 1 {
		t.Errorf("analyses by status = %v, want ok=1 error=1", counts)
	}
	if alignments != 2 {
		t.Errorf("alignments = %d, want 2 (phonemes and hams_or_jahr)", alignments)
	}
}
