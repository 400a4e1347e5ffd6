package align_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/muaalem/pkg/align"
)

const M = align.Missing

func TestAlign(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ref, pred   []int
		wantIDs     []int
		wantKept    []bool
		wantOutcome align.Outcome
	}{
		{
			name:        "equal length passes through",
			ref:         []int{0, 1, 2, 3},
			pred:        []int{3, 2, 1, 0},
			wantIDs:     []int{3, 2, 1, 0},
			wantKept:    []bool{true, true, true, true},
			wantOutcome: align.OutcomePassthrough,
		},
		{
			name:        "trailing extra discarded",
			ref:         []int{0, 1, 2, 3},
			pred:        []int{0, 1, 2, 3, 4},
			wantIDs:     []int{0, 1, 2, 3},
			wantKept:    []bool{true, true, true, true, false},
			wantOutcome: align.OutcomeFront,
		},
		{
			name:        "suffix match with trailing extra",
			ref:         []int{0, 1, 2, 3},
			pred:        []int{2, 3, 4},
			wantIDs:     []int{M, M, 2, 3},
			wantKept:    []bool{true, true, false},
			wantOutcome: align.OutcomeShifted,
		},
		{
			name:        "leading spurious symbol",
			ref:         []int{0, 1, 2, 3},
			pred:        []int{-1, 0, 1, 2, 4},
			wantIDs:     []int{0, 1, 2, 4},
			wantKept:    []bool{false, true, true, true, true},
			wantOutcome: align.OutcomeShifted,
		},
		{
			name:        "missing first symbol",
			ref:         []int{0, 1, 2, 3},
			pred:        []int{1, 2, 3},
			wantIDs:     []int{M, 1, 2, 3},
			wantKept:    []bool{true, true, true},
			wantOutcome: align.OutcomeBack,
		},
		{
			name:        "missing last symbol",
			ref:         []int{5, 6, 7, 8},
			pred:        []int{5, 6, 7},
			wantIDs:     []int{5, 6, 7, M},
			wantKept:    []bool{true, true, true},
			wantOutcome: align.OutcomeFront,
		},
		{
			name:        "total mismatch",
			ref:         []int{1, 2, 3},
			pred:        []int{7, 8},
			wantIDs:     []int{M, M, M},
			wantKept:    []bool{false, false},
			wantOutcome: align.OutcomeDegenerate,
		},
		{
			name:        "empty prediction",
			ref:         []int{1, 2},
			pred:        []int{},
			wantIDs:     []int{M, M},
			wantKept:    []bool{},
			wantOutcome: align.OutcomeDegenerate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := align.Align(tt.pred, tt.ref)
			if err != nil {
				t.Fatalf("Align: %v", err)
			}
			if !slices.Equal(got.IDs, tt.wantIDs) {
				t.Errorf("IDs = %v, want %v", got.IDs, tt.wantIDs)
			}
			if !slices.Equal(got.Kept, tt.wantKept) {
				t.Errorf("Kept = %v, want %v", got.Kept, tt.wantKept)
			}
			if got.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", got.Outcome, tt.wantOutcome)
			}
			if len(got.IDs) != len(tt.ref) {
				t.Errorf("len(IDs) = %d, want reference length %d", len(got.IDs), len(tt.ref))
			}
			if len(got.Kept) != len(tt.pred) {
				t.Errorf("len(Kept) = %d, want decoded length %d", len(got.Kept), len(tt.pred))
			}
		})
	}
}

func TestAlign_SourceIndices(t *testing.T) {
	t.Parallel()
	got, err := align.Align([]int{-1, 0, 1, 2, 4}, []int{0, 1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{1, 2, 3, 4}; !slices.Equal(got.Source, want) {
		t.Errorf("Source = %v, want %v", got.Source, want)
	}
	if got.Shift != -1 {
		t.Errorf("Shift = %d, want -1", got.Shift)
	}
	if got.Matches != 3 {
		t.Errorf("Matches = %d, want 3", got.Matches)
	}
	if got.Discarded() != 1 {
		t.Errorf("Discarded() = %d, want 1", got.Discarded())
	}
}

func TestAlign_PrefersMoreMatches(t *testing.T) {
	t.Parallel()
	// Only shift 1 lines up 2, 3 and 4.
	ref := []int{9, 2, 3, 4, 5}
	pred := []int{2, 3, 4, 6}
	got, err := align.Align(pred, ref)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int{M, 2, 3, 4, 6}; !slices.Equal(got.IDs, want) {
		t.Errorf("IDs = %v, want %v", got.IDs, want)
	}
	if got.Shift != 1 {
		t.Errorf("Shift = %d, want 1", got.Shift)
	}
}

func TestAlign_DoesNotAliasInput(t *testing.T) {
	t.Parallel()
	pred := []int{1, 2}
	got, err := align.Align(pred, []int{1, 3})
	if err != nil {
		t.Fatal(err)
	}
	got.IDs[0] = 42
	if pred[0] != 1 {
		t.Errorf("pred modified through result: %v", pred)
	}
}

func TestAlign_EmptyReference(t *testing.T) {
	t.Parallel()
	if _, err := align.Align([]int{1}, nil); !errors.Is(err, align.ErrEmptyReference) {
		t.Errorf("Align error = %v, want ErrEmptyReference", err)
	}
}

func TestOutcome_String(t *testing.T) {
	t.Parallel()
	if got := align.OutcomeBack.String(); got != "back" {
		t.Errorf("String() = %q, want back", got)
	}
	text, err := align.OutcomeDegenerate.MarshalText()
	if err != nil || string(text) != "degenerate" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}
}
