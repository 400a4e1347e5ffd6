// Package reportlog keeps an append-only audit trail of analysis reports.
// Each report is summarised as one JSON line in a local file.
package reportlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MrWong99/muaalem/internal/analysis"
	"github.com/MrWong99/muaalem/pkg/explain"
)

// Compile-time interface check.
var _ analysis.Sink = (*FileStore)(nil)

// Record is a single report summary written to the file store.
type Record struct {
	Timestamp     time.Time       `json:"timestamp"`
	ID            string          `json:"id"`
	Status        analysis.Status `json:"status"`
	Sura          *int            `json:"sura,omitempty"`
	Aya           *int            `json:"aya,omitempty"`
	PhonemesText  string          `json:"phonemes_text"`
	ExpectedText  string          `json:"expected_text"`
	PhonemeEdits  bool            `json:"phoneme_edits"`
	SifatErrors   int             `json:"sifat_errors"`
	LowConfidence int             `json:"low_confidence_words"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// NewRecord summarises rep.
func NewRecord(rep *analysis.Report, now time.Time) Record {
	r := Record{
		Timestamp:    now.UTC(),
		ID:           rep.ID,
		Status:       rep.Status,
		Sura:         rep.Reference.Sura,
		Aya:          rep.Reference.Aya,
		PhonemesText: rep.PhonemesText,
		ExpectedText: rep.Reference.PhoneticScript.PhonemesText,
		PhonemeEdits: explain.HasDifferences(rep.PhonemeDiff),
		SifatErrors:  len(rep.SifatErrors),
		Warnings:     rep.Warnings,
	}
	for _, w := range rep.PhonemesByWord {
		if w.LowConfidence {
			r.LowConfidence++
		}
	}
	return r
}

// FileStore persists report summaries as JSON lines in a local file.
// Thread-safe for concurrent use.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore that writes to the given path.
// The file is created on the first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Save appends the summary of rep to the file.
func (fs *FileStore) Save(rep *analysis.Report) error {
	data, err := json.Marshal(NewRecord(rep, fs.now()))
	if err != nil {
		return fmt.Errorf("reportlog: marshal: %w", err)
	}
	data = append(data, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("reportlog: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("reportlog: write: %w", err)
	}
	return nil
}
