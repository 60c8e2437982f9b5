package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"snap-memories-downloader/internal/model"

	"github.com/google/uuid"
)

const (
	FileName      = "ledger.json"
	schemaVersion = 1
)

// ErrCorrupt marks a ledger file that exists but cannot be parsed or
// carries unknown statuses. This is fatal to the whole run: the tool
// refuses to guess which downloads already happened.
var ErrCorrupt = errors.New("ledger file is corrupt")

// Ledger is the single source of truth for per-entry processing
// state. Callers serialize mutation and Persist through one lock; the
// ledger itself holds no mutex.
type Ledger struct {
	Path    string
	RunID   string
	Records []model.Record

	createdAt string
}

type document struct {
	SchemaVersion int            `json:"schema_version"`
	RunID         string         `json:"run_id"`
	CreatedAt     string         `json:"created_at"`
	UpdatedAt     string         `json:"updated_at,omitempty"`
	Records       []model.Record `json:"records"`
}

// Path returns the ledger location for an output directory.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Load reads a persisted ledger. A missing file yields a fresh empty
// ledger; a present but unreadable one fails with ErrCorrupt.
func Load(path string) (*Ledger, error) {
	var doc document
	if err := ReadJSON(path, &doc); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Ledger{
				Path:      path,
				RunID:     uuid.NewString(),
				createdAt: time.Now().UTC().Format(time.RFC3339),
			}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	seen := make(map[int]bool, len(doc.Records))
	for _, rec := range doc.Records {
		if !model.IsKnownStatus(rec.Status) {
			return nil, fmt.Errorf("%w: record %d has unknown status %q", ErrCorrupt, rec.Number, rec.Status)
		}
		if rec.Number <= 0 || seen[rec.Number] {
			return nil, fmt.Errorf("%w: record sequence number %d is invalid or duplicated", ErrCorrupt, rec.Number)
		}
		seen[rec.Number] = true
	}

	runID := doc.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Ledger{
		Path:      path,
		RunID:     runID,
		Records:   doc.Records,
		createdAt: doc.CreatedAt,
	}, nil
}

// Get returns a pointer into the ledger's record slice, or nil.
func (l *Ledger) Get(number int) *model.Record {
	for i := range l.Records {
		if l.Records[i].Number == number {
			return &l.Records[i]
		}
	}
	return nil
}

// Upsert replaces or inserts the record for its sequence number,
// keeping the slice ordered by number. Last write wins.
func (l *Ledger) Upsert(rec model.Record) {
	for i := range l.Records {
		if l.Records[i].Number == rec.Number {
			l.Records[i] = rec
			return
		}
	}
	l.Records = append(l.Records, rec)
	sort.Slice(l.Records, func(i, j int) bool {
		return l.Records[i].Number < l.Records[j].Number
	})
}

// Merge inserts ledger records for entries not seen before, as
// pending when valid, as failed when the entry violates its
// structural invariants. Existing records are left untouched.
func (l *Ledger) Merge(entries []model.Entry) {
	for _, e := range entries {
		if l.Get(e.Number) != nil {
			continue
		}
		rec := model.Record{Entry: e}
		if err := e.Validate(); err != nil {
			rec.Status = model.StatusFailed
			rec.Error = err.Error()
			rec.Reason = "malformed_entry"
		} else {
			rec.Status = model.StatusPending
		}
		l.Upsert(rec)
	}
}

// ResetInterrupted rewrites in_progress records to pending. A record
// stuck in_progress means a previous run died mid-entry; partial work
// is redone, not trusted.
func (l *Ledger) ResetInterrupted() int {
	reset := 0
	for i := range l.Records {
		if l.Records[i].Status != model.StatusInProgress {
			continue
		}
		_ = model.TransitionRecord(&l.Records[i], model.StatusPending, "interrupted_previous_run")
		l.Records[i].CompletedAt = ""
		reset++
	}
	return reset
}

// Persist durably writes the full ledger with atomic-replace
// semantics. Callers serialize this through the orchestrator lock.
func (l *Ledger) Persist() error {
	now := time.Now().UTC().Format(time.RFC3339)
	created := l.createdAt
	if created == "" {
		created = now
		l.createdAt = created
	}
	doc := document{
		SchemaVersion: schemaVersion,
		RunID:         l.RunID,
		CreatedAt:     created,
		UpdatedAt:     now,
		Records:       l.Records,
	}
	return WriteJSON(l.Path, doc)
}

// Pending returns the indexes of records eligible for processing
// under a run mode, in sequence order. Retry-failed runs flip failed
// records to pending and select exactly those, leaving untouched
// pending records for a later resume; callers persist after that
// mutation. A positive limit caps selection (test mode).
func (l *Ledger) Pending(retryFailed bool, limit int) []int {
	idx := make([]int, 0, len(l.Records))
	for i := range l.Records {
		if retryFailed {
			if l.Records[i].Status != model.StatusFailed {
				continue
			}
			_ = model.TransitionRecord(&l.Records[i], model.StatusPending, "retry_failed")
		} else if l.Records[i].Status != model.StatusPending {
			continue
		}
		idx = append(idx, i)
		if limit > 0 && len(idx) >= limit {
			break
		}
	}
	return idx
}

// Summary is the status rollup reported at the end of a run.
type Summary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Warnings   int `json:"metadata_warnings"`
	Files      int `json:"files"`
}

func (l *Ledger) Counts() Summary {
	var s Summary
	s.Total = len(l.Records)
	for _, rec := range l.Records {
		switch rec.Status {
		case model.StatusPending:
			s.Pending++
		case model.StatusInProgress:
			s.InProgress++
		case model.StatusSuccess:
			s.Success++
			s.Files += len(rec.Files)
		case model.StatusFailed:
			s.Failed++
		}
		if rec.MetadataWarning != "" {
			s.Warnings++
		}
	}
	return s
}
