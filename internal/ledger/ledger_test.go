package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"snap-memories-downloader/internal/model"
)

func entry(n int, kind string) model.Entry {
	return model.Entry{
		Number:     n,
		CapturedAt: time.Date(2025, 11, 30, 0, 31, 9, 0, time.UTC),
		MediaKind:  kind,
		Parts:      []model.Part{{URL: "https://example.com/a", Role: model.RoleSingle}},
	}
}

func TestLoad_MissingFileYieldsEmptyLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Records) != 0 {
		t.Fatalf("expected empty ledger, got %d records", len(l.Records))
	}
	if l.RunID == "" {
		t.Fatalf("expected a generated run id")
	}
}

func TestLoad_CorruptFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestLoad_UnknownStatusIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	doc := `{"schema_version":1,"run_id":"r","records":[{"number":1,"status":"weird"}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}
}

func TestPersistAndReload_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	l, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	l.Merge([]model.Entry{entry(2, model.MediaVideo), entry(1, model.MediaImage)})
	if err := l.Persist(); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(reloaded.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(reloaded.Records))
	}
	if reloaded.Records[0].Number != 1 || reloaded.Records[1].Number != 2 {
		t.Fatalf("records not ordered by sequence number: %+v", reloaded.Records)
	}
	if reloaded.RunID != l.RunID {
		t.Fatalf("run id changed across reload")
	}
}

func TestMerge_RecordsMalformedEntriesAsFailed(t *testing.T) {
	l := &Ledger{Path: filepath.Join(t.TempDir(), FileName)}
	bad := entry(1, model.MediaImage)
	bad.Parts = nil
	l.Merge([]model.Entry{bad})

	rec := l.Get(1)
	if rec == nil || rec.Status != model.StatusFailed {
		t.Fatalf("malformed entry not recorded as failed: %+v", rec)
	}
	if !strings.Contains(rec.Error, "malformed entry") {
		t.Fatalf("failed record missing malformed-entry error: %q", rec.Error)
	}
}

func TestMerge_DoesNotTouchExistingRecords(t *testing.T) {
	l := &Ledger{Path: filepath.Join(t.TempDir(), FileName)}
	l.Merge([]model.Entry{entry(1, model.MediaImage)})
	rec := l.Get(1)
	_ = model.TransitionRecord(rec, model.StatusInProgress, "")
	_ = model.TransitionRecord(rec, model.StatusSuccess, "")

	l.Merge([]model.Entry{entry(1, model.MediaImage)})
	if l.Get(1).Status != model.StatusSuccess {
		t.Fatalf("merge regressed an existing record")
	}
}

func TestResetInterrupted(t *testing.T) {
	l := &Ledger{Path: filepath.Join(t.TempDir(), FileName)}
	l.Merge([]model.Entry{entry(1, model.MediaImage), entry(2, model.MediaImage)})
	_ = model.TransitionRecord(l.Get(1), model.StatusInProgress, "")

	if got := l.ResetInterrupted(); got != 1 {
		t.Fatalf("expected 1 reset, got %d", got)
	}
	if l.Get(1).Status != model.StatusPending {
		t.Fatalf("interrupted record not reset to pending")
	}
	if l.Get(2).Status != model.StatusPending {
		t.Fatalf("untouched record changed")
	}
}

func TestPending_RetryFailedOnlyFlipsFailed(t *testing.T) {
	l := &Ledger{Path: filepath.Join(t.TempDir(), FileName)}
	l.Merge([]model.Entry{entry(1, model.MediaImage), entry(2, model.MediaImage), entry(3, model.MediaImage)})
	rec1 := l.Get(1)
	_ = model.TransitionRecord(rec1, model.StatusInProgress, "")
	_ = model.TransitionRecord(rec1, model.StatusSuccess, "")
	rec2 := l.Get(2)
	_ = model.TransitionRecord(rec2, model.StatusInProgress, "")
	_ = model.TransitionRecord(rec2, model.StatusFailed, "fetch_expired")

	idx := l.Pending(true, 0)
	if len(idx) != 1 {
		t.Fatalf("expected only the failed record to be eligible, got %d", len(idx))
	}
	if l.Records[idx[0]].Number != 2 {
		t.Fatalf("wrong record selected: %d", l.Records[idx[0]].Number)
	}
	if l.Get(1).Status != model.StatusSuccess {
		t.Fatalf("retry-failed touched a success record")
	}
	if l.Get(2).Status != model.StatusPending {
		t.Fatalf("failed record not flipped to pending")
	}
	if l.Get(3).Status != model.StatusPending {
		t.Fatalf("untouched pending record changed")
	}
}

func TestPending_LimitForTestMode(t *testing.T) {
	l := &Ledger{Path: filepath.Join(t.TempDir(), FileName)}
	l.Merge([]model.Entry{
		entry(1, model.MediaImage), entry(2, model.MediaImage),
		entry(3, model.MediaImage), entry(4, model.MediaImage),
	})
	if got := len(l.Pending(false, 3)); got != 3 {
		t.Fatalf("expected 3 records in test mode, got %d", got)
	}
}

func TestWriteBytes_AtomicReplaceKeepsNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	if err := WriteBytes(path, []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := WriteBytes(path, []byte("two")); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "two" {
		t.Fatalf("unexpected content %q", data)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".smd-tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}
