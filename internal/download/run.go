package download

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"snap-memories-downloader/internal/exiftool"
	"snap-memories-downloader/internal/fetch"
	"snap-memories-downloader/internal/ffmpeg"
	"snap-memories-downloader/internal/geo"
	"snap-memories-downloader/internal/ledger"
	"snap-memories-downloader/internal/model"
)

type RunOptions struct {
	OutputDir string
	// Entries discovered from the manifest; nil for pure resume runs
	// that work off the persisted ledger alone.
	Entries []model.Entry

	// RetryFailed flips failed records back to pending before
	// selection. TestLimit > 0 caps the run at the first K pending
	// records (manifest/credential validation runs).
	RetryFailed bool
	TestLimit   int

	Workers       int
	LocalTimezone bool
	MergeOverlays bool
	Progress      bool
	Quiet         bool

	Fetcher    Fetcher
	Transcoder ffmpeg.Transcoder
	Embedder   exiftool.Embedder
	Resolver   geo.Resolver
}

type RunResult struct {
	RunID      string         `json:"run_id"`
	OutputDir  string         `json:"output_dir"`
	LedgerPath string         `json:"ledger_path"`
	Processed  int            `json:"processed"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Summary    ledger.Summary `json:"summary"`
}

// Run drives the download pipeline: select eligible ledger records,
// dispatch them to a bounded worker pool, and persist the ledger
// after every single status transition so an interruption loses at
// most the entries currently in flight.
func Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	if opts.Fetcher == nil || opts.Transcoder == nil || opts.Embedder == nil || opts.Resolver == nil {
		return RunResult{}, fmt.Errorf("fetcher, transcoder, embedder, and resolver are required")
	}
	if err := ledger.Mkdir(opts.OutputDir); err != nil {
		return RunResult{}, err
	}

	lock, err := ledger.AcquireLock(opts.OutputDir)
	if err != nil {
		return RunResult{}, err
	}
	defer func() {
		_ = lock.Release()
	}()

	logger, logCloser, err := newRunLogger(opts.OutputDir)
	if err != nil {
		return RunResult{}, err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	led, err := ledger.Load(ledger.Path(opts.OutputDir))
	if err != nil {
		// a corrupt ledger is fatal before any dispatch: guessing
		// which downloads already happened risks duplicates
		return RunResult{}, err
	}
	if reset := led.ResetInterrupted(); reset > 0 {
		logger.WithField("count", reset).Info("reset interrupted records to pending")
	}
	if stale := reconcileWithDisk(opts.OutputDir, led); stale > 0 {
		logger.WithField("count", stale).Info("reset success records with missing files to pending")
	}
	led.Merge(opts.Entries)
	if err := led.Persist(); err != nil {
		return RunResult{}, err
	}

	skipped := led.Counts().Success
	eligible := led.Pending(opts.RetryFailed, opts.TestLimit)
	if err := led.Persist(); err != nil {
		return RunResult{}, err
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	logger.WithFields(map[string]any{
		"run_id":   led.RunID,
		"eligible": len(eligible),
		"skipped":  skipped,
		"workers":  workers,
	}).Info("run started")

	asm := &assembler{
		outputDir:     opts.OutputDir,
		fetcher:       opts.Fetcher,
		transcoder:    opts.Transcoder,
		mergeOverlays: opts.MergeOverlays,
	}
	embed := &embedStage{
		outputDir: opts.OutputDir,
		resolver:  opts.Resolver,
		embedder:  opts.Embedder,
		localTZ:   opts.LocalTimezone,
	}

	dash := newDashboard(opts.Progress && !opts.Quiet, len(eligible))
	dash.Start()
	defer dash.Stop()

	var (
		stateMu   sync.Mutex
		logMu     sync.Mutex
		wg        sync.WaitGroup
		processed atomic.Int64
		succeeded atomic.Int64
		failed    atomic.Int64
		fatalErr  atomic.Value
	)
	setFatal := func(err error) {
		if err == nil {
			return
		}
		if fatalErr.Load() == nil {
			fatalErr.Store(err.Error())
		}
	}
	say := func(format string, args ...any) {
		if opts.Quiet || opts.Progress {
			return
		}
		logMu.Lock()
		fmt.Printf(format+"\n", args...)
		logMu.Unlock()
	}

	jobCh := make(chan int)
	workerFn := func(workerID int) {
		defer wg.Done()
		for i := range jobCh {
			if ctx.Err() != nil || fatalErr.Load() != nil {
				continue
			}

			stateMu.Lock()
			rec := &led.Records[i]
			if rec.Status != model.StatusPending {
				stateMu.Unlock()
				continue
			}
			if err := model.TransitionRecord(rec, model.StatusInProgress, ""); err != nil {
				stateMu.Unlock()
				setFatal(err)
				continue
			}
			rec.Attempts++
			rec.LastAttemptAt = time.Now().UTC().Format(time.RFC3339)
			if err := led.Persist(); err != nil {
				stateMu.Unlock()
				setFatal(fmt.Errorf("persist ledger: %w", err))
				continue
			}
			entry := rec.Entry
			stateMu.Unlock()

			dash.SetWorker(workerID, entry.BaseName())
			say("[#%s] start %s %s", entry.BaseName(), entry.MediaKind, entry.CapturedAt.Format(time.RFC3339))

			files, procErr := asm.process(ctx, entry)
			warning := ""
			if procErr == nil {
				warning = embed.apply(ctx, entry, files)
				// tag writing rewrites the files, so the ledger
				// records post-embed sizes
				files = refreshSizes(opts.OutputDir, files)
			}

			if procErr != nil && (errors.Is(procErr, context.Canceled) || errors.Is(procErr, context.DeadlineExceeded)) {
				// interrupted mid-entry: the record stays in_progress
				// on disk and the next load resets it to pending, so
				// a plain resume redoes it
				dash.ClearWorker(workerID)
				logger.WithField("number", entry.Number).Info("entry interrupted, will be redone on resume")
				continue
			}

			processed.Add(1)
			stateMu.Lock()
			rec = &led.Records[i]
			if procErr != nil {
				reason := classifyFailure(procErr)
				if err := model.TransitionRecord(rec, model.StatusFailed, reason); err != nil {
					stateMu.Unlock()
					setFatal(err)
					continue
				}
				rec.Files = nil
				rec.CompletedAt = ""
				rec.Error = truncate(procErr.Error(), 1200)
				failed.Add(1)
			} else {
				if err := model.TransitionRecord(rec, model.StatusSuccess, ""); err != nil {
					stateMu.Unlock()
					setFatal(err)
					continue
				}
				rec.Files = files
				rec.Error = ""
				rec.MetadataWarning = warning
				rec.CompletedAt = time.Now().UTC().Format(time.RFC3339)
				succeeded.Add(1)
			}
			persistErr := led.Persist()
			stateMu.Unlock()
			if persistErr != nil {
				setFatal(fmt.Errorf("persist ledger: %w", persistErr))
				continue
			}

			dash.SetTotals(int(succeeded.Load()), int(failed.Load()))
			dash.ClearWorker(workerID)

			fields := logger.WithFields(map[string]any{
				"number": entry.Number,
				"worker": workerID,
			})
			if procErr != nil {
				fields.WithError(procErr).Warn("entry failed")
				say("[#%s] fail  %s", entry.BaseName(), truncate(procErr.Error(), 200))
			} else {
				fields.WithField("files", len(files)).Info("entry done")
				if warning != "" {
					fields.WithField("warning", warning).Warn("metadata embedding degraded")
					say("[#%s] done  (metadata warning: %s)", entry.BaseName(), truncate(warning, 200))
				} else {
					say("[#%s] done", entry.BaseName())
				}
			}
		}
	}

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go workerFn(w)
	}

	// an interrupt stops dispatch; in-flight entries finish their
	// current persistence step
dispatch:
	for _, i := range eligible {
		if fatalErr.Load() != nil {
			break
		}
		select {
		case jobCh <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobCh)
	wg.Wait()

	if msg := fatalErr.Load(); msg != nil {
		return RunResult{}, fmt.Errorf("%s", msg.(string))
	}

	stateMu.Lock()
	if err := led.Persist(); err != nil {
		stateMu.Unlock()
		return RunResult{}, err
	}
	summary := led.Counts()
	stateMu.Unlock()

	logger.WithFields(map[string]any{
		"processed": processed.Load(),
		"succeeded": succeeded.Load(),
		"failed":    failed.Load(),
	}).Info("run finished")

	return RunResult{
		RunID:      led.RunID,
		OutputDir:  opts.OutputDir,
		LedgerPath: ledger.Path(opts.OutputDir),
		Processed:  int(processed.Load()),
		Succeeded:  int(succeeded.Load()),
		Failed:     int(failed.Load()),
		Skipped:    skipped,
		Summary:    summary,
	}, nil
}

// reconcileWithDisk flips success records whose output files vanished
// or changed size back to pending. A success record is only trusted
// while the files it names are still intact on disk.
func reconcileWithDisk(outputDir string, led *ledger.Ledger) int {
	stale := 0
	for i := range led.Records {
		rec := &led.Records[i]
		if rec.Status != model.StatusSuccess {
			continue
		}
		missing := missingFile(outputDir, rec.Files)
		if missing == "" {
			continue
		}
		_ = model.TransitionRecord(rec, model.StatusPending, "missing_local_media")
		rec.Files = nil
		rec.CompletedAt = ""
		rec.Error = fmt.Sprintf("previously downloaded file %s is missing or truncated", missing)
		stale++
	}
	return stale
}

func classifyFailure(err error) string {
	var mergeErr *ffmpeg.MergeError
	switch {
	case errors.Is(err, model.ErrMalformedEntry):
		return "malformed_entry"
	case errors.Is(err, fetch.ErrLinkExpired):
		return "link_expired"
	case errors.Is(err, fetch.ErrTransient):
		return "fetch_transient"
	case errors.As(err, &mergeErr):
		return "merge_failed"
	default:
		return "download_error"
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// back up to a rune boundary so the persisted message stays
	// valid UTF-8
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
