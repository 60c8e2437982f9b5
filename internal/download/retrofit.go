package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"snap-memories-downloader/internal/exiftool"
	"snap-memories-downloader/internal/geo"
	"snap-memories-downloader/internal/ledger"
	"snap-memories-downloader/internal/model"
)

type RetrofitOptions struct {
	OutputDir     string
	LocalTimezone bool
	Embedder      exiftool.Embedder
	Resolver      geo.Resolver
	Quiet         bool
}

type RetrofitResult struct {
	RunID        string         `json:"run_id"`
	Updated      int            `json:"updated"`
	Warnings     int            `json:"warnings"`
	MissingFiles int            `json:"missing_files"`
	Summary      ledger.Summary `json:"summary"`
}

// UpdateTimezone re-runs the metadata embed stage over every
// successful record using the GPS and timestamp data preserved in the
// ledger. Nothing is re-fetched. Records whose files vanished from
// disk (or changed size) are flipped back to pending for the next
// resume run.
func UpdateTimezone(ctx context.Context, opts RetrofitOptions) (RetrofitResult, error) {
	if opts.Embedder == nil || opts.Resolver == nil {
		return RetrofitResult{}, fmt.Errorf("embedder and resolver are required")
	}

	lock, err := ledger.AcquireLock(opts.OutputDir)
	if err != nil {
		return RetrofitResult{}, err
	}
	defer func() {
		_ = lock.Release()
	}()

	logger, logCloser, err := newRunLogger(opts.OutputDir)
	if err != nil {
		return RetrofitResult{}, err
	}
	defer func() {
		_ = logCloser.Close()
	}()

	led, err := ledger.Load(ledger.Path(opts.OutputDir))
	if err != nil {
		return RetrofitResult{}, err
	}

	embed := &embedStage{
		outputDir: opts.OutputDir,
		resolver:  opts.Resolver,
		embedder:  opts.Embedder,
		localTZ:   opts.LocalTimezone,
	}

	var result RetrofitResult
	for i := range led.Records {
		rec := &led.Records[i]
		if rec.Status != model.StatusSuccess {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		if missing := missingFile(opts.OutputDir, rec.Files); missing != "" {
			if err := model.TransitionRecord(rec, model.StatusPending, "missing_local_media"); err != nil {
				return RetrofitResult{}, err
			}
			rec.Files = nil
			rec.CompletedAt = ""
			rec.Error = fmt.Sprintf("previously downloaded file %s is missing or truncated", missing)
			if err := led.Persist(); err != nil {
				return RetrofitResult{}, err
			}
			result.MissingFiles++
			logger.WithField("number", rec.Number).Warn("success record lost its files, reset to pending")
			continue
		}

		warning := embed.apply(ctx, rec.Entry, rec.Files)
		rec.Files = refreshSizes(opts.OutputDir, rec.Files)
		rec.MetadataWarning = warning
		if err := led.Persist(); err != nil {
			return RetrofitResult{}, err
		}
		result.Updated++
		if warning != "" {
			result.Warnings++
		}
		if !opts.Quiet {
			fmt.Printf("[#%s] metadata refreshed\n", rec.BaseName())
		}
	}

	result.RunID = led.RunID
	result.Summary = led.Counts()
	return result, nil
}

// missingFile returns the first recorded file that no longer matches
// its persisted byte size, or "" when all files check out.
func missingFile(outputDir string, files []model.FileInfo) string {
	if len(files) == 0 {
		return "(no files recorded)"
	}
	for _, f := range files {
		info, err := os.Stat(filepath.Join(outputDir, f.Path))
		if err != nil || info.Size() != f.Size {
			return f.Path
		}
	}
	return ""
}
