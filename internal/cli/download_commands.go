package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"snap-memories-downloader/internal/download"
	"snap-memories-downloader/internal/exiftool"
	"snap-memories-downloader/internal/fetch"
	"snap-memories-downloader/internal/ffmpeg"
	"snap-memories-downloader/internal/geo"
	"snap-memories-downloader/internal/ledger"
	"snap-memories-downloader/internal/manifest"
	"snap-memories-downloader/internal/model"
)

func runDownload(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	manifestPath := fs.String("manifest", "", "path to the memories_history.html export manifest")
	output := fs.String("output", "memories", "output directory (media files, ledger.json, logs)")
	threads := fs.Int("threads", 1, "number of parallel download workers")
	testMode := fs.Bool("test", false, "validation run: process only the first 3 pending entries")
	retryFailed := fs.Bool("retry-failed", false, "also retry entries currently marked failed")
	limitRate := fs.Float64("limit-rate", 0, "download limit in MB/s (0 = unlimited)")
	localTimezone := fs.Bool("local-timezone", false, "use the machine timezone for entries without GPS")
	mergeOverlays := fs.Bool("merge-overlays", false, "burn image overlays into one file instead of keeping main/overlay pairs")
	progress := fs.Bool("progress", true, "show live progress dashboard (TTY only)")
	quiet := fs.Bool("quiet", false, "suppress per-entry output")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limitRate < 0 {
		return errors.New("--limit-rate must be >= 0")
	}
	if *threads < 1 {
		return errors.New("--threads must be >= 1")
	}

	if err := ffmpeg.CheckDependencies(); err != nil {
		return fmt.Errorf("%w (see: snap-memories-downloader doctor)", err)
	}

	var entries []model.Entry
	if strings.TrimSpace(*manifestPath) != "" {
		parsed, err := manifest.ParseFile(strings.TrimSpace(*manifestPath))
		if err != nil {
			return err
		}
		entries = parsed
	} else if _, err := os.Stat(ledger.Path(*output)); err != nil {
		fs.Usage()
		return errors.New("--manifest is required unless an earlier run left a ledger in --output")
	}

	resolver, err := geo.NewResolver()
	if err != nil {
		return fmt.Errorf("load timezone data: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	testLimit := 0
	if *testMode {
		testLimit = 3
	}

	result, err := download.Run(ctx, download.RunOptions{
		OutputDir:     *output,
		Entries:       entries,
		RetryFailed:   *retryFailed,
		TestLimit:     testLimit,
		Workers:       *threads,
		LocalTimezone: *localTimezone,
		MergeOverlays: *mergeOverlays,
		Progress:      *progress && !*jsonOut && stdoutIsTTY(),
		Quiet:         *quiet || *jsonOut,
		Fetcher:       fetch.NewClient(fetch.Options{LimitMBps: *limitRate}),
		Transcoder:    ffmpeg.New(),
		Embedder:      exiftool.New(),
		Resolver:      resolver,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(result)
	}

	fmt.Println("run summary")
	fmt.Printf("run_id: %s\n", result.RunID)
	fmt.Printf("output_dir: %s\n", result.OutputDir)
	fmt.Printf("processed_now: %d\n", result.Processed)
	fmt.Printf("succeeded_now: %d\n", result.Succeeded)
	fmt.Printf("failed_now: %d\n", result.Failed)
	fmt.Printf("skipped_done: %d\n", result.Skipped)
	fmt.Printf("downloaded_progress: %d/%d\n", result.Summary.Success, result.Summary.Total)
	if result.Summary.Warnings > 0 {
		fmt.Printf("metadata_warnings: %d\n", result.Summary.Warnings)
	}
	if ctx.Err() != nil {
		fmt.Println("interrupted: rerun with the same --output to resume")
	} else if result.Summary.Pending > 0 {
		fmt.Printf("pending: %d (rerun with the same --output to continue)\n", result.Summary.Pending)
	}
	if result.Summary.Failed > 0 {
		fmt.Printf("failed: %d (inspect with status, rerun with --retry-failed)\n", result.Summary.Failed)
	}
	return nil
}

func runUpdateTimezone(args []string) error {
	fs := flag.NewFlagSet("update-timezone", flag.ContinueOnError)
	output := fs.String("output", "memories", "output directory of a previous run")
	localTimezone := fs.Bool("local-timezone", false, "use the machine timezone for entries without GPS")
	quiet := fs.Bool("quiet", false, "suppress per-entry output")
	jsonOut := fs.Bool("json", false, "print JSON output")

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	if dep := ffmpeg.DependencyStatus(); !dep.ExiftoolFound {
		return errors.New("exiftool not found on PATH (see: snap-memories-downloader doctor)")
	}
	if _, err := os.Stat(ledger.Path(*output)); err != nil {
		return fmt.Errorf("no ledger found in %s: run a download first", *output)
	}

	resolver, err := geo.NewResolver()
	if err != nil {
		return fmt.Errorf("load timezone data: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := download.UpdateTimezone(ctx, download.RetrofitOptions{
		OutputDir:     *output,
		LocalTimezone: *localTimezone,
		Embedder:      exiftool.New(),
		Resolver:      resolver,
		Quiet:         *quiet || *jsonOut,
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		return printJSON(result)
	}
	fmt.Println("update-timezone summary")
	fmt.Printf("run_id: %s\n", result.RunID)
	fmt.Printf("updated: %d\n", result.Updated)
	if result.Warnings > 0 {
		fmt.Printf("metadata_warnings: %d\n", result.Warnings)
	}
	if result.MissingFiles > 0 {
		fmt.Printf("missing_files: %d (reset to pending; rerun: snap-memories-downloader run --output %s)\n", result.MissingFiles, *output)
	}
	return nil
}
