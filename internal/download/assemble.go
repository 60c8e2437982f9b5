package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"snap-memories-downloader/internal/fetch"
	"snap-memories-downloader/internal/ffmpeg"
	"snap-memories-downloader/internal/model"

	"golang.org/x/sync/errgroup"
)

// Fetcher retrieves the raw bytes behind one download descriptor.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

const partFetchConcurrency = 4

// assembler turns fetched byte buffers into final on-disk files. It
// never inspects the ledger; the orchestrator owns state transitions.
type assembler struct {
	outputDir     string
	fetcher       Fetcher
	transcoder    ffmpeg.Transcoder
	mergeOverlays bool
}

// process fetches every part of one entry and writes its output
// file(s), returning what landed on disk. Paths are relative to the
// output directory.
func (a *assembler) process(ctx context.Context, e model.Entry) ([]model.FileInfo, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	buffers, err := a.fetchParts(ctx, e)
	if err != nil {
		return nil, err
	}

	mains, overlay, err := splitBuffers(e, buffers)
	if err != nil {
		return nil, err
	}

	if e.MediaKind == model.MediaVideo {
		return a.assembleVideo(ctx, e, mains, overlay)
	}
	return a.assembleImage(ctx, e, mains, overlay)
}

// fetchParts downloads all parts concurrently but keeps results in
// parts order; output assembly depends on capture order, never on
// download-completion order.
func (a *assembler) fetchParts(ctx context.Context, e model.Entry) ([][]byte, error) {
	buffers := make([][]byte, len(e.Parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(partFetchConcurrency)
	for i, part := range e.Parts {
		g.Go(func() error {
			data, err := a.fetcher.Fetch(gctx, part.URL)
			if err != nil {
				return fmt.Errorf("part %d/%d: %w", i+1, len(e.Parts), err)
			}
			buffers[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return buffers, nil
}

// splitBuffers expands zip bundles into main/overlay media and keeps
// mains in parts order. The export wraps main+overlay pairs in a zip;
// plain bodies are the media bytes themselves.
func splitBuffers(e model.Entry, buffers [][]byte) (mains [][]byte, overlay []byte, err error) {
	for i, buf := range buffers {
		role := e.Parts[i].Role
		if role == model.RoleOverlay {
			overlay = buf
			continue
		}
		if !fetch.IsZipBundle(buf) {
			mains = append(mains, buf)
			continue
		}
		members, splitErr := fetch.SplitBundle(buf)
		if splitErr != nil {
			return nil, nil, fmt.Errorf("part %d: %w", i+1, splitErr)
		}
		for _, m := range members {
			if m.Role == model.RoleOverlay {
				overlay = m.Data
			} else {
				mains = append(mains, m.Data)
			}
		}
	}
	if len(mains) == 0 {
		return nil, nil, fmt.Errorf("entry %d produced no main media", e.Number)
	}
	return mains, overlay, nil
}

func (a *assembler) assembleImage(ctx context.Context, e model.Entry, mains [][]byte, overlay []byte) ([]model.FileInfo, error) {
	ext := e.Extension()
	base := e.BaseName()

	if overlay == nil {
		return a.writeOutputs([]pendingFile{{base + ext, model.RoleSingle, mains[0]}})
	}

	if !a.mergeOverlays {
		// overlay pairs are kept side by side; the overlay is a
		// separate layer, not part of the photo
		return a.writeOutputs([]pendingFile{
			{base + "-main" + ext, model.RoleMain, mains[0]},
			{base + "-overlay" + ext, model.RoleOverlay, overlay},
		})
	}

	workDir, err := os.MkdirTemp(a.outputDir, ".smd-work-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	mainPath := filepath.Join(workDir, "main"+ext)
	overlayPath := filepath.Join(workDir, "overlay"+ext)
	if err := os.WriteFile(mainPath, mains[0], 0o644); err != nil {
		return nil, fmt.Errorf("write work file: %w", err)
	}
	if err := os.WriteFile(overlayPath, overlay, 0o644); err != nil {
		return nil, fmt.Errorf("write work file: %w", err)
	}

	outPath := filepath.Join(a.outputDir, base+ext)
	if err := a.transcoder.OverlayImage(ctx, mainPath, overlayPath, outPath); err != nil {
		return nil, err
	}
	return a.statOutputs([]writtenFile{{base + ext, model.RoleSingle}})
}

func (a *assembler) assembleVideo(ctx context.Context, e model.Entry, mains [][]byte, overlay []byte) ([]model.FileInfo, error) {
	ext := e.Extension()
	base := e.BaseName()

	if len(mains) == 1 && overlay == nil {
		return a.writeOutputs([]pendingFile{{base + ext, model.RoleSingle, mains[0]}})
	}

	workDir, err := os.MkdirTemp(a.outputDir, ".smd-work-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(workDir)
	}()

	inputs := make([]string, 0, len(mains))
	for i, data := range mains {
		// input order mirrors capture order
		partPath := filepath.Join(workDir, fmt.Sprintf("part-%02d%s", i+1, ext))
		if err := os.WriteFile(partPath, data, 0o644); err != nil {
			return nil, fmt.Errorf("write work file: %w", err)
		}
		inputs = append(inputs, partPath)
	}

	overlayPath := ""
	if overlay != nil {
		overlayPath = filepath.Join(workDir, "overlay.png")
		if err := os.WriteFile(overlayPath, overlay, 0o644); err != nil {
			return nil, fmt.Errorf("write work file: %w", err)
		}
	}

	outPath := filepath.Join(a.outputDir, base+ext)
	if err := a.transcoder.JoinParts(ctx, inputs, overlayPath, outPath); err != nil {
		return nil, err
	}
	return a.statOutputs([]writtenFile{{base + ext, model.RoleSingle}})
}

type pendingFile struct {
	name string
	role string
	data []byte
}

type writtenFile struct {
	name string
	role string
}

// writeOutputs writes buffers as-is. An existing file is overwritten:
// without a matching success record the ledger does not trust it.
func (a *assembler) writeOutputs(files []pendingFile) ([]model.FileInfo, error) {
	infos := make([]model.FileInfo, 0, len(files))
	for _, f := range files {
		abs := filepath.Join(a.outputDir, f.name)
		if err := os.WriteFile(abs, f.data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
		infos = append(infos, model.FileInfo{Path: f.name, Size: int64(len(f.data)), Role: f.role})
	}
	return infos, nil
}

func (a *assembler) statOutputs(files []writtenFile) ([]model.FileInfo, error) {
	infos := make([]model.FileInfo, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(filepath.Join(a.outputDir, f.name))
		if err != nil {
			return nil, fmt.Errorf("stat merged output %s: %w", f.name, err)
		}
		infos = append(infos, model.FileInfo{Path: f.name, Size: info.Size(), Role: f.role})
	}
	return infos, nil
}
