package download

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"snap-memories-downloader/internal/exiftool"
	"snap-memories-downloader/internal/geo"
	"snap-memories-downloader/internal/model"
)

// embedStage applies geotags, timestamps, and the on-disk
// modification time to an entry's finished files. Its failures never
// fail the entry: the media is already on disk and usable, so
// problems surface as a metadata warning annotation on the record.
type embedStage struct {
	outputDir string
	resolver  geo.Resolver
	embedder  exiftool.Embedder
	// localTZ uses the machine's zone for entries without GPS
	// instead of leaving them in UTC.
	localTZ bool
}

// apply embeds metadata into every file of the entry and sets each
// file's modification time, so sorting by mtime reproduces capture
// order. The returned string is the warning annotation, empty when
// everything succeeded.
func (s *embedStage) apply(ctx context.Context, e model.Entry, files []model.FileInfo) string {
	meta, warnings := s.resolveMetadata(e)

	for _, f := range files {
		abs := filepath.Join(s.outputDir, f.Path)

		var err error
		if e.MediaKind == model.MediaVideo {
			err = s.embedder.EmbedVideo(ctx, abs, meta)
		} else {
			err = s.embedder.EmbedImage(ctx, abs, meta)
		}
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", f.Path, err))
		}

		if err := os.Chtimes(abs, meta.LocalTime, meta.LocalTime); err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: set mtime: %v", f.Path, err))
		}
	}
	return strings.Join(warnings, "; ")
}

// refreshSizes re-stats files after the embedder rewrote them so the
// ledger's recorded byte sizes match what resume checks against.
func refreshSizes(outputDir string, files []model.FileInfo) []model.FileInfo {
	for i := range files {
		info, err := os.Stat(filepath.Join(outputDir, files[i].Path))
		if err != nil {
			continue
		}
		files[i].Size = info.Size()
	}
	return files
}

// resolveMetadata computes the local capture time. GPS entries go
// through the timezone resolver; on resolution failure the timestamps
// stay UTC but the geotag is still written.
func (s *embedStage) resolveMetadata(e model.Entry) (exiftool.Metadata, []string) {
	meta := exiftool.Metadata{
		CaptureUTC: e.CapturedAt,
		LocalTime:  e.CapturedAt,
	}
	var warnings []string

	switch {
	case e.GPS != nil:
		meta.HasGPS = true
		meta.Latitude = e.GPS.Latitude
		meta.Longitude = e.GPS.Longitude

		zone, err := s.resolver.Resolve(e.GPS.Latitude, e.GPS.Longitude)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("timestamps stay UTC: %v", err))
			break
		}
		local, offset, err := geo.Localize(zone, e.CapturedAt)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("timestamps stay UTC: %v", err))
			break
		}
		meta.LocalTime = local
		meta.UTCOffset = offset
	case s.localTZ:
		local := e.CapturedAt.In(time.Local)
		meta.LocalTime = local
		meta.UTCOffset = local.Format("-07:00")
	}
	return meta, warnings
}
