// Package manifest parses the vendor export's memories_history.html
// into normalized entries. Each table row carries a capture date in
// UTC, a media kind, an optional coordinate pair, and a time-limited
// download URL inside an onclick handler.
package manifest

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"snap-memories-downloader/internal/model"

	"golang.org/x/net/html"
)

const dateLayout = "2006-01-02 15:04:05"

var onclickURLPattern = regexp.MustCompile(`downloadMemories\('([^']+)'`)

type row struct {
	date string
	kind string
	lat  string
	lon  string
	url  string
}

func ParseFile(path string) ([]model.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return entries, nil
}

// Parse extracts all memory rows and groups consecutive video rows
// with identical capture timestamps into one multi-part entry, in
// manifest (capture) order.
func Parse(r io.Reader) ([]model.Entry, error) {
	rows, err := scanRows(r)
	if err != nil {
		return nil, err
	}
	return groupRows(rows)
}

func scanRows(r io.Reader) ([]row, error) {
	tokenizer := html.NewTokenizer(r)
	var rows []row
	var current row
	inRow := false
	inCell := false

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return rows, nil
			}
			return nil, fmt.Errorf("tokenize manifest: %w", tokenizer.Err())
		case html.StartTagToken:
			tok := tokenizer.Token()
			switch tok.Data {
			case "tr":
				inRow = true
				current = row{}
			case "td":
				inCell = inRow
			case "a":
				if !inRow {
					continue
				}
				for _, attr := range tok.Attr {
					if attr.Key != "onclick" || !strings.Contains(attr.Val, "downloadMemories") {
						continue
					}
					if m := onclickURLPattern.FindStringSubmatch(attr.Val); m != nil {
						current.url = m[1]
					}
				}
			}
		case html.TextToken:
			if !inCell {
				continue
			}
			classifyCellText(&current, strings.TrimSpace(string(tokenizer.Text())))
		case html.EndTagToken:
			tok := tokenizer.Token()
			switch tok.Data {
			case "td":
				inCell = false
			case "tr":
				if inRow && current.url != "" && current.date != "" {
					rows = append(rows, current)
				}
				inRow = false
				current = row{}
			}
		}
	}
}

func classifyCellText(current *row, text string) {
	switch {
	case text == "":
	case strings.Contains(text, "UTC"):
		current.date = text
	case text == model.MediaImage || text == model.MediaVideo:
		current.kind = text
	case strings.Contains(text, "Latitude, Longitude:"):
		coords := strings.TrimSpace(strings.TrimPrefix(text, "Latitude, Longitude:"))
		parts := strings.Split(coords, ",")
		if len(parts) == 2 {
			current.lat = strings.TrimSpace(parts[0])
			current.lon = strings.TrimSpace(parts[1])
		}
	}
}

func groupRows(rows []row) ([]model.Entry, error) {
	entries := make([]model.Entry, 0, len(rows))
	for _, r := range rows {
		capturedAt, err := parseDate(r.date)
		if err != nil {
			return nil, err
		}

		// a video row whose timestamp matches the previous video
		// entry is another part of the same multi-snap recording
		if r.kind == model.MediaVideo && len(entries) > 0 {
			last := &entries[len(entries)-1]
			if last.MediaKind == model.MediaVideo && last.CapturedAt.Equal(capturedAt) {
				for i := range last.Parts {
					last.Parts[i].Role = model.RoleMain
				}
				last.Parts = append(last.Parts, model.Part{URL: r.url, Role: model.RoleMain})
				continue
			}
		}

		entry := model.Entry{
			Number:     len(entries) + 1,
			CapturedAt: capturedAt,
			MediaKind:  r.kind,
			Parts:      []model.Part{{URL: r.url, Role: model.RoleSingle}},
		}
		if gps := parseGPS(r.lat, r.lon); gps != nil {
			entry.GPS = gps
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseDate(raw string) (time.Time, error) {
	clean := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "UTC"))
	t, err := time.ParseInLocation(dateLayout, clean, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse capture date %q: %w", raw, err)
	}
	return t, nil
}

func parseGPS(lat, lon string) *model.GPS {
	if lat == "" || lon == "" {
		return nil
	}
	latF, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil
	}
	lonF, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil
	}
	return &model.GPS{Latitude: latF, Longitude: lonF}
}
