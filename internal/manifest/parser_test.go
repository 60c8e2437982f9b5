package manifest

import (
	"strings"
	"testing"
	"time"

	"snap-memories-downloader/internal/model"
)

const sampleHTML = `<html><body><table>
<tr><th>Date</th><th>Media Type</th><th>Location</th><th>Download</th></tr>
<tr>
  <td>2025-11-30 00:31:09 UTC</td>
  <td>Image</td>
  <td>Latitude, Longitude: 44.273846, -105.43944</td>
  <td><a onclick="downloadMemories('https://example.com/dl/img1?sig=a', event)">Download</a></td>
</tr>
<tr>
  <td>2025-12-01 10:00:00 UTC</td>
  <td>Video</td>
  <td></td>
  <td><a onclick="downloadMemories('https://example.com/dl/vid1a?sig=b', event)">Download</a></td>
</tr>
<tr>
  <td>2025-12-01 10:00:00 UTC</td>
  <td>Video</td>
  <td></td>
  <td><a onclick="downloadMemories('https://example.com/dl/vid1b?sig=c', event)">Download</a></td>
</tr>
<tr>
  <td>2025-12-02 08:15:30 UTC</td>
  <td>Video</td>
  <td>Latitude, Longitude: 51.5074, -0.1278</td>
  <td><a onclick="downloadMemories('https://example.com/dl/vid2?sig=d', event)">Download</a></td>
</tr>
</table></body></html>`

func TestParse_ExtractsRowsAndGroupsMultiSnap(t *testing.T) {
	entries, err := Parse(strings.NewReader(sampleHTML))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	img := entries[0]
	if img.Number != 1 || img.MediaKind != model.MediaImage {
		t.Fatalf("entry 1 wrong: %+v", img)
	}
	want := time.Date(2025, 11, 30, 0, 31, 9, 0, time.UTC)
	if !img.CapturedAt.Equal(want) {
		t.Fatalf("entry 1 capture time = %v", img.CapturedAt)
	}
	if img.GPS == nil || img.GPS.Latitude != 44.273846 || img.GPS.Longitude != -105.43944 {
		t.Fatalf("entry 1 GPS wrong: %+v", img.GPS)
	}
	if len(img.Parts) != 1 || img.Parts[0].Role != model.RoleSingle {
		t.Fatalf("entry 1 parts wrong: %+v", img.Parts)
	}
	if img.Parts[0].URL != "https://example.com/dl/img1?sig=a" {
		t.Fatalf("entry 1 URL wrong: %q", img.Parts[0].URL)
	}

	group := entries[1]
	if group.Number != 2 || !group.IsMultiPart() {
		t.Fatalf("entry 2 not grouped: %+v", group)
	}
	if len(group.Parts) != 2 ||
		group.Parts[0].URL != "https://example.com/dl/vid1a?sig=b" ||
		group.Parts[1].URL != "https://example.com/dl/vid1b?sig=c" {
		t.Fatalf("entry 2 part order wrong: %+v", group.Parts)
	}
	for _, p := range group.Parts {
		if p.Role != model.RoleMain {
			t.Fatalf("grouped part role = %q", p.Role)
		}
	}
	if group.GPS != nil {
		t.Fatalf("entry 2 should have no GPS")
	}

	vid := entries[2]
	if vid.Number != 3 || vid.IsMultiPart() {
		t.Fatalf("entry 3 wrongly grouped: %+v", vid)
	}
	if err := vid.Validate(); err != nil {
		t.Fatalf("entry 3 invalid: %v", err)
	}
}

func TestParse_SkipsRowsWithoutURLOrDate(t *testing.T) {
	const partial = `<table>
<tr><td>Image</td><td><a onclick="downloadMemories('https://example.com/x')">dl</a></td></tr>
<tr><td>2025-11-30 00:31:09 UTC</td><td>Image</td></tr>
</table>`
	entries, err := Parse(strings.NewReader(partial))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestParse_BadDateFails(t *testing.T) {
	const bad = `<table><tr>
<td>yesterday UTC</td><td>Image</td>
<td><a onclick="downloadMemories('https://example.com/x')">dl</a></td>
</tr></table>`
	if _, err := Parse(strings.NewReader(bad)); err == nil {
		t.Fatalf("expected date parse error")
	}
}
