package cli

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"snap-memories-downloader/internal/ledger"
	"snap-memories-downloader/internal/model"
)

const manifestTemplate = `<html><body><table>
<tr><th>Date</th><th>Media Type</th><th>Location</th><th>Download</th></tr>
<tr>
  <td>2025-11-30 00:31:09 UTC</td>
  <td>Image</td>
  <td>Latitude, Longitude: 44.273846, -105.43944</td>
  <td><a onclick="downloadMemories('%s/img1', event)">Download</a></td>
</tr>
<tr>
  <td>2025-12-02 08:15:30 UTC</td>
  <td>Image</td>
  <td></td>
  <td><a onclick="downloadMemories('%s/img2', event)">Download</a></td>
</tr>
</table></body></html>`

func installFakeTools(t *testing.T) {
	t.Helper()
	fakeBin := filepath.Join(t.TempDir(), "bin")
	if err := os.MkdirAll(fakeBin, 0o755); err != nil {
		t.Fatal(err)
	}
	script := "#!/usr/bin/env bash\nexit 0\n"
	for _, name := range []string{"ffmpeg", "exiftool"} {
		if err := os.WriteFile(filepath.Join(fakeBin, name), []byte(script), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", fakeBin+":"+os.Getenv("PATH"))
}

func TestHarnessRunResumeStatus(t *testing.T) {
	installFakeTools(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img1":
			fmt.Fprint(w, "image-one-bytes")
		case "/img2":
			fmt.Fprint(w, "image-two-bytes")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tmp := t.TempDir()
	manifestPath := filepath.Join(tmp, "memories_history.html")
	html := fmt.Sprintf(manifestTemplate, srv.URL, srv.URL)
	if err := os.WriteFile(manifestPath, []byte(html), 0o644); err != nil {
		t.Fatal(err)
	}
	outputDir := filepath.Join(tmp, "memories")

	if err := Run([]string{
		"run",
		"--manifest", manifestPath,
		"--output", outputDir,
		"--quiet",
		"--progress=false",
	}); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	for _, name := range []string{"01.jpg", "02.jpg"} {
		if _, err := os.Stat(filepath.Join(outputDir, name)); err != nil {
			t.Fatalf("missing output %s: %v", name, err)
		}
	}

	led, err := ledger.Load(ledger.Path(outputDir))
	if err != nil {
		t.Fatal(err)
	}
	counts := led.Counts()
	if counts.Success != 2 || counts.Failed != 0 {
		t.Fatalf("ledger counts after run: %+v", counts)
	}

	// resume off the ledger alone: no --manifest needed, nothing redone
	if err := Run([]string{
		"run",
		"--output", outputDir,
		"--quiet",
		"--progress=false",
	}); err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	led, err = ledger.Load(ledger.Path(outputDir))
	if err != nil {
		t.Fatal(err)
	}
	if rec := led.Get(1); rec.Attempts != 1 {
		t.Fatalf("resume re-attempted a finished entry: attempts = %d", rec.Attempts)
	}

	if err := Run([]string{"status", "--output", outputDir}); err != nil {
		t.Fatalf("status failed: %v", err)
	}

	if err := Run([]string{
		"update-timezone",
		"--output", outputDir,
		"--quiet",
	}); err != nil {
		t.Fatalf("update-timezone failed: %v", err)
	}
	led, err = ledger.Load(ledger.Path(outputDir))
	if err != nil {
		t.Fatal(err)
	}
	if led.Get(1).Status != model.StatusSuccess || led.Get(2).Status != model.StatusSuccess {
		t.Fatalf("update-timezone flipped statuses: %+v", led.Counts())
	}
}

func TestHarnessRunRequiresManifestOrLedger(t *testing.T) {
	installFakeTools(t)
	outputDir := filepath.Join(t.TempDir(), "empty")
	err := Run([]string{"run", "--output", outputDir, "--quiet"})
	if err == nil {
		t.Fatal("expected an error without --manifest or an existing ledger")
	}
}

func TestHarnessDoctorReportsMissingTools(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	res := doctor(filepath.Join(t.TempDir(), "out"))
	if res.OK {
		t.Fatal("doctor passed with no tools on PATH")
	}
	var ffmpegOK, exiftoolOK bool
	for _, c := range res.Checks {
		switch c.Name {
		case "dependency:ffmpeg":
			ffmpegOK = c.OK
		case "dependency:exiftool":
			exiftoolOK = c.OK
		}
	}
	if ffmpegOK || exiftoolOK {
		t.Fatalf("dependency checks passed unexpectedly: %+v", res.Checks)
	}
}

func TestHarnessDoctorPassesWithTools(t *testing.T) {
	installFakeTools(t)
	outputDir := filepath.Join(t.TempDir(), "out")
	res := doctor(outputDir)
	if !res.OK {
		t.Fatalf("doctor failed: %+v", res.Checks)
	}
	if err := Run([]string{"doctor", "--output", outputDir}); err != nil {
		t.Fatalf("doctor command failed: %v", err)
	}
}

func TestHarnessUnknownCommand(t *testing.T) {
	if err := Run([]string{"frobnicate"}); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}
