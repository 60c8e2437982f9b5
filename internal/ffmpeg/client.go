package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Transcoder is the external media-merge collaborator. Implementations
// take finished input files and produce one merged output file; they
// never touch the ledger. The real implementation shells out to
// ffmpeg; tests substitute a fake.
type Transcoder interface {
	// JoinParts concatenates video parts in the given order and,
	// when overlay is non-empty, burns the overlay image in.
	JoinParts(ctx context.Context, inputs []string, overlay string, output string) error
	// OverlayImage composites an overlay onto a main image.
	OverlayImage(ctx context.Context, main, overlay, output string) error
}

// MergeError carries the diagnostics a merge failure needs to be
// debuggable: exit code, per-input byte sizes, and the tool's stderr.
type MergeError struct {
	ExitCode   int
	InputSizes []int64
	Stderr     string
}

func (e *MergeError) Error() string {
	sizes := make([]string, 0, len(e.InputSizes))
	for _, s := range e.InputSizes {
		sizes = append(sizes, fmt.Sprintf("%d", s))
	}
	msg := fmt.Sprintf("merge failed: ffmpeg exit code %d, input sizes [%s] bytes", e.ExitCode, strings.Join(sizes, ", "))
	if diag := strings.TrimSpace(e.Stderr); diag != "" {
		msg += ": " + tail(diag, 800)
	}
	return msg
}

type DependencyReport struct {
	FFmpegFound   bool   `json:"ffmpeg_found"`
	FFmpegPath    string `json:"ffmpeg_path,omitempty"`
	ExiftoolFound bool   `json:"exiftool_found"`
	ExiftoolPath  string `json:"exiftool_path,omitempty"`
}

func DependencyStatus() DependencyReport {
	report := DependencyReport{}
	if path, err := exec.LookPath("ffmpeg"); err == nil {
		report.FFmpegFound = true
		report.FFmpegPath = path
	}
	if path, err := exec.LookPath("exiftool"); err == nil {
		report.ExiftoolFound = true
		report.ExiftoolPath = path
	}
	return report
}

func CheckDependencies() error {
	report := DependencyStatus()
	if !report.FFmpegFound {
		return fmt.Errorf("missing dependency: ffmpeg is required for video joins and overlays and was not found on PATH")
	}
	if !report.ExiftoolFound {
		return fmt.Errorf("missing dependency: exiftool is required for metadata embedding and was not found on PATH")
	}
	return nil
}

// Client invokes the ffmpeg binary.
type Client struct {
	Binary string
}

func New() *Client {
	return &Client{Binary: "ffmpeg"}
}

func (c *Client) JoinParts(ctx context.Context, inputs []string, overlay string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no input parts to join")
	}

	listPath, err := writeConcatList(inputs)
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(listPath)
	}()

	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", listPath}
	if overlay != "" {
		args = append(args,
			"-i", overlay,
			"-filter_complex", "[0:v][1:v]overlay=(W-w)/2:(H-h)/2",
			"-c:a", "copy",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, output)

	allInputs := inputs
	if overlay != "" {
		allInputs = append(append([]string{}, inputs...), overlay)
	}
	return c.run(ctx, args, allInputs)
}

func (c *Client) OverlayImage(ctx context.Context, main, overlay, output string) error {
	args := []string{
		"-y",
		"-i", main,
		"-i", overlay,
		"-filter_complex", "[0:v][1:v]overlay=(W-w)/2:(H-h)/2",
		"-frames:v", "1",
		"-update", "1",
		output,
	}
	return c.run(ctx, args, []string{main, overlay})
}

// run executes ffmpeg to completion. The process is deliberately not
// bound to ctx cancellation: killing a merge mid-write risks a corrupt
// partial output file, so an in-flight merge runs to its own exit.
func (c *Client) run(_ context.Context, args []string, inputs []string) error {
	binary := c.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.Command(binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &MergeError{
			ExitCode:   exitCode,
			InputSizes: fileSizes(inputs),
			Stderr:     stderr.String(),
		}
	}
	return nil
}

func writeConcatList(inputs []string) (string, error) {
	f, err := os.CreateTemp("", "smd-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	for _, in := range inputs {
		abs, absErr := filepath.Abs(in)
		if absErr != nil {
			abs = in
		}
		// single quotes in the path are escaped per ffmpeg's concat syntax
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
			return "", fmt.Errorf("write concat list: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close concat list: %w", err)
	}
	return f.Name(), nil
}

func fileSizes(paths []string) []int64 {
	sizes := make([]int64, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			sizes = append(sizes, -1)
			continue
		}
		sizes = append(sizes, info.Size())
	}
	return sizes
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
