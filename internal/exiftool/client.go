package exiftool

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"
	"time"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// Metadata is everything the embedder writes into a finished file.
// LocalTime equals CaptureUTC when no offset could be resolved.
type Metadata struct {
	CaptureUTC time.Time
	LocalTime  time.Time
	// UTCOffset is the "+07:00"-style offset at the capture instant,
	// empty when the file stays in UTC.
	UTCOffset string
	Latitude  float64
	Longitude float64
	HasGPS    bool
}

// Embedder writes geotags and capture timestamps into a finished
// media file. The real implementation shells out to exiftool.
type Embedder interface {
	EmbedImage(ctx context.Context, path string, meta Metadata) error
	EmbedVideo(ctx context.Context, path string, meta Metadata) error
}

// WriteError reports a non-zero exiftool exit. Non-fatal to the
// entry: the media file itself is already on disk and usable.
type WriteError struct {
	ExitCode int
	Stderr   string
}

func (e *WriteError) Error() string {
	msg := fmt.Sprintf("metadata write failed: exiftool exit code %d", e.ExitCode)
	if diag := strings.TrimSpace(e.Stderr); diag != "" {
		msg += ": " + diag
	}
	return msg
}

// Client invokes the exiftool binary.
type Client struct {
	Binary string
}

func New() *Client {
	return &Client{Binary: "exiftool"}
}

// EmbedImage writes EXIF fields. Both the local wall-clock time and,
// when resolved, an explicit offset field are written so viewers that
// only understand one convention still show the correct time.
func (c *Client) EmbedImage(ctx context.Context, path string, meta Metadata) error {
	args := []string{
		"-overwrite_original",
		"-DateTimeOriginal=" + meta.LocalTime.Format(exifTimeLayout),
		"-CreateDate=" + meta.LocalTime.Format(exifTimeLayout),
		"-ModifyDate=" + meta.LocalTime.Format(exifTimeLayout),
		"-GPSDateStamp=" + meta.CaptureUTC.Format("2006:01:02"),
		"-GPSTimeStamp=" + meta.CaptureUTC.Format("15:04:05"),
	}
	if meta.UTCOffset != "" {
		args = append(args,
			"-OffsetTimeOriginal="+meta.UTCOffset,
			"-OffsetTimeDigitized="+meta.UTCOffset,
			"-OffsetTime="+meta.UTCOffset,
		)
	}
	if meta.HasGPS {
		latRef, lonRef := hemisphereRefs(meta.Latitude, meta.Longitude)
		args = append(args,
			fmt.Sprintf("-GPSLatitude=%f", math.Abs(meta.Latitude)),
			"-GPSLatitudeRef="+latRef,
			fmt.Sprintf("-GPSLongitude=%f", math.Abs(meta.Longitude)),
			"-GPSLongitudeRef="+lonRef,
		)
	}
	args = append(args, path)
	return c.run(ctx, args)
}

// EmbedVideo writes QuickTime fields with the duplicate-field
// strategy the desktop photo ecosystem needs: the generic CreateDate
// stays in UTC while the vendor CreationDate carries the offset, and
// GPS goes out in both ISO 6709 and human-readable forms. Omitting
// the offset-bearing CreationDate makes the dominant consumer app
// silently display capture time in the wrong zone.
func (c *Client) EmbedVideo(ctx context.Context, path string, meta Metadata) error {
	utc := meta.CaptureUTC.Format(exifTimeLayout)
	args := []string{
		"-overwrite_original",
		"-api", "QuickTimeUTC=1",
		"-QuickTime:CreateDate=" + utc,
		"-QuickTime:ModifyDate=" + utc,
		"-Keys:Make=Snapchat",
	}
	if meta.UTCOffset != "" {
		local := meta.LocalTime.Format(exifTimeLayout) + meta.UTCOffset
		args = append(args,
			"-QuickTime:CreationDate="+local,
			"-Keys:CreationDate="+local,
		)
	} else {
		args = append(args,
			"-QuickTime:CreationDate="+utc,
			"-Keys:CreationDate="+utc,
		)
	}
	if meta.HasGPS {
		latRef, lonRef := hemisphereRefs(meta.Latitude, meta.Longitude)
		args = append(args,
			"-UserData:GPSCoordinates="+iso6709(meta.Latitude, meta.Longitude),
			fmt.Sprintf("-Keys:GPSCoordinates=%f %f", meta.Latitude, meta.Longitude),
			fmt.Sprintf("-XMP:GPSLatitude=%f", math.Abs(meta.Latitude)),
			"-XMP:GPSLatitudeRef="+latRef,
			fmt.Sprintf("-XMP:GPSLongitude=%f", math.Abs(meta.Longitude)),
			"-XMP:GPSLongitudeRef="+lonRef,
		)
	}
	args = append(args, path)
	return c.run(ctx, args)
}

func (c *Client) run(_ context.Context, args []string) error {
	binary := c.Binary
	if binary == "" {
		binary = "exiftool"
	}
	cmd := exec.Command(binary, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &WriteError{ExitCode: exitCode, Stderr: stderr.String()}
	}
	return nil
}

func hemisphereRefs(lat, lon float64) (string, string) {
	latRef := "N"
	if lat < 0 {
		latRef = "S"
	}
	lonRef := "E"
	if lon < 0 {
		lonRef = "W"
	}
	return latRef, lonRef
}

// iso6709 renders the compact signed form used by QuickTime UserData,
// e.g. "+44.2738-105.4394/".
func iso6709(lat, lon float64) string {
	return fmt.Sprintf("%+.4f%+.4f/", lat, lon)
}
