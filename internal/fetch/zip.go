package fetch

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"

	"snap-memories-downloader/internal/model"
)

// BundleFile is one member of a downloaded main+overlay zip bundle.
type BundleFile struct {
	Name string
	Role string
	Data []byte
}

// IsZipBundle sniffs the zip magic. The export serves plain media
// bytes for simple memories and a zip for main+overlay pairs.
func IsZipBundle(data []byte) bool {
	return len(data) >= 2 && data[0] == 'P' && data[1] == 'K'
}

// SplitBundle extracts a downloaded zip into its main and overlay
// members. A member whose name contains "-overlay" is the overlay;
// everything else is main media.
func SplitBundle(data []byte) ([]BundleFile, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip bundle: %w", err)
	}

	files := make([]BundleFile, 0, len(zr.File))
	for _, member := range zr.File {
		rc, err := member.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip member %s: %w", member.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read zip member %s: %w", member.Name, err)
		}

		role := model.RoleMain
		if strings.Contains(strings.ToLower(member.Name), "-overlay") {
			role = model.RoleOverlay
		}
		files = append(files, BundleFile{Name: member.Name, Role: role, Data: content})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("zip bundle has no members")
	}
	return files, nil
}
