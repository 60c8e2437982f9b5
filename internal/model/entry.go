package model

import (
	"errors"
	"fmt"
)

// ErrMalformedEntry marks a structural manifest defect. Entries that
// fail validation are recorded as permanently failed: retrying cannot
// fix the manifest.
var ErrMalformedEntry = errors.New("malformed entry")

// Validate checks the structural invariants of an entry. All errors
// wrap ErrMalformedEntry.
func (e Entry) Validate() error {
	if e.Number <= 0 {
		return fmt.Errorf("%w: sequence number must be positive, got %d", ErrMalformedEntry, e.Number)
	}
	if e.MediaKind != MediaImage && e.MediaKind != MediaVideo {
		return fmt.Errorf("%w: unknown media kind %q (number=%d)", ErrMalformedEntry, e.MediaKind, e.Number)
	}
	if len(e.Parts) == 0 {
		return fmt.Errorf("%w: entry %d has no download parts", ErrMalformedEntry, e.Number)
	}

	mains := 0
	singles := 0
	overlays := 0
	for i, p := range e.Parts {
		if p.URL == "" {
			return fmt.Errorf("%w: entry %d part %d has an empty URL", ErrMalformedEntry, e.Number, i+1)
		}
		switch p.Role {
		case RoleMain:
			mains++
		case RoleSingle:
			singles++
		case RoleOverlay:
			overlays++
		default:
			return fmt.Errorf("%w: entry %d part %d has unknown role %q", ErrMalformedEntry, e.Number, i+1, p.Role)
		}
	}

	if singles > 1 {
		return fmt.Errorf("%w: entry %d has %d single parts", ErrMalformedEntry, e.Number, singles)
	}
	if singles == 1 && mains > 0 {
		return fmt.Errorf("%w: entry %d mixes single and main parts", ErrMalformedEntry, e.Number)
	}
	if overlays > 1 {
		return fmt.Errorf("%w: entry %d has %d overlay parts", ErrMalformedEntry, e.Number, overlays)
	}
	if overlays == 1 && mains+singles == 0 {
		return fmt.Errorf("%w: entry %d has an overlay without a paired main part", ErrMalformedEntry, e.Number)
	}
	if mains > 1 && e.MediaKind != MediaVideo {
		return fmt.Errorf("%w: entry %d is a multi-part group but media kind is %s", ErrMalformedEntry, e.Number, e.MediaKind)
	}
	return nil
}

// IsMultiPart reports whether the entry is a multi-snap group that
// must be joined into one output file.
func (e Entry) IsMultiPart() bool {
	mains := 0
	for _, p := range e.Parts {
		if p.Role == RoleMain {
			mains++
		}
	}
	return mains > 1
}

// Extension is the output file extension for the entry's media kind.
func (e Entry) Extension() string {
	if e.MediaKind == MediaVideo {
		return ".mp4"
	}
	return ".jpg"
}

// BaseName is the zero-padded sequence prefix used for output files,
// e.g. "01" or "142".
func (e Entry) BaseName() string {
	return fmt.Sprintf("%02d", e.Number)
}
