package model

import "time"

// Part roles within an entry.
const (
	RoleSingle  = "single"
	RoleMain    = "main"
	RoleOverlay = "overlay"
)

// Media kinds as reported by the export manifest.
const (
	MediaImage = "Image"
	MediaVideo = "Video"
)

// Part is one downloadable piece of an entry. The manifest produces
// single and main parts; overlay parts surface when a downloaded
// bundle is split.
type Part struct {
	URL  string `json:"url"`
	Role string `json:"role"`
}

// GPS is a decimal-degree coordinate pair from the manifest.
type GPS struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Entry is one logical memory from the export manifest, possibly
// spanning multiple video parts captured as one recording.
type Entry struct {
	Number     int       `json:"number"`
	CapturedAt time.Time `json:"captured_at"`
	MediaKind  string    `json:"media_kind"`
	GPS        *GPS      `json:"gps,omitempty"`
	Parts      []Part    `json:"parts"`
}

// FileInfo describes one file written for an entry. Path is relative
// to the output directory.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
	Role string `json:"role"`
}

// Record is the persisted processing state for one entry. The entry
// fields are duplicated into the record so resume and retrofit runs
// never depend on re-parsing the manifest.
type Record struct {
	Entry
	Status          string     `json:"status"`
	Files           []FileInfo `json:"files,omitempty"`
	Error           string     `json:"error,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	MetadataWarning string     `json:"metadata_warning,omitempty"`
	Attempts        int        `json:"attempts,omitempty"`
	LastAttemptAt   string     `json:"last_attempt_at,omitempty"`
	CompletedAt     string     `json:"completed_at,omitempty"`
}
