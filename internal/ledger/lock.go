package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockDirName   = ".download.lock"
	lockOwnerFile = "owner.json"
)

// Lock guards an output directory so two invocations never interleave
// ledger writes. It is a directory lock: mkdir is atomic on every
// platform we care about.
type Lock struct {
	lockDir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

func AcquireLock(outputDir string) (Lock, error) {
	target := strings.TrimSpace(outputDir)
	if target == "" {
		return Lock{}, fmt.Errorf("output directory is required")
	}

	lockDir := filepath.Join(target, lockDirName)
	if err := os.Mkdir(lockDir, 0o755); err != nil {
		if os.IsExist(err) {
			ownerPath := filepath.Join(lockDir, lockOwnerFile)
			var owner lockOwner
			if readErr := ReadJSON(ownerPath, &owner); readErr == nil && owner.PID > 0 && owner.CreatedAt != "" {
				return Lock{}, fmt.Errorf(
					"output directory is locked: %s (pid=%d created_at=%s host=%s)",
					target, owner.PID, owner.CreatedAt, owner.Hostname,
				)
			}
			return Lock{}, fmt.Errorf("output directory is locked: %s", target)
		}
		return Lock{}, fmt.Errorf("acquire lock for %s: %w", target, err)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	ownerPath := filepath.Join(lockDir, lockOwnerFile)
	if err := WriteJSON(ownerPath, owner); err != nil {
		_ = os.Remove(lockDir)
		return Lock{}, fmt.Errorf("write lock owner for %s: %w", target, err)
	}

	return Lock{lockDir: lockDir}, nil
}

func (l Lock) Release() error {
	if strings.TrimSpace(l.lockDir) == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.lockDir, lockOwnerFile))
	if err := os.Remove(l.lockDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.lockDir, err)
	}
	return nil
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
