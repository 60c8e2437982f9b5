package model

import "fmt"

const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
)

var allowedTransitions = map[string]map[string]bool{
	"": {
		StatusPending: true,
		StatusFailed:  true, // malformed manifest entry, recorded but never dispatched
	},
	StatusPending: {
		StatusPending:    true,
		StatusInProgress: true,
		StatusFailed:     true,
	},
	StatusInProgress: {
		StatusInProgress: true,
		StatusSuccess:    true,
		StatusFailed:     true,
		StatusPending:    true, // interrupted previous run, redo
	},
	StatusSuccess: {
		StatusSuccess: true,
		StatusPending: true, // output file missing on disk, needs re-download
	},
	StatusFailed: {
		StatusFailed:  true,
		StatusPending: true, // explicit retry-failed run
	},
}

func IsKnownStatus(status string) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

func TransitionRecord(rec *Record, toStatus string, reason string) error {
	from := rec.Status
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid record status transition: %q -> %q (number=%d)", from, toStatus, rec.Number)
	}
	rec.Status = toStatus
	rec.Reason = reason
	return nil
}
