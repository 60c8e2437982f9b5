package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatusPending},
		{"", StatusFailed},
		{StatusPending, StatusInProgress},
		{StatusInProgress, StatusSuccess},
		{StatusInProgress, StatusFailed},
		{StatusInProgress, StatusPending},
		{StatusFailed, StatusPending},
		{StatusSuccess, StatusPending},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatusPending, StatusSuccess},
		{StatusSuccess, StatusInProgress},
		{StatusSuccess, StatusFailed},
		{StatusFailed, StatusSuccess},
		{"not_a_state", StatusPending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionRecord_BlocksIllegalTransition(t *testing.T) {
	rec := Record{
		Entry:  Entry{Number: 1},
		Status: StatusPending,
	}

	if err := TransitionRecord(&rec, StatusSuccess, ""); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if rec.Status != StatusPending {
		t.Fatalf("record status changed on rejected transition: %q", rec.Status)
	}
}
