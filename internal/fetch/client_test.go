package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"snap-memories-downloader/internal/model"
)

func testClient() *Client {
	return NewClient(Options{
		MaxRetries:   2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 2 * time.Millisecond,
		Timeout:      5 * time.Second,
	})
}

func TestFetch_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("media-bytes"))
	}))
	defer srv.Close()

	body, err := testClient().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "media-bytes" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestFetch_RetriesTransientServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := testClient().Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("unexpected body %q", body)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestFetch_ExhaustedRetriesAreTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient().Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected ErrTransient, got %v", err)
	}
}

func TestFetch_ExpiredLinkIsPermanentAndNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "link expired", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := testClient().Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrLinkExpired) {
		t.Fatalf("expected ErrLinkExpired, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expired link was retried: %d attempts", calls.Load())
	}
}

func buildZip(t *testing.T, members map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range members {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSplitBundle_SeparatesMainAndOverlay(t *testing.T) {
	data := buildZip(t, map[string][]byte{
		"media~abc123.jpg":         []byte("main-bytes"),
		"media~abc123-overlay.png": []byte("overlay-bytes"),
	})

	if !IsZipBundle(data) {
		t.Fatalf("zip bundle not detected")
	}

	files, err := SplitBundle(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 members, got %d", len(files))
	}

	roles := map[string]string{}
	for _, f := range files {
		roles[f.Role] = string(f.Data)
	}
	if roles[model.RoleMain] != "main-bytes" {
		t.Fatalf("main member wrong: %q", roles[model.RoleMain])
	}
	if roles[model.RoleOverlay] != "overlay-bytes" {
		t.Fatalf("overlay member wrong: %q", roles[model.RoleOverlay])
	}
}

func TestIsZipBundle_PlainMediaIsNotZip(t *testing.T) {
	if IsZipBundle([]byte{0xFF, 0xD8, 0xFF, 0xE0}) {
		t.Fatalf("jpeg magic misdetected as zip")
	}
}
