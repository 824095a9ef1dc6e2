package objectstore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"cohortline/exportd/pkg/config"
	"cohortline/exportd/pkg/export"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Upload(ctx, "b", "k/1.zip", []byte("zip")); err != nil {
		t.Fatalf("Upload() failed: %v", err)
	}
	ok, err := s.Exists(ctx, "b", "k/1.zip")
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}
	data, err := s.Download(ctx, "b", "k/1.zip")
	if err != nil {
		t.Fatalf("Download() failed: %v", err)
	}
	if string(data) != "zip" {
		t.Errorf("Download() = %q", data)
	}

	if err := s.Delete(ctx, "b", "k/1.zip"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if ok, _ := s.Exists(ctx, "b", "k/1.zip"); ok {
		t.Error("object still exists after Delete()")
	}
	if _, err := s.Download(ctx, "b", "k/1.zip"); !errors.Is(err, export.ErrNotFound) {
		t.Errorf("Download() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_Sign(t *testing.T) {
	s := NewMemoryStore()
	s.now = func() time.Time { return time.Unix(1000, 0) }

	url, err := s.Sign(context.Background(), "media", "a/1.m4a", time.Minute)
	if err != nil {
		t.Fatalf("Sign() failed: %v", err)
	}
	if url != "memory://media/a/1.m4a?expires=1060" {
		t.Errorf("Sign() = %q", url)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, k := range []string{"z", "a", "m"} {
		_ = s.Upload(ctx, "b", k, nil)
	}
	_ = s.Upload(ctx, "other", "x", nil)

	if got := s.Keys("b"); !slices.Equal(got, []string{"a", "m", "z"}) {
		t.Errorf("Keys() = %v", got)
	}
}

func TestNew(t *testing.T) {
	if s, err := New(config.ObjectStoreConfig{Backend: "memory"}); err != nil || s == nil {
		t.Fatalf("New(memory) = %v, %v", s, err)
	}
	_, err := New(config.ObjectStoreConfig{Backend: "ftp"})
	if err == nil || !strings.Contains(err.Error(), "ftp") {
		t.Errorf("New(ftp) error = %v", err)
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("x/export.json"); got != "application/json" {
		t.Errorf("contentType(json) = %q", got)
	}
	if got := contentType("noext"); got != "application/octet-stream" {
		t.Errorf("contentType(noext) = %q", got)
	}
}
