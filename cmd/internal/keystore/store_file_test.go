package keystore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "keys.yaml")
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := s.Get(ctx, "S1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get before any put err=%v want=%v", err, ErrNotFound)
	}
	if err := s.Put(ctx, Entry{SessionID: "S1", FacilitatorKey: "K1", CreatedAt: base}); err != nil {
		t.Fatalf("put S1: %v", err)
	}
	if err := s.Put(ctx, Entry{SessionID: "S2", FacilitatorKey: "K2", CreatedAt: base.Add(time.Minute)}); err != nil {
		t.Fatalf("put S2: %v", err)
	}
	if err := s.Put(ctx, Entry{SessionID: "S1", FacilitatorKey: "K1b", CreatedAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	// A second process sees the same entries.
	other, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := other.Get(ctx, " S1 ")
	if err != nil || got.FacilitatorKey != "K1b" || !got.CreatedAt.Equal(base) {
		t.Fatalf("get S1=%+v err=%v", got, err)
	}
	list, err := other.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].SessionID != "S2" || list[1].SessionID != "S1" {
		t.Fatalf("list=%+v want newest first", list)
	}

	if err := s.Put(ctx, Entry{SessionID: "", FacilitatorKey: "k"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("put invalid err=%v want=%v", err, ErrInvalidInput)
	}
}

func TestFileStore_SealsKeysWithSecret(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys.yaml")
	ctx := context.Background()
	sealer, err := NewSealer("s3cret")
	if err != nil {
		t.Fatal(err)
	}

	s, err := NewFileStore(path, sealer)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(ctx, Entry{SessionID: "S1", FacilitatorKey: "plain-key"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "plain-key") || !strings.Contains(string(raw), "sealed_key") {
		t.Fatalf("file not sealed:\n%s", raw)
	}
	if got, err := s.Get(ctx, "S1"); err != nil || got.FacilitatorKey != "plain-key" {
		t.Fatalf("get=%+v err=%v", got, err)
	}

	unsealed, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := unsealed.Get(ctx, "S1"); err == nil {
		t.Fatalf("expected error reading sealed key without a secret")
	}
}
