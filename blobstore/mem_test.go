package blobstore

import (
	"context"
	"testing"

	"github.com/dshollow/hollow/blob"
)

func TestMemStorePublishRetrieve(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	payload := []byte("HOLW-fake-snapshot")
	if err := s.Publish(ctx, 7, blob.Snapshot, payload); err != nil {
		t.Fatal(err)
	}
	got, err := s.Retrieve(ctx, 7, blob.Snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
	if _, err := s.Retrieve(ctx, 7, blob.Delta); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unpublished kind, got %v", err)
	}
}

func TestMemStoreAnnounce(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	if _, err := s.LatestAnnounced(); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound before any announcement, got %v", err)
	}
	if err := s.Announce(ctx, 42); err != nil {
		t.Fatal(err)
	}
	v, err := s.LatestAnnounced()
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("got %d, want 42", v)
	}
}
