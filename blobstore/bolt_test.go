package blobstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/dshollow/hollow/blob"
)

func TestBoltStorePublishRetrieve(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBoltStore(filepath.Join(dir, "hollow.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	payload := []byte("HOLW-fake-delta")
	if err := s.Publish(ctx, 3, blob.Delta, payload); err != nil {
		t.Fatal(err)
	}
	got, err := s.Retrieve(ctx, 3, blob.Delta)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestBoltStoreAnnounceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBoltStore(filepath.Join(dir, "hollow.db"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Announce(context.Background(), 99); err != nil {
		t.Fatal(err)
	}
	v, err := s.LatestAnnounced()
	if err != nil {
		t.Fatal(err)
	}
	if v != 99 {
		t.Fatalf("got %d, want 99", v)
	}
}

func TestBoltStoreSnapshotCache(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBoltStore(filepath.Join(dir, "hollow.db"), filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctx := context.Background()
	payload := []byte("HOLW-fake-snapshot-payload")
	if err := s.Publish(ctx, 1, blob.Snapshot, payload); err != nil {
		t.Fatal(err)
	}
	got, err := s.Retrieve(ctx, 1, blob.Snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q via mmap cache, want %q", got, payload)
	}
}
