// Package blobstore provides reference Publisher/Announcer/BlobRetriever
// implementations (§6) a producer can be wired against directly, rather
// than requiring every caller to bring their own blob storage. BoltStore
// is grounded on edb/storage_bolt.go's boltStorage/boltStorageTx/
// boltBucket trio, retargeted from arbitrary row storage to two fixed
// buckets: opaque blob bytes keyed by (version, kind), and a small
// msgpack-encoded announcement document, grounded on edb/schemastate.go's
// tableState persistence pattern.
package blobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"

	"github.com/dshollow/hollow/blob"
)

var (
	blobsBucket = []byte("blobs")
	metaBucket  = []byte("meta")
	latestKey   = []byte("latest")
)

// ErrNotFound reports a requested (version, kind) blob that was never
// published, or an announcement document that doesn't exist yet.
var ErrNotFound = errors.New("blobstore: not found")

// announcement is the metadata document persisted on every Announce call.
type announcement struct {
	Version int64 `msgpack:"version"`
}

// BoltStore is a single-file, single-process blob store backed by
// go.etcd.io/bbolt. It implements producer.Publisher, producer.Announcer,
// and producer.BlobRetriever.
type BoltStore struct {
	db    *bbolt.DB
	cache *SnapshotCache
}

// OpenBoltStore opens (creating if needed) a bbolt database at path. If
// cacheDir is non-empty, published snapshot blobs are additionally mirrored
// to flat files under it and served back through an mmap-backed
// SnapshotCache instead of bbolt's own page cache.
func OpenBoltStore(path string, cacheDir string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(blobsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(metaBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s := &BoltStore{db: db}
	if cacheDir != "" {
		s.cache = NewSnapshotCache(cacheDir)
	}
	return s, nil
}

func (s *BoltStore) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return s.db.Close()
}

func blobKey(version int64, kind blob.Kind) []byte {
	key := make([]byte, 9)
	binary.BigEndian.PutUint64(key[:8], uint64(version))
	key[8] = byte(kind)
	return key
}

func (s *BoltStore) Publish(ctx context.Context, version int64, kind blob.Kind, payload []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(blobsBucket)
		return b.Put(blobKey(version, kind), payload)
	})
	if err != nil {
		return err
	}
	if s.cache != nil && kind == blob.Snapshot {
		return s.cache.Store(version, payload)
	}
	return nil
}

func (s *BoltStore) Retrieve(ctx context.Context, version int64, kind blob.Kind) ([]byte, error) {
	if s.cache != nil && kind == blob.Snapshot {
		if payload, ok := s.cache.Load(version); ok {
			return payload, nil
		}
	}
	var out []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(blobsBucket)
		v := b.Get(blobKey(version, kind))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Announce(ctx context.Context, version int64) error {
	buf, err := msgpack.Marshal(announcement{Version: version})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		return b.Put(latestKey, buf)
	})
}

// LatestAnnounced returns the most recently announced version, or
// ErrNotFound if no version has ever been announced.
func (s *BoltStore) LatestAnnounced() (int64, error) {
	var a announcement
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(metaBucket)
		v := b.Get(latestKey)
		if v == nil {
			return ErrNotFound
		}
		return msgpack.Unmarshal(v, &a)
	})
	if err != nil {
		return 0, err
	}
	return a.Version, nil
}
