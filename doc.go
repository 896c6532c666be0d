// Package hollow implements an in-memory, read-optimized, versioned
// dataset engine: a producer assembles application records into a compact
// columnar representation, publishes blobs (snapshots and forward/reverse
// deltas) describing each version, and announces new versions along a
// delta chain. Consumers (not provided here) load the same blobs into a
// read state and serve ordinal-addressed reads.
//
// The engine is split across packages by concern, following the layering
// of the producer cycle itself:
//
//	schema     type descriptions (object/list/set/map) and their wire form
//	wstate     the mutable write-side staging arena
//	rstate     the immutable, columnar read-side state
//	delta      snapshot/forward-delta/reverse-delta computation
//	blob       the on-disk blob framing shared by producer and consumer
//	producer   the cycle orchestrator and its listener/validator fabric
//	query      schema-aware ordinal-bitset field match queries
//	blobstore  a reference Publisher/Announcer/BlobRetriever implementation
//
// This root package only re-exports the handful of types every caller
// needs regardless of which layer they're working in.
package hollow

import (
	"github.com/dshollow/hollow/schema"
)

// Ordinal identifies a record within a single type's state. Ordinals are
// dense, non-negative, and stable within a state but may be recycled
// across cycles once a record becomes a ghost and is later reused.
type Ordinal = int32

// NullOrdinal is the sentinel used by reference/element fields to mean
// "no record", matching the wire format's -1 convention.
const NullOrdinal Ordinal = -1

// Version is a monotonically nondecreasing identifier minted by the cycle
// orchestrator, at most one per cycle.
type Version = int64

// Schema re-exports the schema package's top-level type for convenience;
// see package schema for the full model.
type Schema = schema.Schema
