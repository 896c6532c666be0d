// Package query implements schema-aware ordinal-bitset field matching
// (§4.H): given a field name and a textual value, find every populated
// record across every object type whose named field equals that value,
// chasing single-field reference types transparently. Grounded directly
// on HollowFieldMatchQuery.java's per-type scan-and-project algorithm.
package query

import (
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshollow/hollow/rstate"
	"github.com/dshollow/hollow/schema"
)

// FindMatchingRecords scans every OBJECT-schema type in rs for fieldName,
// matching scalar fields by parsed value and projecting through
// single-field reference fields (regardless of the reference field's own
// name), and returns one bitset per type with at least one match.
func FindMatchingRecords(rs *rstate.ReadState, fieldName, fieldValueText string) (map[string]*rstate.Bitset, error) {
	memo := map[string]*rstate.Bitset{}
	visiting := map[string]bool{}
	result := map[string]*rstate.Bitset{}
	for _, sc := range rs.Schemas().All() {
		obj, ok := sc.(*schema.ObjectSchema)
		if !ok {
			continue
		}
		bs, err := matchType(rs, obj, fieldName, fieldValueText, memo, visiting)
		if err != nil {
			return nil, err
		}
		if bs != nil && bs.Count() > 0 {
			result[obj.SchemaName()] = bs
		}
	}
	return result, nil
}

// matchType computes (and memoizes) the match bitset for one object type,
// combining direct named-field scalar matches with projections through
// single-field reference fields. visiting guards against an unbounded
// reference cycle producing infinite recursion.
func matchType(rs *rstate.ReadState, obj *schema.ObjectSchema, fieldName, fieldValueText string, memo map[string]*rstate.Bitset, visiting map[string]bool) (*rstate.Bitset, error) {
	if bs, ok := memo[obj.SchemaName()]; ok {
		return bs, nil
	}
	if visiting[obj.SchemaName()] {
		return rstate.NewBitset(), nil
	}
	visiting[obj.SchemaName()] = true
	defer delete(visiting, obj.SchemaName())

	populated, err := rs.PopulatedOrdinals(obj.SchemaName())
	if err != nil {
		return nil, err
	}
	result := rstate.NewBitset()

	for _, f := range obj.Fields {
		switch {
		case f.Name == fieldName && f.Type.IsScalar():
			matched, err := scanScalarField(rs, obj.SchemaName(), f, fieldValueText, populated)
			if err != nil {
				return nil, err
			}
			result = rstate.Or(result, matched)

		case f.Type == schema.Reference:
			refSchema, ok := rs.Schemas().Get(f.RefType)
			if !ok {
				continue
			}
			refObj, ok := refSchema.(*schema.ObjectSchema)
			if !ok || len(refObj.Fields) != 1 {
				continue
			}
			refMatches, err := matchType(rs, refObj, fieldName, fieldValueText, memo, visiting)
			if err != nil {
				return nil, err
			}
			if refMatches.Count() == 0 {
				continue
			}
			projected, err := projectThroughReference(rs, obj.SchemaName(), f.Name, populated, refMatches)
			if err != nil {
				return nil, err
			}
			result = rstate.Or(result, projected)
		}
	}

	memo[obj.SchemaName()] = result
	return result, nil
}

func scanScalarField(rs *rstate.ReadState, typeName string, f schema.Field, valueText string, populated *rstate.Bitset) (*rstate.Bitset, error) {
	want, ok := parseFieldValue(f.Type, valueText)
	if !ok {
		return rstate.NewBitset(), nil
	}
	out := rstate.NewBitset()
	for _, o := range populated.Ordinals() {
		v, err := rs.ReadField(typeName, o, f.Name)
		if err != nil {
			return nil, err
		}
		if fieldValueEquals(v, want) {
			out.Set(o)
		}
	}
	return out, nil
}

func projectThroughReference(rs *rstate.ReadState, typeName, fieldName string, populated, refMatches *rstate.Bitset) (*rstate.Bitset, error) {
	out := rstate.NewBitset()
	for _, o := range populated.Ordinals() {
		ref, err := rs.ReferenceOrdinal(typeName, o, fieldName)
		if err != nil {
			return nil, err
		}
		if ref >= 0 && refMatches.Test(ref) {
			out.Set(o)
		}
	}
	return out, nil
}

// parseFieldValue parses fieldValueText into ft's native representation.
// A parse failure reports ok=false, meaning "no match for this field"
// rather than an error — a malformed query text is not a data error.
func parseFieldValue(ft schema.FieldType, text string) (any, bool) {
	switch ft {
	case schema.Bool:
		v, err := strconv.ParseBool(text)
		return v, err == nil
	case schema.Int:
		v, err := strconv.ParseInt(text, 10, 32)
		return int32(v), err == nil
	case schema.Long:
		v, err := strconv.ParseInt(text, 10, 64)
		return v, err == nil
	case schema.Float:
		v, err := strconv.ParseFloat(text, 32)
		return float32(v), err == nil
	case schema.Double:
		v, err := strconv.ParseFloat(text, 64)
		return v, err == nil
	case schema.String:
		return text, true
	case schema.Bytes:
		return []byte(text), true
	default:
		return nil, false
	}
}

func fieldValueEquals(got, want any) bool {
	switch w := want.(type) {
	case []byte:
		g, ok := got.([]byte)
		if !ok || len(g) != len(w) {
			return false
		}
		for i := range g {
			if g[i] != w[i] {
				return false
			}
		}
		return true
	default:
		return got == want
	}
}

// chunkSize is the work-stealing partition size for ParallelFindMatchingRecords.
const chunkSize = 256

// ParallelFindMatchingRecords is the work-stealing variant of
// FindMatchingRecords: within each type's scalar scan, a fixed pool of
// workers steal contiguous 256-ordinal chunks via an atomic cursor instead
// of one worker scanning the whole populated range. Reference-chase
// projection, being cheap relative to the scan, runs sequentially as in
// FindMatchingRecords.
func ParallelFindMatchingRecords(rs *rstate.ReadState, fieldName, fieldValueText string, workers int) (map[string]*rstate.Bitset, error) {
	if workers < 1 {
		workers = 1
	}
	memo := map[string]*rstate.Bitset{}
	visiting := map[string]bool{}
	result := map[string]*rstate.Bitset{}
	for _, sc := range rs.Schemas().All() {
		obj, ok := sc.(*schema.ObjectSchema)
		if !ok {
			continue
		}
		bs, err := matchTypeParallel(rs, obj, fieldName, fieldValueText, memo, visiting, workers)
		if err != nil {
			return nil, err
		}
		if bs != nil && bs.Count() > 0 {
			result[obj.SchemaName()] = bs
		}
	}
	return result, nil
}

func matchTypeParallel(rs *rstate.ReadState, obj *schema.ObjectSchema, fieldName, fieldValueText string, memo map[string]*rstate.Bitset, visiting map[string]bool, workers int) (*rstate.Bitset, error) {
	if bs, ok := memo[obj.SchemaName()]; ok {
		return bs, nil
	}
	if visiting[obj.SchemaName()] {
		return rstate.NewBitset(), nil
	}
	visiting[obj.SchemaName()] = true
	defer delete(visiting, obj.SchemaName())

	populated, err := rs.PopulatedOrdinals(obj.SchemaName())
	if err != nil {
		return nil, err
	}
	result := rstate.NewBitset()

	for _, f := range obj.Fields {
		switch {
		case f.Name == fieldName && f.Type.IsScalar():
			matched, err := scanScalarFieldParallel(rs, obj.SchemaName(), f, fieldValueText, populated, workers)
			if err != nil {
				return nil, err
			}
			result = rstate.Or(result, matched)

		case f.Type == schema.Reference:
			refSchema, ok := rs.Schemas().Get(f.RefType)
			if !ok {
				continue
			}
			refObj, ok := refSchema.(*schema.ObjectSchema)
			if !ok || len(refObj.Fields) != 1 {
				continue
			}
			refMatches, err := matchTypeParallel(rs, refObj, fieldName, fieldValueText, memo, visiting, workers)
			if err != nil {
				return nil, err
			}
			if refMatches.Count() == 0 {
				continue
			}
			projected, err := projectThroughReference(rs, obj.SchemaName(), f.Name, populated, refMatches)
			if err != nil {
				return nil, err
			}
			result = rstate.Or(result, projected)
		}
	}

	memo[obj.SchemaName()] = result
	return result, nil
}

// scanScalarFieldParallel partitions ordinals into chunks of chunkSize and
// has workers claim successive chunks via an atomic cursor until the
// ordinal list is exhausted, merging each worker's local bitset at the end
// (no shared mutable state during the scan itself).
func scanScalarFieldParallel(rs *rstate.ReadState, typeName string, f schema.Field, valueText string, populated *rstate.Bitset, workers int) (*rstate.Bitset, error) {
	want, ok := parseFieldValue(f.Type, valueText)
	if !ok {
		return rstate.NewBitset(), nil
	}
	ordinals := populated.Ordinals()
	if len(ordinals) == 0 {
		return rstate.NewBitset(), nil
	}

	var cursor atomic.Int64
	partial := make([]*rstate.Bitset, workers)
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			local := rstate.NewBitset()
			for {
				start := int(cursor.Add(chunkSize) - chunkSize)
				if start >= len(ordinals) {
					break
				}
				end := start + chunkSize
				if end > len(ordinals) {
					end = len(ordinals)
				}
				for _, o := range ordinals[start:end] {
					v, err := rs.ReadField(typeName, o, f.Name)
					if err != nil {
						return err
					}
					if fieldValueEquals(v, want) {
						local.Set(o)
					}
				}
			}
			partial[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := rstate.NewBitset()
	for _, p := range partial {
		out = rstate.Or(out, p)
	}
	return out, nil
}
