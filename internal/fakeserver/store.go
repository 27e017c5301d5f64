package fakeserver

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"math"
	"sort"
	"sync"
)

// store is one in-memory vector store
type store struct {
	mu         sync.RWMutex
	dimension  uint64
	predicates map[string]struct{}
	nonLinear  map[common.NonLinearAlgorithm]struct{}
	entries    map[string]common.StoreEntry // by keyID
}

func newStore(q common.QueryCreateStore) *store {
	s := &store{
		dimension:  q.Dimension,
		predicates: make(map[string]struct{}),
		nonLinear:  make(map[common.NonLinearAlgorithm]struct{}),
		entries:    make(map[string]common.StoreEntry),
	}
	for _, p := range q.CreatePredicates {
		s.predicates[p] = struct{}{}
	}
	for _, a := range q.NonLinearIndices {
		s.nonLinear[a] = struct{}{}
	}
	return s
}

// keyID turns a key into a comparable map key
func keyID(k common.StoreKey) string {
	b := make([]byte, 4*len(k))
	for i, f := range k {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return string(b)
}

func (s *store) checkDimension(k common.StoreKey) error {
	if uint64(len(k)) != s.dimension {
		return fmt.Errorf("Store dimension is [%d], input dimension of [%d] was specified", s.dimension, len(k))
	}
	return nil
}

// checkPredicates fails for the first predicate key without an index
func (s *store) checkPredicates(c common.PredicateCondition) error {
	for _, key := range conditionKeys(c, nil) {
		if _, ok := s.predicates[key]; !ok {
			return fmt.Errorf("Predicate %s not found in store, attempt CREATEPREDINDEX with predicate", key)
		}
	}
	return nil
}

// sizeInBytes is a rough estimate of the memory held by the entries
func (s *store) sizeInBytes() uint64 {
	size := uint64(0)
	for id, e := range s.entries {
		size += uint64(len(id))
		for k, v := range e.Value {
			size += uint64(len(k))
			switch mv := v.(type) {
			case common.RawString:
				size += uint64(len(mv))
			case common.Binary:
				size += uint64(len(mv))
			}
		}
	}
	return size
}

// sortedEntries returns the entries in key order so answers are deterministic
func (s *store) sortedEntries() []common.StoreEntry {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]common.StoreEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.entries[id])
	}
	return out
}

// --------------------------------------------------------------------------
// Predicate evaluation
// --------------------------------------------------------------------------

func conditionKeys(c common.PredicateCondition, keys []string) []string {
	switch cond := c.(type) {
	case common.CondValue:
		switch p := cond.Predicate.(type) {
		case common.Equals:
			keys = append(keys, p.Key)
		case common.NotEquals:
			keys = append(keys, p.Key)
		case common.In:
			keys = append(keys, p.Key)
		case common.NotIn:
			keys = append(keys, p.Key)
		}
	case common.CondAnd:
		keys = conditionKeys(cond.Right, conditionKeys(cond.Left, keys))
	case common.CondOr:
		keys = conditionKeys(cond.Right, conditionKeys(cond.Left, keys))
	}
	return keys
}

func matches(c common.PredicateCondition, v common.StoreValue) bool {
	switch cond := c.(type) {
	case common.CondValue:
		return matchPredicate(cond.Predicate, v)
	case common.CondAnd:
		return matches(cond.Left, v) && matches(cond.Right, v)
	case common.CondOr:
		return matches(cond.Left, v) || matches(cond.Right, v)
	default:
		return false
	}
}

func matchPredicate(p common.Predicate, v common.StoreValue) bool {
	switch pred := p.(type) {
	case common.Equals:
		got, ok := v[pred.Key]
		return ok && metadataEqual(got, pred.Value)
	case common.NotEquals:
		got, ok := v[pred.Key]
		return !ok || !metadataEqual(got, pred.Value)
	case common.In:
		got, ok := v[pred.Key]
		return ok && containsValue(pred.Values, got)
	case common.NotIn:
		got, ok := v[pred.Key]
		return !ok || !containsValue(pred.Values, got)
	default:
		return false
	}
}

func containsValue(values []common.MetadataValue, v common.MetadataValue) bool {
	for _, candidate := range values {
		if metadataEqual(candidate, v) {
			return true
		}
	}
	return false
}

func metadataEqual(a, b common.MetadataValue) bool {
	switch av := a.(type) {
	case common.RawString:
		bv, ok := b.(common.RawString)
		return ok && av == bv
	case common.Binary:
		bv, ok := b.(common.Binary)
		return ok && bytes.Equal(av, bv)
	default:
		return false
	}
}

// --------------------------------------------------------------------------
// Similarity
// --------------------------------------------------------------------------

// similarity returns the score of b against the search input a and whether
// a higher score is closer
func similarity(algorithm common.Algorithm, a, b common.StoreKey) (float32, bool) {
	switch algorithm {
	case common.DotProductSimilarity:
		return dot(a, b), true
	case common.CosineSimilarity:
		na, nb := math.Sqrt(float64(dot(a, a))), math.Sqrt(float64(dot(b, b)))
		if na == 0 || nb == 0 {
			return 0, true
		}
		return float32(float64(dot(a, b)) / (na * nb)), true
	default:
		// euclidean and the kd-tree index both rank by distance
		sum := float64(0)
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum)), false
	}
}

func dot(a, b common.StoreKey) float32 {
	sum := float32(0)
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
