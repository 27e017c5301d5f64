package fakeserver

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"sort"
)

// answer runs a store level query
func (s *store) answer(query common.Query) (common.ServerResponse, error) {
	switch q := query.(type) {
	case common.QueryGetKey:
		return s.getKey(q)
	case common.QueryGetPred:
		return s.getPred(q)
	case common.QueryGetSimN:
		return s.getSimN(q)
	case common.QueryCreatePredIndex:
		return s.createPredIndex(q), nil
	case common.QueryCreateNonLinearAlgorithmIndex:
		return s.createNonLinearIndex(q), nil
	case common.QueryDropPredIndex:
		return s.dropPredIndex(q)
	case common.QueryDropNonLinearAlgorithmIndex:
		return s.dropNonLinearIndex(q)
	case common.QuerySet:
		return s.set(q)
	case common.QueryDelKey:
		return s.delKey(q)
	case common.QueryDelPred:
		return s.delPred(q)
	default:
		return nil, fmt.Errorf("unsupported query %T", query)
	}
}

func (s *store) getKey(q common.QueryGetKey) (common.ServerResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []common.StoreEntry
	for _, k := range q.Keys {
		if err := s.checkDimension(k); err != nil {
			return nil, err
		}
		if e, ok := s.entries[keyID(k)]; ok {
			entries = append(entries, e)
		}
	}
	return common.RespGet{Entries: entries}, nil
}

func (s *store) getPred(q common.QueryGetPred) (common.ServerResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkPredicates(q.Condition); err != nil {
		return nil, err
	}

	var entries []common.StoreEntry
	for _, e := range s.sortedEntries() {
		if matches(q.Condition, e.Value) {
			entries = append(entries, e)
		}
	}
	return common.RespGet{Entries: entries}, nil
}

func (s *store) getSimN(q common.QueryGetSimN) (common.ServerResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkDimension(q.SearchInput); err != nil {
		return nil, err
	}
	if q.Algorithm == common.KdTree {
		if _, ok := s.nonLinear[common.NonLinearKdTree]; !ok {
			return nil, fmt.Errorf("Non linear algorithm %s not found in store, create store with support", common.NonLinearKdTree)
		}
	}
	if q.Condition != nil {
		if err := s.checkPredicates(q.Condition); err != nil {
			return nil, err
		}
	}

	var higherIsCloser bool
	var candidates []common.SimilarEntry
	for _, e := range s.sortedEntries() {
		if q.Condition != nil && !matches(q.Condition, e.Value) {
			continue
		}
		score, higher := similarity(q.Algorithm, q.SearchInput, e.Key)
		higherIsCloser = higher
		candidates = append(candidates, common.SimilarEntry{Key: e.Key, Value: e.Value, Similarity: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if higherIsCloser {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Similarity < candidates[j].Similarity
	})
	if uint64(len(candidates)) > q.ClosestN {
		candidates = candidates[:q.ClosestN]
	}
	return common.RespGetSimN{Entries: candidates}, nil
}

func (s *store) createPredIndex(q common.QueryCreatePredIndex) common.ServerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := uint64(0)
	for _, p := range q.Predicates {
		if _, ok := s.predicates[p]; !ok {
			s.predicates[p] = struct{}{}
			created++
		}
	}
	return common.RespCreateIndex{Created: created}
}

func (s *store) createNonLinearIndex(q common.QueryCreateNonLinearAlgorithmIndex) common.ServerResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	created := uint64(0)
	for _, a := range q.NonLinearIndices {
		if _, ok := s.nonLinear[a]; !ok {
			s.nonLinear[a] = struct{}{}
			created++
		}
	}
	return common.RespCreateIndex{Created: created}
}

func (s *store) dropPredIndex(q common.QueryDropPredIndex) (common.ServerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ErrorIfNotExists {
		for _, p := range q.Predicates {
			if _, ok := s.predicates[p]; !ok {
				return nil, fmt.Errorf("Predicate %s not found in store, attempt CREATEPREDINDEX with predicate", p)
			}
		}
	}

	deleted := uint64(0)
	for _, p := range q.Predicates {
		if _, ok := s.predicates[p]; ok {
			delete(s.predicates, p)
			deleted++
		}
	}
	return common.RespDel{Deleted: deleted}, nil
}

func (s *store) dropNonLinearIndex(q common.QueryDropNonLinearAlgorithmIndex) (common.ServerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ErrorIfNotExists {
		for _, a := range q.NonLinearIndices {
			if _, ok := s.nonLinear[a]; !ok {
				return nil, fmt.Errorf("Non linear algorithm %s not found in store, create store with support", a)
			}
		}
	}

	deleted := uint64(0)
	for _, a := range q.NonLinearIndices {
		if _, ok := s.nonLinear[a]; ok {
			delete(s.nonLinear, a)
			deleted++
		}
	}
	return common.RespDel{Deleted: deleted}, nil
}

func (s *store) set(q common.QuerySet) (common.ServerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// all or nothing
	for _, e := range q.Inputs {
		if err := s.checkDimension(e.Key); err != nil {
			return nil, err
		}
	}

	var upsert common.StoreUpsert
	for _, e := range q.Inputs {
		id := keyID(e.Key)
		if _, ok := s.entries[id]; ok {
			upsert.Updated++
		} else {
			upsert.Inserted++
		}
		s.entries[id] = e
	}
	return common.RespSet{Upsert: upsert}, nil
}

func (s *store) delKey(q common.QueryDelKey) (common.ServerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range q.Keys {
		if err := s.checkDimension(k); err != nil {
			return nil, err
		}
	}

	deleted := uint64(0)
	for _, k := range q.Keys {
		id := keyID(k)
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			deleted++
		}
	}
	return common.RespDel{Deleted: deleted}, nil
}

func (s *store) delPred(q common.QueryDelPred) (common.ServerResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkPredicates(q.Condition); err != nil {
		return nil, err
	}

	deleted := uint64(0)
	for id, e := range s.entries {
		if matches(q.Condition, e.Value) {
			delete(s.entries, id)
			deleted++
		}
	}
	return common.RespDel{Deleted: deleted}, nil
}
