package client

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"strings"
)

// validateQuery checks a query for values the server would always reject.
// It runs before encoding, a failed check never reaches the network.
func validateQuery(query common.Query) error {
	if query == nil {
		return validationError("validate query", fmt.Errorf("query is nil"))
	}
	op := "validate " + query.Type().String()

	var err error
	switch q := query.(type) {
	case common.QueryCreateStore:
		err = firstError(
			checkStore(q.Store),
			checkDimension(q.Dimension),
			checkNonLinear(q.NonLinearIndices),
		)
	case common.QueryGetKey:
		err = checkStore(q.Store)
	case common.QueryGetPred:
		err = firstError(checkStore(q.Store), checkCondition(q.Condition))
	case common.QueryGetSimN:
		err = firstError(
			checkStore(q.Store),
			checkSearchInput(q.SearchInput),
			checkClosestN(q.ClosestN),
			checkAlgorithm(q.Algorithm),
		)
	case common.QueryCreatePredIndex:
		err = checkStore(q.Store)
	case common.QueryCreateNonLinearAlgorithmIndex:
		err = firstError(checkStore(q.Store), checkNonLinear(q.NonLinearIndices))
	case common.QueryDropPredIndex:
		err = checkStore(q.Store)
	case common.QueryDropNonLinearAlgorithmIndex:
		err = firstError(checkStore(q.Store), checkNonLinear(q.NonLinearIndices))
	case common.QuerySet:
		err = checkStore(q.Store)
	case common.QueryDelKey:
		err = checkStore(q.Store)
	case common.QueryDelPred:
		err = firstError(checkStore(q.Store), checkCondition(q.Condition))
	case common.QueryDropStore:
		err = checkStore(q.Store)
	}

	if err != nil {
		return validationError(op, err)
	}
	return nil
}

// validateAIQuery is the AI proxy counterpart of validateQuery
func validateAIQuery(query common.AIQuery) error {
	if query == nil {
		return validationError("validate ai query", fmt.Errorf("query is nil"))
	}
	op := "validate ai " + query.Type().String()

	var err error
	switch q := query.(type) {
	case common.AIQueryCreateStore:
		err = firstError(
			checkStore(q.Store),
			checkModels(q.QueryModel, q.IndexModel),
			checkNonLinear(q.NonLinearIndices),
		)
	case common.AIQueryGetPred:
		err = firstError(checkStore(q.Store), checkCondition(q.Condition))
	case common.AIQueryGetSimN:
		err = firstError(
			checkStore(q.Store),
			checkStoreInput(q.SearchInput),
			checkClosestN(q.ClosestN),
			checkAlgorithm(q.Algorithm),
			checkPreprocess(q.Preprocess),
		)
	case common.AIQueryCreatePredIndex:
		err = checkStore(q.Store)
	case common.AIQueryCreateNonLinearAlgorithmIndex:
		err = firstError(checkStore(q.Store), checkNonLinear(q.NonLinearIndices))
	case common.AIQueryDropPredIndex:
		err = checkStore(q.Store)
	case common.AIQueryDropNonLinearAlgorithmIndex:
		err = firstError(checkStore(q.Store), checkNonLinear(q.NonLinearIndices))
	case common.AIQuerySet:
		err = firstError(checkStore(q.Store), checkPreprocess(q.Preprocess))
		for _, entry := range q.Inputs {
			if err != nil {
				break
			}
			err = checkStoreInput(entry.Input)
		}
	case common.AIQueryDelKey:
		err = firstError(checkStore(q.Store), checkStoreInput(q.Key))
	case common.AIQueryDropStore:
		err = checkStore(q.Store)
	case common.AIQueryGetKey:
		err = checkStore(q.Store)
		for _, k := range q.Keys {
			if err != nil {
				break
			}
			err = checkStoreInput(k)
		}
	}

	if err != nil {
		return validationError(op, err)
	}
	return nil
}

func validationError(op string, err error) error {
	return common.NewError(common.KindValidation, op, err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Checks
// --------------------------------------------------------------------------

func checkStore(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("store name must not be empty")
	}
	return nil
}

func checkDimension(dimension uint64) error {
	if dimension < 1 {
		return fmt.Errorf("dimension must be at least 1, got %d", dimension)
	}
	return nil
}

func checkClosestN(n uint64) error {
	if n < 1 {
		return fmt.Errorf("closest_n must be at least 1, got %d", n)
	}
	return nil
}

func checkSearchInput(k common.StoreKey) error {
	if len(k) == 0 {
		return fmt.Errorf("search input must not be empty")
	}
	return nil
}

func checkAlgorithm(a common.Algorithm) error {
	if !a.Valid() {
		return fmt.Errorf("unknown algorithm %d", uint32(a))
	}
	return nil
}

func checkNonLinear(indices []common.NonLinearAlgorithm) error {
	for _, a := range indices {
		if !a.Valid() {
			return fmt.Errorf("unknown non linear algorithm %d", uint32(a))
		}
	}
	return nil
}

func checkCondition(c common.PredicateCondition) error {
	if c == nil {
		return fmt.Errorf("condition must not be nil")
	}
	return nil
}

// checkModels fails for unknown models and for models whose embeddings can
// not be compared
func checkModels(query, index common.AIModel) error {
	if !query.Valid() {
		return fmt.Errorf("unknown query model %d", uint32(query))
	}
	if !index.Valid() {
		return fmt.Errorf("unknown index model %d", uint32(index))
	}
	if query.EmbeddingSize() != index.EmbeddingSize() {
		return fmt.Errorf("query model %s (%d) and index model %s (%d) differ in embedding size",
			query, query.EmbeddingSize(), index, index.EmbeddingSize())
	}
	return nil
}

func checkStoreInput(in common.StoreInput) error {
	if in == nil {
		return fmt.Errorf("store input must not be nil")
	}
	return nil
}

func checkPreprocess(a common.PreprocessAction) error {
	if !a.Valid() {
		return fmt.Errorf("unknown preprocess action %d", uint32(a))
	}
	return nil
}
