package common

// --------------------------------------------------------------------------
// Predicates
// --------------------------------------------------------------------------

// PredicateType is the discriminant of a Predicate
type PredicateType uint32

const (
	PredTEquals PredicateType = iota
	PredTNotEquals
	PredTIn
	PredTNotIn
)

// Predicate is a single comparison against one metadata key.
type Predicate interface {
	Type() PredicateType
	isPredicate()
}

// Equals matches entries whose metadata Key equals Value
type Equals struct {
	Key   string
	Value MetadataValue
}

// NotEquals matches entries whose metadata Key does not equal Value
type NotEquals struct {
	Key   string
	Value MetadataValue
}

// In matches entries whose metadata Key is one of Values
type In struct {
	Key    string
	Values []MetadataValue
}

// NotIn matches entries whose metadata Key is none of Values
type NotIn struct {
	Key    string
	Values []MetadataValue
}

func (Equals) Type() PredicateType    { return PredTEquals }
func (NotEquals) Type() PredicateType { return PredTNotEquals }
func (In) Type() PredicateType        { return PredTIn }
func (NotIn) Type() PredicateType     { return PredTNotIn }
func (Equals) isPredicate()           {}
func (NotEquals) isPredicate()        {}
func (In) isPredicate()               {}
func (NotIn) isPredicate()            {}

// --------------------------------------------------------------------------
// Predicate Conditions
// --------------------------------------------------------------------------

// ConditionType is the discriminant of a PredicateCondition
type ConditionType uint32

const (
	CondTValue ConditionType = iota
	CondTAnd
	CondTOr
)

// PredicateCondition is a recursive tree of predicates combined with and / or.
type PredicateCondition interface {
	Type() ConditionType
	isCondition()
}

// CondValue is a leaf of the condition tree
type CondValue struct {
	Predicate Predicate
}

// CondAnd matches if both sides match
type CondAnd struct {
	Left, Right PredicateCondition
}

// CondOr matches if at least one side matches
type CondOr struct {
	Left, Right PredicateCondition
}

func (CondValue) Type() ConditionType { return CondTValue }
func (CondAnd) Type() ConditionType   { return CondTAnd }
func (CondOr) Type() ConditionType    { return CondTOr }
func (CondValue) isCondition()        {}
func (CondAnd) isCondition()          {}
func (CondOr) isCondition()           {}

// Where wraps a single predicate into a condition
func Where(p Predicate) PredicateCondition {
	return CondValue{Predicate: p}
}

// And combines two conditions, both have to match
func And(left, right PredicateCondition) PredicateCondition {
	return CondAnd{Left: left, Right: right}
}

// Or combines two conditions, one of them has to match
func Or(left, right PredicateCondition) PredicateCondition {
	return CondOr{Left: left, Right: right}
}
