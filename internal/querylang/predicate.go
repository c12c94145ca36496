package querylang

// PredicateKind identifies the type of leaf predicate.
type PredicateKind int

const (
	// PredToken is a bare-word token search: "error".
	PredToken PredicateKind = iota
	// PredKV is an exact key=value match: "level=error".
	PredKV
	// PredKeyExists is a key-existence check: "level=*".
	PredKeyExists
	// PredValueExists is a value-existence check: "*=error".
	PredValueExists
	// PredRegex is a regex match: /pattern/, or field REGEX /pattern/ inside
	// a where condition.
	PredRegex
	// PredGlob is a wildcard pattern match: error*, *timeout.
	PredGlob
	// PredCompare is a where-condition comparison: field (op) value.
	PredCompare
	// PredLike is a where-condition LIKE match: field LIKE "pat".
	PredLike
)

// CompareOp identifies the comparison operator in a where-condition or KV
// predicate.
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpGt
	OpGte
	OpLt
	OpLte
)

func (op CompareOp) String() string {
	switch op {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	default:
		return "="
	}
}

func (k PredicateKind) String() string {
	switch k {
	case PredToken:
		return "token"
	case PredKV:
		return "kv"
	case PredKeyExists:
		return "key_exists"
	case PredValueExists:
		return "value_exists"
	case PredRegex:
		return "regex"
	case PredGlob:
		return "glob"
	case PredCompare:
		return "compare"
	case PredLike:
		return "like"
	default:
		return "unknown"
	}
}
