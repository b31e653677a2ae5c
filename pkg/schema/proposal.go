package schema

// NormalizedProposal is a change proposal projected into the canonical
// comparison field set. Keys are exactly the fields declared by the
// normalization rule that produced it.
type NormalizedProposal map[string]any

// Clone returns a deep copy. Transformer application always works on
// copies so normalized inputs are never mutated.
func (p NormalizedProposal) Clone() NormalizedProposal {
	if p == nil {
		return nil
	}
	return deepCopyMap(p)
}

// CloneValue deep-copies an arbitrary tree-of-maps value.
func CloneValue(v any) any {
	return deepCopyValue(v)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case NormalizedProposal:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// ComparisonResult reports the reconciliation of expected vs actual
// proposal sets. Computed once per comparison; immutable.
type ComparisonResult struct {
	Matches            bool                 `json:"matches"`
	MatchedCount       int                  `json:"matched_count"`
	MissingInActual    []NormalizedProposal `json:"missing_in_actual"`
	UnexpectedInActual []NormalizedProposal `json:"unexpected_in_actual"`
}
