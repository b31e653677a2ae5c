// Package compare reconciles expected and actual normalized proposal sets
// under path-exclusion rules.
package compare

import (
	"reflect"
	"strconv"

	"github.com/propgrade/propgrade/pkg/schema"
)

// Comparator performs path-aware structural equality over normalized
// proposals. Stateless; safe for concurrent use.
type Comparator struct{}

// NewComparator creates a Comparator.
func NewComparator() *Comparator {
	return &Comparator{}
}

// Compare finds a one-to-one pairing between expected and actual records
// under the ignore-path-aware equality predicate. Each record is used at
// most once; because the predicate is an equivalence relation, greedy
// maximal matching yields counts invariant to pairing order.
func (c *Comparator) Compare(expected, actual []schema.NormalizedProposal, cfg *schema.ValidationConfig) *schema.ComparisonResult {
	ignore := make(map[string]struct{}, len(cfg.IgnorePaths))
	for _, p := range cfg.IgnorePaths {
		ignore[p] = struct{}{}
	}

	used := make([]bool, len(actual))
	result := &schema.ComparisonResult{
		MissingInActual:    []schema.NormalizedProposal{},
		UnexpectedInActual: []schema.NormalizedProposal{},
	}

	for _, exp := range expected {
		matched := false
		for i, act := range actual {
			if used[i] {
				continue
			}
			if equalAt(map[string]any(exp), map[string]any(act), "", ignore) {
				used[i] = true
				matched = true
				result.MatchedCount++
				break
			}
		}
		if !matched {
			result.MissingInActual = append(result.MissingInActual, exp)
		}
	}

	for i, act := range actual {
		if !used[i] {
			result.UnexpectedInActual = append(result.UnexpectedInActual, act)
		}
	}

	result.Matches = len(result.MissingInActual) == 0 && len(result.UnexpectedInActual) == 0
	return result
}

// Equal reports whether two records are equal under the config's ignore
// paths. Exposed for reflexivity checks and diagnostics.
func (c *Comparator) Equal(a, b schema.NormalizedProposal, cfg *schema.ValidationConfig) bool {
	ignore := make(map[string]struct{}, len(cfg.IgnorePaths))
	for _, p := range cfg.IgnorePaths {
		ignore[p] = struct{}{}
	}
	return equalAt(map[string]any(a), map[string]any(b), "", ignore)
}

// equalAt is the recursive predicate. A path listed in ignore is equal by
// definition, regardless of either side's value or presence. A nil value
// and an absent key are equivalent (both "undefined").
func equalAt(a, b any, path string, ignore map[string]struct{}) bool {
	if _, ok := ignore[path]; ok {
		return true
	}

	a, b = unwrap(a), unwrap(b)

	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			return false
		}
		for _, key := range unionKeys(av, bv) {
			if !equalAt(av[key], bv[key], joinPath(path, key), ignore) {
				return false
			}
		}
		return true

	case []any:
		bv, ok := b.([]any)
		if !ok {
			return false
		}
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !equalAt(av[i], bv[i], joinPath(path, strconv.Itoa(i)), ignore) {
				return false
			}
		}
		return true

	default:
		if af, aok := asFloat(a); aok {
			bf, bok := asFloat(b)
			return bok && af == bf
		}
		return reflect.DeepEqual(a, b)
	}
}

// unwrap flattens named map types down to map[string]any.
func unwrap(v any) any {
	if p, ok := v.(schema.NormalizedProposal); ok {
		return map[string]any(p)
	}
	return v
}

func unionKeys(a, b map[string]any) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, seen := a[k]; !seen {
			keys = append(keys, k)
		}
	}
	return keys
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
