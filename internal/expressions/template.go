package expressions

import (
	"regexp"
	"strings"

	"github.com/propgrade/propgrade/internal/variables"
	"github.com/propgrade/propgrade/pkg/schema"
)

// tokenPattern is the template token grammar: an opening brace immediately
// followed by word characters, optionally +/- and digits, immediately
// followed by a closing brace. No internal whitespace is tolerated, so
// JSON-like text ({"key": "value"}) never false-positives, while a
// well-formed token nested inside a non-matching brace pair is still found
// because matching runs on the literal character window, not brace depth.
var tokenPattern = regexp.MustCompile(`\{(\w+(?:[+-]\d+)?)\}`)

// Match is a located occurrence of a resolved token. StartIndex/EndIndex
// are positions within the final, substituted output string at the moment
// the match's own substitution has not yet been applied (the original span
// shifted by the cumulative length delta of all earlier resolved matches).
type Match struct {
	Expression string             `json:"expression"`
	StartIndex int                `json:"start_index"`
	EndIndex   int                `json:"end_index"`
	Result     *schema.EvalResult `json:"result"`
}

// ProcessResult is the outcome of one Process call.
type ProcessResult struct {
	Processed    string                        `json:"processed"`
	Replacements []Match                       `json:"replacements"`
	Metadata     map[string]*schema.EvalResult `json:"metadata"`
}

// TemplateEngine expands template tokens in arbitrary strings by resolving
// them through a variable registry. Stateless; safe for concurrent use.
type TemplateEngine struct {
	registry *variables.Registry
}

// NewTemplateEngine creates a TemplateEngine backed by the given registry.
func NewTemplateEngine(registry *variables.Registry) *TemplateEngine {
	return &TemplateEngine{registry: registry}
}

// Process finds every token in input, resolves each via the registry, and
// substitutes resolved tokens with their display value. Unresolved tokens
// are left verbatim and produce no Match or metadata entry.
func (e *TemplateEngine) Process(input string, ctx *schema.EvalContext) *ProcessResult {
	result := &ProcessResult{
		Processed: input,
		Metadata:  make(map[string]*schema.EvalResult),
	}

	locs := tokenPattern.FindAllStringSubmatchIndex(input, -1)
	if len(locs) == 0 {
		return result
	}

	var out strings.Builder
	out.Grow(len(input))

	last := 0
	delta := 0
	for _, loc := range locs {
		tokenStart, tokenEnd := loc[0], loc[1]
		expression := input[loc[2]:loc[3]]

		res := e.registry.EvaluateExpression(expression, ctx)
		if res == nil {
			continue
		}

		out.WriteString(input[last:tokenStart])
		out.WriteString(res.DisplayValue)
		last = tokenEnd

		result.Replacements = append(result.Replacements, Match{
			Expression: expression,
			StartIndex: tokenStart + delta,
			EndIndex:   tokenEnd + delta,
			Result:     res,
		})
		result.Metadata[expression] = res

		delta += len(res.DisplayValue) - (tokenEnd - tokenStart)
	}
	out.WriteString(input[last:])

	result.Processed = out.String()
	return result
}

// HasTemplates reports whether input contains at least one well-formed
// token. Purely syntactic; no resolution is attempted.
func (e *TemplateEngine) HasTemplates(input string) bool {
	return tokenPattern.MatchString(input)
}

// ExtractExpressions returns every syntactic match's inner expression text
// in left-to-right order, including duplicates, without resolution.
func (e *TemplateEngine) ExtractExpressions(input string) []string {
	matches := tokenPattern.FindAllStringSubmatch(input, -1)
	if len(matches) == 0 {
		return nil
	}
	exprs := make([]string, 0, len(matches))
	for _, m := range matches {
		exprs = append(exprs, m[1])
	}
	return exprs
}
