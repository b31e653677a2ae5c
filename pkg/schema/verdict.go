package schema

// ComparisonMethodNormalized identifies the normalized structural-match
// comparison this engine performs.
const ComparisonMethodNormalized = "normalized_structural_match"

// Verdict is the single result object exposed to the evaluation harness.
// Score is 0 or 1; Comment is a short machine-built summary (the rich
// human-readable rendering is a downstream presentation concern).
type Verdict struct {
	Key     string       `json:"key"`
	Score   int          `json:"score"`
	Comment string       `json:"comment"`
	Value   VerdictValue `json:"value"`
}

// VerdictValue carries the structured comparison breakdown.
type VerdictValue struct {
	ExpectedProposalCount int                  `json:"expected_proposal_count"`
	ActualProposalCount   int                  `json:"actual_proposal_count"`
	MatchedProposals      int                  `json:"matched_proposals"`
	MissingProposals      []NormalizedProposal `json:"missing_proposals"`
	UnexpectedProposals   []NormalizedProposal `json:"unexpected_proposals"`
	ComparisonMethod      string               `json:"comparison_method"`
}
