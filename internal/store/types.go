package store

import (
	"encoding/json"
	"time"
)

// Run is the persisted record of one grading invocation: the inputs it
// was given and the verdict it produced.
type Run struct {
	ID            string          `json:"id"`
	Dataset       string          `json:"dataset,omitempty"`
	Expected      json.RawMessage `json:"expected"`
	Actual        json.RawMessage `json:"actual"`
	Config        json.RawMessage `json:"config,omitempty"`
	Verdict       json.RawMessage `json:"verdict"`
	Score         int             `json:"score"`
	Comment       string          `json:"comment,omitempty"`
	ReferenceTime time.Time       `json:"reference_time"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Dataset is a named validation configuration registered for reuse
// across runs.
type Dataset struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Config      json.RawMessage `json:"config"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Dataset string     `json:"dataset,omitempty"`
	Score   *int       `json:"score,omitempty"`
	Since   *time.Time `json:"since,omitempty"`
	Limit   int        `json:"limit,omitempty"`
	Offset  int        `json:"offset,omitempty"`
}
