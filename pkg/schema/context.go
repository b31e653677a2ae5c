package schema

import "time"

// TimestampLayout is the serialization format for all date-valued results:
// UTC midnight, millisecond precision, literal Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// EvalContext carries the injected evaluation time. Callers must hold it
// fixed for the duration of one evaluation to guarantee determinism.
// Never mutated by the engine.
type EvalContext struct {
	Now      time.Time `json:"now"`
	Locale   string    `json:"locale,omitempty"`
	Timezone string    `json:"timezone,omitempty"`
}

// NewEvalContext creates an EvalContext pinned to the given instant.
func NewEvalContext(now time.Time) *EvalContext {
	return &EvalContext{Now: now}
}

// EvalResult is the outcome of resolving one variable expression.
// DisplayValue is what gets substituted into text; DataValue is the
// typed value transformers write into records.
type EvalResult struct {
	DisplayValue string `json:"display_value"`
	DataValue    any    `json:"data_value"`
}

// UTCMidnight truncates t to midnight on the UTC calendar.
func UTCMidnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatTimestamp renders t as a UTC timestamp in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
