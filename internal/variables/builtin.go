package variables

import (
	"fmt"
	"strconv"
	"time"

	"github.com/propgrade/propgrade/pkg/schema"
)

// Built-in variable keys.
const (
	KeyCurrentMonth = "currentMonth"
	KeyCurrentYear  = "currentYear"
	KeyCurrentDay   = "currentDay"
	KeyToday        = "today"
)

// Builtins returns the built-in date variables. All of them operate on the
// UTC calendar fields of the context's Now.
func Builtins() []Variable {
	return []Variable{
		monthVariable{},
		yearVariable{},
		dayVariable{},
		todayVariable{},
	}
}

// signed converts an op/operand pair into a signed shift.
func signed(op string, operand int) int {
	if op == "-" {
		return -operand
	}
	return operand
}

// addMonthsClamped shifts t by n calendar months, clamping the day of month
// to the target month's length so Jan 31 + 1 month lands on Feb 28/29
// rather than normalizing into March.
func addMonthsClamped(t time.Time, n int) time.Time {
	t = t.UTC()
	year, month, day := t.Year(), int(t.Month()), t.Day()

	total := year*12 + (month - 1) + n
	targetYear := total / 12
	targetMonth := time.Month(total%12 + 1)
	if total%12 < 0 {
		// Go's integer division truncates toward zero; normalize negatives.
		targetYear--
		targetMonth = time.Month(total%12 + 13)
	}

	lastDay := time.Date(targetYear, targetMonth+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(targetYear, targetMonth, day, 0, 0, 0, 0, time.UTC)
}

// monthDisplay renders a month name, appending the year whenever the
// resolved month's year differs from the context year.
func monthDisplay(resolved time.Time, contextYear int) string {
	name := resolved.Month().String()
	if resolved.Year() != contextYear {
		return fmt.Sprintf("%s %d", name, resolved.Year())
	}
	return name
}

type monthVariable struct{}

func (monthVariable) Key() string              { return KeyCurrentMonth }
func (monthVariable) SupportsArithmetic() bool { return true }

func (monthVariable) Evaluate(ctx *schema.EvalContext) *schema.EvalResult {
	base := schema.UTCMidnight(ctx.Now)
	return &schema.EvalResult{
		DisplayValue: monthDisplay(base, ctx.Now.UTC().Year()),
		DataValue:    schema.FormatTimestamp(base),
	}
}

func (monthVariable) ApplyArithmetic(op string, operand int, ctx *schema.EvalContext) *schema.EvalResult {
	shifted := addMonthsClamped(schema.UTCMidnight(ctx.Now), signed(op, operand))
	return &schema.EvalResult{
		DisplayValue: monthDisplay(shifted, ctx.Now.UTC().Year()),
		DataValue:    schema.FormatTimestamp(shifted),
	}
}

type yearVariable struct{}

func (yearVariable) Key() string              { return KeyCurrentYear }
func (yearVariable) SupportsArithmetic() bool { return true }

func (yearVariable) Evaluate(ctx *schema.EvalContext) *schema.EvalResult {
	year := ctx.Now.UTC().Year()
	return &schema.EvalResult{DisplayValue: strconv.Itoa(year), DataValue: year}
}

func (yearVariable) ApplyArithmetic(op string, operand int, ctx *schema.EvalContext) *schema.EvalResult {
	year := ctx.Now.UTC().Year() + signed(op, operand)
	return &schema.EvalResult{DisplayValue: strconv.Itoa(year), DataValue: year}
}

type dayVariable struct{}

func (dayVariable) Key() string              { return KeyCurrentDay }
func (dayVariable) SupportsArithmetic() bool { return true }

func (dayVariable) Evaluate(ctx *schema.EvalContext) *schema.EvalResult {
	base := schema.UTCMidnight(ctx.Now)
	return &schema.EvalResult{
		DisplayValue: strconv.Itoa(base.Day()),
		DataValue:    schema.FormatTimestamp(base),
	}
}

func (dayVariable) ApplyArithmetic(op string, operand int, ctx *schema.EvalContext) *schema.EvalResult {
	shifted := schema.UTCMidnight(ctx.Now).AddDate(0, 0, signed(op, operand))
	return &schema.EvalResult{
		DisplayValue: strconv.Itoa(shifted.Day()),
		DataValue:    schema.FormatTimestamp(shifted),
	}
}

type todayVariable struct{}

func (todayVariable) Key() string              { return KeyToday }
func (todayVariable) SupportsArithmetic() bool { return false }

func (todayVariable) Evaluate(ctx *schema.EvalContext) *schema.EvalResult {
	base := schema.UTCMidnight(ctx.Now)
	return &schema.EvalResult{
		DisplayValue: base.Format("2006-01-02"),
		DataValue:    schema.FormatTimestamp(base),
	}
}

func (todayVariable) ApplyArithmetic(string, int, *schema.EvalContext) *schema.EvalResult {
	return nil
}
