/*
Package generic provides the domain-agnostic primitives of the tontine engine.

PURPOSE:
  This package contains the types every other package builds on: the integer
  money type, the entity store contract, and the append-only event log. It has
  no knowledge of members, rounds, or beneficiaries.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A non-negative integer quantity of the tontine's denomination
  - Checked arithmetic: Sub fails instead of wrapping below zero

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so amounts beyond 64 bits stay exact
  2. Integers only: ParseAmount rejects fractions, signs, and exponents
  3. Wire format: Amounts marshal as JSON strings ("1000"), never numbers

USAGE:
  contribution, err := generic.ParseAmount("1000")
  fees := generic.NewAmount(10).MulInt(3)
  payout, err := contribution.Sub(fees)
  if errors.Is(err, generic.ErrUnderflow) {
      // fees exceed the pool
  }

SEE ALSO:
  - errors.go: ErrInvalidAmount, ErrUnderflow
  - store.go: Entity store contract
  - eventlog.go: Audit events
*/
package generic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Non-negative integer quantity
// =============================================================================

// Amount is an exact non-negative integer. The zero value is 0.
type Amount struct {
	value decimal.Decimal
}

// NewAmount builds an Amount from an int64. Negative input is clamped to zero.
func NewAmount(v int64) Amount {
	if v < 0 {
		return Amount{}
	}
	return Amount{value: decimal.NewFromInt(v)}
}

// ParseAmount parses a base-10 string of digits.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Amount{}, fmt.Errorf("%w: %q is not a non-negative integer", ErrInvalidAmount, s)
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return Amount{value: d}, nil
}

// MustParseAmount panics on malformed input. Intended for tests and presets.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Amount) Add(b Amount) Amount { return Amount{value: a.value.Add(b.value)} }

// Sub returns a-b, or ErrUnderflow when b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b.value.GreaterThan(a.value) {
		return Amount{}, &UnderflowError{Minuend: a, Subtrahend: b}
	}
	return Amount{value: a.value.Sub(b.value)}, nil
}

// MulInt multiplies by a count (deposits, rounds). Negative counts yield zero.
func (a Amount) MulInt(n int) Amount {
	if n <= 0 {
		return Amount{}
	}
	return Amount{value: a.value.Mul(decimal.NewFromInt(int64(n)))}
}

func (a Amount) IsZero() bool              { return a.value.IsZero() }
func (a Amount) IsPositive() bool          { return a.value.IsPositive() }
func (a Amount) Equal(b Amount) bool       { return a.value.Equal(b.value) }
func (a Amount) LessThan(b Amount) bool    { return a.value.LessThan(b.value) }
func (a Amount) GreaterThan(b Amount) bool { return a.value.GreaterThan(b.value) }
func (a Amount) Cmp(b Amount) int          { return a.value.Cmp(b.value) }
func (a Amount) String() string            { return a.value.String() }

// Float64 is for metrics only. Precision is lost above 2^53.
func (a Amount) Float64() float64 {
	f, _ := a.value.Float64()
	return f
}

// Sum adds a list of amounts.
func Sum(amounts ...Amount) Amount {
	total := Amount{}
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Accept bare JSON numbers from older clients.
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
