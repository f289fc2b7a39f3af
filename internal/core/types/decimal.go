// Package types provides the money and quantity value types of the ledger.
package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/apperror"
)

// Money represents a monetary value with full precision.
type Money = decimal.Decimal

// NewMoney creates a Money value from a float.
// Prefer NewMoneyFromString for values coming from users or external ledgers.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to cents.
func RoundMoney(m Money) Money {
	return m.Round(2)
}

// WithinTolerance reports whether |a-b| <= tol.
func WithinTolerance(a, b, tol Money) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tol)
}

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4),
// stored as BIGINT. Stock quantities and movement deltas are integers of
// this scale so a ledger fold is exact.
type Quantity int64

const QuantityScale int64 = 10_000

// quantityPlaces is the number of fractional digits a Quantity keeps.
const quantityPlaces = 4

// The range is symmetric so Neg and Abs never overflow.
var (
	maxScaled = decimal.NewFromInt(math.MaxInt64)
	minScaled = decimal.NewFromInt(-math.MaxInt64)
)

// NewQuantity creates a whole-unit quantity.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// NewQuantityFromDecimal converts d exactly. Values with more than 4
// fractional digits or outside the int64 range are rejected.
func NewQuantityFromDecimal(d decimal.Decimal) (Quantity, error) {
	scaled := d.Shift(quantityPlaces)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, apperror.NewInvalidQuantity(d.String(), "more than 4 decimal places")
	}
	if scaled.GreaterThan(maxScaled) || scaled.LessThan(minScaled) {
		return 0, apperror.NewInvalidQuantity(d.String(), "out of range")
	}
	return Quantity(scaled.IntPart()), nil
}

// ParseQuantity parses a decimal string such as "12.5" or "1.5e2".
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, apperror.NewInvalidQuantity(s, "empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, apperror.NewInvalidQuantity(s, "not a decimal number").WithCause(err)
	}
	return NewQuantityFromDecimal(d)
}

// MustQuantity parses s, panics on error. Use only for tests.
func MustQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// Decimal returns the exact decimal value.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -quantityPlaces) }

// Mul returns q * price as Money.
func (q Quantity) Mul(price Money) Money { return q.Decimal().Mul(price) }

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	return q.Decimal().StringFixed(quantityPlaces)
}

// MarshalJSON encodes Quantity as JSON number (not string), preserving 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	s := string(data)
	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
