package domain

import (
	"fmt"
	"strconv"
)

// Tokens is a fixed-point decimal with exactly two fractional digits,
// represented internally as centi-tokens (value * 100) so that quota
// arithmetic never touches a floating binary type.
type Tokens int64

// TokensFromFloat constructs a Tokens value from a float, rounding to the
// nearest centi-token. Only used at the boundary (parsing baseline cost
// tables and seed data); stored and compared values stay integral.
func TokensFromFloat(f float64) Tokens {
	return Tokens(f*100 + 0.5)
}

// Float64 returns the decimal value as a float64, for JSON responses only.
func (t Tokens) Float64() float64 {
	return float64(t) / 100
}

// String renders the value with exactly two fractional digits.
func (t Tokens) String() string {
	sign := ""
	v := int64(t)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// MarshalJSON renders Tokens as a decimal number, e.g. 1.00 or 0.50.
func (t Tokens) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalJSON parses a decimal JSON number into centi-tokens.
func (t *Tokens) UnmarshalJSON(b []byte) error {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*t = TokensFromFloat(f)
	return nil
}

// Add returns the sum of two Tokens values.
func (t Tokens) Add(o Tokens) Tokens { return t + o }
