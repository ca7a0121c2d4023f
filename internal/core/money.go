// Package core holds the domain model shared by the poller, sensors and
// storage: accounts, categories, cashflow and money arithmetic.
//
// Money is integer cents throughout; sensor states round to whole currency
// units for display.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in integer cents. Balances from the API arrive as
// floats and are converted once at the client boundary.
type Money struct {
	Cents int64
}

// FromFloat converts a currency amount (e.g. an API displayBalance) to
// Money with half-up rounding on fractional cents.
func FromFloat(amount float64) Money {
	return Money{Cents: int64(math.Round(amount * 100.0))}
}

// Units returns the amount rounded to whole currency units, half away from
// zero. Sensor states report whole units.
func (m Money) Units() int64 {
	u := m.Cents / 100
	rem := m.Cents % 100
	if rem >= 50 {
		u++
	} else if rem <= -50 {
		u--
	}
	return u
}

// Float returns the amount as a float64 for serialization. Use cents for
// arithmetic to avoid precision drift.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// String formats the amount as a plain decimal, e.g. "1234.50" or "-0.05".
func (m Money) String() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-" + s
	}
	return s
}

// ParseFloatToCents parses a decimal string (dot or comma separator) into
// cents with half-up rounding. Used when reading balances that arrive as
// formatted strings.
func ParseFloatToCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(f * 100.0)), true
}
