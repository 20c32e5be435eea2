// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/shopspring/decimal"
)

// DashDecimals is the number of decimal places of one DASH (1 DASH = 1e8 duffs).
const DashDecimals = 8

// ErrInvalidAmount is returned for amounts that cannot be represented.
var ErrInvalidAmount = errors.New("invalid amount")

// FormatAmount formats an amount in smallest units as a decimal string.
// For example, FormatAmount(100000000, 8) returns "1".
func FormatAmount(amount int64, decimals uint8) string {
	return decimal.New(amount, -int32(decimals)).String()
}

// ParseAmount parses a decimal string to smallest units.
// For example, ParseAmount("1", 8) returns 100000000. More fractional digits
// than decimals allows is an error rather than a silent truncation.
func ParseAmount(s string, decimals uint8) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount string", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: negative amount %s", ErrInvalidAmount, s)
	}

	units := d.Shift(int32(decimals))
	if !units.IsInteger() {
		return 0, fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, s, decimals)
	}
	if units.GreaterThan(decimal.NewFromInt(btcutil.MaxSatoshi)) {
		return 0, fmt.Errorf("%w: amount overflow: %s", ErrInvalidAmount, s)
	}

	return units.IntPart(), nil
}

// ParseDash parses a DASH amount such as "0.29" into duffs.
func ParseDash(s string) (btcutil.Amount, error) {
	duffs, err := ParseAmount(s, DashDecimals)
	if err != nil {
		return 0, err
	}
	return btcutil.Amount(duffs), nil
}

// FormatDash formats duffs as DASH without trailing zeros.
func FormatDash(amount btcutil.Amount) string {
	return FormatAmount(int64(amount), DashDecimals)
}

// FormatDashFixed formats duffs as DASH with all eight decimal places.
func FormatDashFixed(amount btcutil.Amount) string {
	return decimal.New(int64(amount), -DashDecimals).StringFixed(DashDecimals)
}
