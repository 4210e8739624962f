package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// NanoPerTON is the number of nanoTON in one TON.
const NanoPerTON = 1_000_000_000

const tonDecimals = 9

// FormatTON renders a nanoTON amount as a decimal TON string without
// trailing zeros.
func FormatTON(nano uint64) string {
	return decimal.NewFromUint64(nano).Shift(-tonDecimals).String()
}

// ParseTON converts a decimal TON string (e.g. "5.5") to nanoTON.
func ParseTON(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid TON amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid TON amount %q: negative", s)
	}
	nano := d.Shift(tonDecimals)
	if !nano.Equal(nano.Truncate(0)) {
		return 0, fmt.Errorf("invalid TON amount %q: more than %d decimals", s, tonDecimals)
	}
	if !nano.BigInt().IsUint64() {
		return 0, fmt.Errorf("invalid TON amount %q: out of range", s)
	}
	return nano.BigInt().Uint64(), nil
}
