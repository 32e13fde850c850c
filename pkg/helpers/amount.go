package helpers

import (
	"fmt"
	"math/big"
	"strings"
)

// FormatAmount renders base units with the given number of decimals,
// trimming trailing zeros. FormatAmount(1500000, 6) == "1.5".
func FormatAmount(amount uint64, decimals uint8) string {
	return FormatBigAmount(new(big.Int).SetUint64(amount), decimals)
}

// FormatBigAmount is FormatAmount for values that may exceed uint64 (wei).
func FormatBigAmount(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	if decimals == 0 {
		return amount.String()
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount, unit, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := frac.String()
	fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr
}

// ParseAmount parses a decimal string into base units. Extra fractional
// digits beyond decimals are rejected rather than truncated.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > int(decimals) {
		return 0, fmt.Errorf("amount %s has more than %d decimals", s, decimals)
	}
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return 0, fmt.Errorf("invalid character in amount: %c", c)
			}
		}
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return 0, fmt.Errorf("invalid amount: %s", s)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("amount %s overflows uint64", s)
	}
	return v.Uint64(), nil
}
