package chain

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseUnits converts a decimal string into the token's smallest unit.
// "100.5" with 6 decimals becomes 100500000.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	neg := false
	if strings.HasPrefix(value, "-") {
		neg = true
		value = value[1:]
	}

	whole := value
	frac := ""
	if idx := strings.IndexByte(value, '.'); idx >= 0 {
		whole = value[:idx]
		frac = value[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("amount %s has more than %d decimal places", value, decimals)
	}
	frac = frac + strings.Repeat("0", decimals-len(frac))

	combined := whole + frac
	out, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// FormatUnits renders a smallest-unit amount as a decimal string,
// trimming trailing zeros from the fractional part.
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(amount, divisor, frac)

	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := strings.TrimRight(
		fmt.Sprintf("%0*s", decimals, new(big.Int).Abs(frac).String()), "0")
	return whole.String() + "." + fracStr
}

// ParseAmount converts a float reward amount (as stored on tasks) into the
// token's smallest unit. Amounts are formatted with the token's full
// precision first so float noise beyond the token decimals is rounded away.
func ParseAmount(amount float64, decimals int) (*big.Int, error) {
	if amount < 0 {
		return nil, fmt.Errorf("negative amount: %f", amount)
	}
	return ParseUnits(strings.TrimRight(strings.TrimRight(
		fmt.Sprintf("%.*f", decimals, amount), "0"), "."), decimals)
}
