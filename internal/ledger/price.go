package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// weiPerEther is 10^18: the native token carries 18 decimal places.
var weiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ErrInvalidPrice is returned for malformed or negative decimal price
// strings.
var ErrInvalidPrice = errors.New("invalid price")

// ParseEther converts a decimal native-token amount ("0.05") into wei.
// At most 18 fractional digits are accepted; negatives are rejected.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty string", ErrInvalidPrice)
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidPrice, s)
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 18 {
		return nil, fmt.Errorf("%w: more than 18 decimal places in %q", ErrInvalidPrice, s)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
	}
	whole.Mul(whole, weiPerEther)

	if fracPart != "" {
		// Pad to 18 digits so "05" means 0.05, not 5 wei.
		padded := fracPart + strings.Repeat("0", 18-len(fracPart))
		frac, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrice, s)
		}
		whole.Add(whole, frac)
	}
	return whole, nil
}

// FormatEther renders wei as a decimal native-token string with trailing
// zeros trimmed.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	whole, frac := new(big.Int).QuoRem(wei, weiPerEther, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%018s", frac.String()), "0")
	return whole.String() + "." + fracStr
}
