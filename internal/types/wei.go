package types

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
)

var weiPerEther = new(big.Int).SetUint64(params.Ether)

// ParseWei parses a decimal wei string into a big.Int. Balances are carried
// as arbitrary-precision integers end to end; floats would lose precision
// above 2^53 wei.
func ParseWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei value: %q", s)
	}
	return v, nil
}

// EtherToWei converts a decimal ETH string (e.g. "0.015") to wei.
// Used for threshold entry; fractions below 1 wei are rejected.
func EtherToWei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return nil, fmt.Errorf("invalid ether value: %q", s)
	}
	r.Mul(r, new(big.Rat).SetInt(weiPerEther))
	if !r.IsInt() {
		return nil, fmt.Errorf("ether value %q is below wei precision", s)
	}
	return new(big.Int).Set(r.Num()), nil
}

// FormatEther renders a wei amount as a decimal ETH string with six places,
// the display precision the alert messages use. Display only; comparisons
// always happen on the wei integers.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0.000000"
	}
	r := new(big.Rat).SetFrac(wei, weiPerEther)
	return r.FloatString(6)
}

// FormatEtherSigned renders a signed delta with an explicit + or - prefix.
func FormatEtherSigned(wei *big.Int) string {
	if wei == nil || wei.Sign() >= 0 {
		return "+" + FormatEther(wei)
	}
	return "-" + FormatEther(new(big.Int).Neg(wei))
}
