package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Amount is an unsigned 256-bit token quantity. The zero value is zero.
type Amount struct {
	v uint256.Int
}

// NewAmount returns an amount holding n.
func NewAmount(n uint64) Amount {
	var a Amount
	a.v.SetUint64(n)
	return a
}

// ParseAmount parses a base-10 unsigned integer. Hex input with a 0x prefix
// is accepted as well.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty amount", ErrInvalidArgument)
	}
	var a Amount
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if err := a.v.SetFromHex(s); err != nil {
			return Amount{}, fmt.Errorf("%w: amount %q: %v", ErrInvalidArgument, s, err)
		}
		return a, nil
	}
	if err := a.v.SetFromDecimal(s); err != nil {
		return Amount{}, fmt.Errorf("%w: amount %q: %v", ErrInvalidArgument, s, err)
	}
	return a, nil
}

// MustParseAmount is ParseAmount for constants; it panics on malformed input.
func MustParseAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Add returns a+b and whether the sum overflowed 256 bits.
func (a Amount) Add(b Amount) (Amount, bool) {
	var out Amount
	_, overflow := out.v.AddOverflow(&a.v, &b.v)
	return out, overflow
}

// Sub returns a-b and whether the subtraction underflowed.
func (a Amount) Sub(b Amount) (Amount, bool) {
	var out Amount
	_, underflow := out.v.SubOverflow(&a.v, &b.v)
	return out, underflow
}

// Cmp compares a and b and returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int { return a.v.Cmp(&b.v) }

// Lt reports whether a < b.
func (a Amount) Lt(b Amount) bool { return a.v.Lt(&b.v) }

// Eq reports whether a == b.
func (a Amount) Eq(b Amount) bool { return a.v.Eq(&b.v) }

// IsZero reports whether a is zero.
func (a Amount) IsZero() bool { return a.v.IsZero() }

// Uint64 returns the low 64 bits and whether the value fits.
func (a Amount) Uint64() (uint64, bool) {
	return a.v.Uint64(), a.v.IsUint64()
}

// String renders the amount in base 10.
func (a Amount) String() string { return a.v.Dec() }

// MarshalJSON encodes the amount as a quoted decimal string so values above
// 2^53 survive JSON consumers.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.v.Dec())
}

// UnmarshalJSON accepts a quoted decimal or hex string, or a bare number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalYAML keeps manifests and config files readable.
func (a Amount) MarshalYAML() (any, error) { return a.v.Dec(), nil }

// SumAmounts adds all values, reporting overflow.
func SumAmounts(values ...Amount) (Amount, bool) {
	var total Amount
	for _, v := range values {
		var overflow bool
		total, overflow = total.Add(v)
		if overflow {
			return Amount{}, true
		}
	}
	return total, false
}
