package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account holder, an actor, or a deployed component.
// The canonical form is 0x followed by 40 lowercase hex digits.
type Address string

// ZeroAddress is the null identity. Tokens sent here would be unrecoverable.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

const addressHexLen = 40

// ParseAddress validates and normalizes an address string.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != addressHexLen {
		return "", fmt.Errorf("%w: address %q must be 20 bytes of hex", ErrInvalidArgument, s)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("%w: address %q: %v", ErrInvalidArgument, s, err)
	}
	return Address("0x" + strings.ToLower(raw)), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes renders the trailing 20 bytes of b as an address.
func AddressFromBytes(b []byte) Address {
	if len(b) > addressHexLen/2 {
		b = b[len(b)-addressHexLen/2:]
	}
	padded := make([]byte, addressHexLen/2)
	copy(padded[len(padded)-len(b):], b)
	return Address("0x" + hex.EncodeToString(padded))
}

// Bytes returns the 20-byte form. Malformed addresses decode to nil.
func (a Address) Bytes() []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(string(a), "0x"))
	if err != nil {
		return nil
	}
	return b
}

// IsZero reports whether a is the null identity. The empty string counts as null.
func (a Address) IsZero() bool {
	if a == "" {
		return true
	}
	return strings.EqualFold(string(a), string(ZeroAddress))
}

func (a Address) String() string { return string(a) }
