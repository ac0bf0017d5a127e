// Package otp generates, hashes and compares numeric one-time codes.
//
// Plain codes only exist between generation and delivery. Everything that is
// stored holds the SHA-256 digest, and comparisons are constant-time.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// MinDigits and MaxDigits bound the code length accepted by New.
const (
	MinDigits = 4
	MaxDigits = 10
)

// ErrInvalidDigits is returned by New for an out-of-range length.
var ErrInvalidDigits = errors.New("invalid otp digits")

// New returns a uniformly random numeric code of the given length. Leading
// zeros are kept.
func New(digits int) (string, error) {
	if digits < MinDigits || digits > MaxDigits {
		return "", ErrInvalidDigits
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return code, nil
}

// Hash returns the SHA-256 digest of code.
func Hash(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// Equal reports whether code hashes to stored, in constant time.
func Equal(code string, stored [32]byte) bool {
	h := Hash(code)
	return subtle.ConstantTimeCompare(h[:], stored[:]) == 1
}

// IsNumeric reports whether s is a non-empty string of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
