package domain

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// feltPrime is the field modulus 2^251 + 17*2^192 + 1, big-endian.
var feltPrime = [32]byte{
	0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x11,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
}

var (
	ErrInvalidHex    = errors.New("invalid hex value")
	ErrFeltOverflow  = errors.New("value exceeds field modulus")
	ErrMissingPrefix = errors.New("hex value must start with 0x")
)

func parseFelt(raw string) ([32]byte, error) {
	var out [32]byte
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return out, ErrMissingPrefix
	}
	digits := raw[2:]
	if len(digits) == 0 || len(digits) > 64 {
		return out, fmt.Errorf("%w: expected 1 to 64 digits, got %d", ErrInvalidHex, len(digits))
	}
	padded := strings.Repeat("0", 64-len(digits)) + digits
	if _, err := hex.Decode(out[:], []byte(padded)); err != nil {
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	if bytes.Compare(out[:], feltPrime[:]) >= 0 {
		return [32]byte{}, ErrFeltOverflow
	}
	return out, nil
}

func formatFelt(value [32]byte) string {
	return "0x" + hex.EncodeToString(value[:])
}
