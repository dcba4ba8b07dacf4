// Package wallet validates and normalises account addresses.
package wallet

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidAddress = errors.New("invalid wallet address")

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// Normalize trims and lowercases an address after checking its shape.
func Normalize(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !addressPattern.MatchString(address) {
		return "", ErrInvalidAddress
	}
	return strings.ToLower(address), nil
}

// Short renders 0x1234...abcd for log lines.
func Short(address string) string {
	if len(address) < 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
