// Package domain contains entities without logic, just meta-data and validation
package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

const MaxIdentityLen = 36

var (
	ErrIdentityTooLong = errors.New("identity too long")
	ErrIdentityEmpty   = errors.New("identity empty")
)

// Identity is the stable display name supplied by the session.
type Identity string

// NewIdentity trims and validates a display name.
func NewIdentity(raw string) (Identity, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", ErrIdentityEmpty
	}
	if utf8.RuneCountInString(name) > MaxIdentityLen {
		return "", ErrIdentityTooLong
	}
	return Identity(name), nil
}

func (i Identity) String() string { return string(i) }
