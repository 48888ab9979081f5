package credentials

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingIdentifier = errors.New("no student ID was provided")
	ErrMissingSecret     = errors.New("no password was provided")
)

// Credentials represents the identifier/secret pair used to log in at the central authentication service.
// Credentials are supplied once per operation and are never persisted.
type Credentials struct {
	Identifier string
	Secret     string
}

// New creates a new credentials pair.
// The identifier is trimmed; the secret is kept as is because whitespace may be part of a password.
func New(identifier, secret string) (Credentials, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return Credentials{}, ErrMissingIdentifier
	}
	if secret == "" {
		return Credentials{}, ErrMissingSecret
	}
	return Credentials{
		Identifier: identifier,
		Secret:     secret,
	}, nil
}

// String implements fmt.Stringer without leaking the secret
func (creds Credentials) String() string {
	return fmt.Sprintf("Credentials{Identifier: %q, Secret: [redacted]}", creds.Identifier)
}

// GoString implements fmt.GoStringer so that %#v does not leak the secret either
func (creds Credentials) GoString() string {
	return creds.String()
}
