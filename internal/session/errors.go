package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAuthentication is returned whenever the authentication service rejects the credentials or the gid
var ErrAuthentication = errors.New("the central authentication service rejected the login (check the student ID and password)")

// FormError is returned when the login page lacks fields required to log in.
// This indicates that the login form contract of the authentication service changed and is never retried.
type FormError struct {
	Missing []string
}

func (err *FormError) Error() string {
	return fmt.Sprintf("the login page is missing required fields (%s)", strings.Join(err.Missing, ", "))
}

// QueryError is returned when the grade query endpoint answers with a non-zero status code.
// Raw holds the complete response body for diagnostics.
type QueryError struct {
	Code string
	Raw  []byte
}

func (err *QueryError) Error() string {
	return fmt.Sprintf("the grade query failed with code %s: %s", err.Code, string(err.Raw))
}

// HTTPError is returned for every response with a non-2xx status code
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (err *HTTPError) Error() string {
	return fmt.Sprintf("%s %s returned %s", err.Method, err.URL, err.Status)
}
