package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MaxBodySize is the maximum accepted size of a request body in bytes
const MaxBodySize = 64 << 10

// BodyError is returned by UnmarshalBody whenever the request body itself is unacceptable
type BodyError struct {
	// Parameter is set if a single parameter could not be assigned to its type
	Parameter    string
	ExpectedType string

	Cause error
}

func (err *BodyError) Error() string {
	if err.Parameter != "" {
		return fmt.Sprintf("the request body parameter '%s' could not be assigned to the required type (%s)", err.Parameter, err.ExpectedType)
	}
	return fmt.Sprintf("the request body is not a valid JSON input: %v", err.Cause)
}

func (err *BodyError) Unwrap() error {
	return err.Cause
}

// UnmarshalBody reads and decodes a JSON request body of at most MaxBodySize bytes.
// Client mistakes are reported as *BodyError.
func UnmarshalBody[T any](writer http.ResponseWriter, request *http.Request) (*T, error) {
	body, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, MaxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, &BodyError{Cause: err}
		}
		return nil, err
	}

	target := new(T)
	if err := json.Unmarshal(body, target); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &BodyError{
				Parameter:    typeErr.Field,
				ExpectedType: typeErr.Type.String(),
				Cause:        err,
			}
		}
		return nil, &BodyError{Cause: err}
	}
	return target, nil
}
