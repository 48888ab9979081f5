package schema

import (
	"encoding/json"
	"net/http"
)

// Response represents the unified envelope every proxy endpoint answers with
type Response struct {
	Success bool            `json:"success"`
	GID     string          `json:"gid,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	ErrMsg  string          `json:"errMsg,omitempty"`
}

// Writer helps writing unified API responses
type Writer struct {
	InternalErrorHook func(err error)
}

// WriteJSONCode writes the JSON representation of value to the given response writer using the given HTTP status code
func (writer *Writer) WriteJSONCode(rw http.ResponseWriter, code int, value any) {
	val, err := json.Marshal(value)
	if err != nil {
		writer.InternalErrorHook(err)
		code = http.StatusInternalServerError
		val = []byte(`{"success":false}`)
	}
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	rw.WriteHeader(code)
	rw.Write(val)
}

// WriteJSON writes the JSON representation of value to the given response writer.
// This method sends 200 OK as the HTTP status code; use WriteJSONCode to use a different one.
func (writer *Writer) WriteJSON(rw http.ResponseWriter, value any) {
	writer.WriteJSONCode(rw, http.StatusOK, value)
}

// WriteSuccess sends a successful envelope carrying either a gid or a data payload
func (writer *Writer) WriteSuccess(rw http.ResponseWriter, gid string, data json.RawMessage) {
	writer.WriteJSON(rw, &Response{
		Success: true,
		GID:     gid,
		Data:    data,
	})
}

// WriteFailure sends a failure envelope.
// Failures caused by the upstream services use 200 OK; the status code is only raised for client mistakes.
func (writer *Writer) WriteFailure(rw http.ResponseWriter, code int, message string) {
	writer.WriteJSONCode(rw, code, &Response{
		Success: false,
		ErrMsg:  message,
	})
}
