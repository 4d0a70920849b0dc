package rpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
)

// Error codes returned by the backend.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeBadRequest   = "BAD_REQUEST"
)

// Error is a failure reported by the backend for a procedure or REST call.
type Error struct {
	Procedure  string
	Code       string
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("rpc %s: %s (%s)", e.Procedure, e.Message, e.Code)
	}
	return fmt.Sprintf("rpc %s: %s", e.Procedure, e.Message)
}

// IsNotFound reports whether err is a backend "not found" answer.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeNotFound || e.HTTPStatus == http.StatusNotFound
	}
	return false
}

// IsConflict reports whether err is a backend "conflict" answer.
func IsConflict(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeConflict || e.HTTPStatus == http.StatusConflict
	}
	return false
}

// IsUnauthorized reports whether the backend rejected the credentials.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeUnauthorized || e.HTTPStatus == http.StatusUnauthorized
	}
	return false
}

// decodeProcedureError accepts both the wrapped ({"error":{"json":{...}}}) and the plain
// ({"error":{...}}) error envelopes.
func decodeProcedureError(procedure string, status int, raw []byte) error {
	e := gjson.GetBytes(raw, "error")
	if wrapped := e.Get("json"); wrapped.Exists() {
		e = wrapped
	}

	code := e.Get("data.code").String()
	if code == "" {
		if c := e.Get("code"); c.Type == gjson.String {
			code = c.String()
		}
	}
	if s := e.Get("data.httpStatus"); s.Exists() && status < 400 {
		status = int(s.Int())
	}
	message := e.Get("message").String()
	if message == "" {
		message = http.StatusText(status)
	}
	if message == "" {
		message = "unknown error"
	}
	return &Error{Procedure: procedure, Code: code, Message: message, HTTPStatus: status}
}

// decodeRESTError reads the "detail" field the REST endpoints use for messages.
func decodeRESTError(path string, status int, raw []byte) error {
	message := gjson.GetBytes(raw, "detail").String()
	if message == "" {
		message = gjson.GetBytes(raw, "message").String()
	}
	if message == "" {
		message = http.StatusText(status)
	}
	code := ""
	switch status {
	case http.StatusNotFound:
		code = CodeNotFound
	case http.StatusConflict:
		code = CodeConflict
	case http.StatusUnauthorized:
		code = CodeUnauthorized
	case http.StatusBadRequest:
		code = CodeBadRequest
	}
	return &Error{Procedure: path, Code: code, Message: message, HTTPStatus: status}
}
