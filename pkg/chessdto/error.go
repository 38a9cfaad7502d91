package chessdto

import "net/http"

type staticErr string

func (e staticErr) Error() string { return string(e) }

// ErrDecode wraps every malformed-frame failure.
var ErrDecode error = staticErr("malformed message")

// DomainError is a rejection that crosses the HTTP boundary. Status is the
// HTTP status code to answer with.
type DomainError struct {
	Code    string
	Status  int
	Message string
}

func (e DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "chess service error"
}

// HTTPStatus falls back to 500 when Status is unset.
func (e DomainError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

func BadRequest(code, msg string) DomainError {
	return DomainError{Code: code, Status: http.StatusBadRequest, Message: msg}
}

func Unauthorized(code, msg string) DomainError {
	return DomainError{Code: code, Status: http.StatusUnauthorized, Message: msg}
}

func NotFound(code, msg string) DomainError {
	return DomainError{Code: code, Status: http.StatusNotFound, Message: msg}
}
