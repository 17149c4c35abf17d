package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeConfiguration       = "configuration_error"
	CodeNotAllowed          = "not_allowed"
	CodeUpstreamUnavailable = "upstream_unavailable"
	CodeDecode              = "decode_error"
	CodeRender              = "render_error"
)

// Error is the classification every I/O component hands back to the
// orchestrator. Status mirrors the HTTP status a caller would surface.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func Configuration(err error) *Error {
	return New(http.StatusInternalServerError, CodeConfiguration, err)
}

func NotAllowed(err error) *Error {
	return New(http.StatusTooManyRequests, CodeNotAllowed, err)
}

func Upstream(err error) *Error {
	return New(http.StatusServiceUnavailable, CodeUpstreamUnavailable, err)
}

func Decode(err error) *Error {
	return New(http.StatusUnprocessableEntity, CodeDecode, err)
}

// Render marks a canvas that decoded fine but could not be encoded.
func Render(err error) *Error {
	return New(http.StatusInternalServerError, CodeRender, err)
}

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Code
	}
	return ""
}

func Is(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// RequiresManualReview reports whether a fulfillment failure must halt the
// order for a human instead of being retried or messaged to the customer.
func RequiresManualReview(err error) bool {
	switch CodeOf(err) {
	case CodeDecode, CodeRender, CodeUpstreamUnavailable, CodeConfiguration:
		return true
	default:
		return false
	}
}
