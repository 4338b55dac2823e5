package backend

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ashureev/careportal/internal/domain"
	"github.com/tidwall/gjson"
)

// ErrMalformedResponse is wrapped when a 2xx body cannot be decoded.
var ErrMalformedResponse = errors.New("malformed response")

// ErrResponseTooLarge is wrapped when a response exceeds the client's limit.
var ErrResponseTooLarge = errors.New("response too large")

// APIError is a non-2xx backend response.
type APIError struct {
	StatusCode int
	// Detail is the backend's single message, empty when none could be decoded.
	Detail string
	// Fields holds per-field validation failures (422 responses).
	Fields []domain.FieldError
	Body   []byte
}

func (e *APIError) Error() string {
	switch {
	case len(e.Fields) > 0:
		return fmt.Sprintf("backend status %d: %d field error(s)", e.StatusCode, len(e.Fields))
	case e.Detail != "":
		return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Detail)
	default:
		return fmt.Sprintf("backend status %d", e.StatusCode)
	}
}

// Is lets errors.Is(err, domain.ErrUnauthorized) match a 401.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// IsValidation reports whether the backend rejected the payload field by field.
func (e *APIError) IsValidation() bool {
	return e.StatusCode == http.StatusUnprocessableEntity && len(e.Fields) > 0
}

// TransportError means the request never produced a usable response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransport reports whether err is a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// decodeError reads a FastAPI-style error body. "detail" is either a string
// or a list of {loc, msg} entries; "message" and "error" are accepted as
// single-message fallbacks.
func decodeError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: body}
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return apiErr
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		apiErr.Detail = detail.String()
	case detail.IsArray():
		detail.ForEach(func(_, item gjson.Result) bool {
			apiErr.Fields = append(apiErr.Fields, fieldErrorFrom(item))
			return true
		})
	case detail.IsObject():
		apiErr.Fields = append(apiErr.Fields, fieldErrorFrom(detail))
	}

	if apiErr.Detail == "" && len(apiErr.Fields) == 0 {
		for _, key := range []string{"message", "error"} {
			if v := gjson.GetBytes(body, key); v.Type == gjson.String {
				apiErr.Detail = v.String()
				break
			}
		}
	}
	return apiErr
}

// fieldErrorFrom names the field by the last element of loc, e.g.
// ["body", "clt_first_name"] -> clt_first_name.
func fieldErrorFrom(item gjson.Result) domain.FieldError {
	fe := domain.FieldError{Message: item.Get("msg").String()}
	if fe.Message == "" {
		fe.Message = item.Get("message").String()
	}
	if loc := item.Get("loc"); loc.IsArray() {
		parts := loc.Array()
		if len(parts) > 0 {
			fe.Field = parts[len(parts)-1].String()
		}
	} else if f := item.Get("field"); f.Exists() {
		fe.Field = f.String()
	}
	return fe
}
