package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/neighborwatch/internal/common"
)

// CodeNoRows is the PostgREST code for a single-object request matching no rows.
const CodeNoRows = "PGRST116"

// AuthError is a failure reported by the auth service.
type AuthError struct {
	Message string
	Status  int
	Code    string
}

func (e *AuthError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: %s (status %d, code %s)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("auth: %s (status %d)", e.Message, e.Status)
}

// Unwrap lets errors.Is(err, common.ErrUnauthorized) match 401/403.
func (e *AuthError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return common.ErrUnauthorized
	}
	return nil
}

// APIError is a failure reported by the data API.
type APIError struct {
	Code    string
	Message string
	Details string
	Hint    string
	Status  int
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("data: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("data: %s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Code == CodeNoRows:
		return common.ErrNotFound
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		return common.ErrUnauthorized
	}
	return nil
}

// IsNotFound reports whether err means a single-row request matched nothing.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeNoRows
}

// transportError marks a request that never got an HTTP answer.
func transportError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, common.ErrUnavailable, err)
}

func decodeAuthError(status int, body []byte) *AuthError {
	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	e := &AuthError{Status: status}
	for _, k := range []string{"msg", "error_description", "message", "error"} {
		if s, ok := raw[k].(string); ok && s != "" {
			e.Message = s
			break
		}
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	for _, k := range []string{"error_code", "code"} {
		switch v := raw[k].(type) {
		case string:
			e.Code = v
		case float64:
			e.Code = strconv.Itoa(int(v))
		}
		if e.Code != "" {
			break
		}
	}
	return e
}

func decodeAPIError(status int, body []byte) *APIError {
	var raw struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
		Hint    string `json:"hint"`
	}
	_ = json.Unmarshal(body, &raw)

	e := &APIError{
		Code:    raw.Code,
		Message: raw.Message,
		Details: raw.Details,
		Hint:    raw.Hint,
		Status:  status,
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}
