package mfasdk

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/mfagate/pkg/httpx"
)

// Error codes carried in the "error" member of a failed response.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeValidation          = "validation_error"
	ErrorCodeNotFound            = "not_found"
	ErrorCodeUnauthorized        = "unauthorized"
	ErrorCodeExpired             = "expired"
	ErrorCodeLocked              = "locked"
	ErrorCodeUpstreamUnavailable = "upstream_unavailable"
	ErrorCodeConflict            = "conflict"
	ErrorCodeInvalidState        = "invalid_state"
	ErrorCodeServerError         = "server_error"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeInsufficientScope   = "insufficient_scope"
)

// APIError is a failed response. The server writes it with WriteError and
// the client decodes it back from the body.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is reports whether target is an *APIError with the same code, so callers
// can write errors.Is(err, mfasdk.ErrLocked).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes the error as a JSON body with StatusCode.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            e.Code,
		ErrorDescription: e.Description,
	})
}

// WithDescription returns a copy carrying desc.
func (e *APIError) WithDescription(desc string) *APIError {
	c := *e
	c.Description = desc
	return &c
}

func NewAPIError(statusCode int, code, description string) *APIError {
	return &APIError{StatusCode: statusCode, Code: code, Description: description}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrValidation = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeValidation,
		Description: "validation failed for some fields",
	}

	ErrNotFound = &APIError{
		StatusCode:  http.StatusNotFound,
		Code:        ErrorCodeNotFound,
		Description: "not found",
	}

	ErrUnauthorized = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeUnauthorized,
		Description: "invalid credentials",
	}

	ErrExpired = &APIError{
		StatusCode:  http.StatusGone,
		Code:        ErrorCodeExpired,
		Description: "the pending activation has expired, start enrollment again",
	}

	// ErrLocked means too many failed attempts. Only an administrator
	// unlock or disabling MFA clears it.
	ErrLocked = &APIError{
		StatusCode:  http.StatusLocked,
		Code:        ErrorCodeLocked,
		Description: "mfa is locked after too many failed attempts",
	}

	ErrUpstreamUnavailable = &APIError{
		StatusCode:  http.StatusServiceUnavailable,
		Code:        ErrorCodeUpstreamUnavailable,
		Description: "the identity service is unavailable, retry later",
	}

	ErrConflict = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeConflict,
		Description: "conflict",
	}

	ErrInvalidState = &APIError{
		StatusCode:  http.StatusConflict,
		Code:        ErrorCodeInvalidState,
		Description: "operation not allowed in the current state",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing, invalid or expired",
	}

	ErrInsufficientScope = &APIError{
		StatusCode:  http.StatusForbidden,
		Code:        ErrorCodeInsufficientScope,
		Description: "the access token does not have the required scopes",
	}
)

// parseErrorResponse turns a non-2xx response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
		}
	}

	var valErr ValidationErrorResponse
	if err := json.Unmarshal(body, &valErr); err == nil && valErr.Code != "" {
		return &APIError{
			StatusCode:  resp.StatusCode,
			Code:        valErr.Code,
			Description: valErr.Message,
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
