package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ashtin/convo/src/chatsdk"
)

// APIError represents a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Code       string
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// ResultMessage returns the user-facing message for this error: the message
// extracted from the response body when one was present, else a status-coded
// fallback.
func (e *APIError) ResultMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("API error: %d", e.StatusCode)
}

// IsRateLimit returns true if this is a rate limit error.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == "invalid_api_key"
}

// parseAPIError builds an APIError from a failed response. Malformed bodies
// never fail: the message is simply left empty and ResultMessage falls back
// to the status code.
func parseAPIError(statusCode int, body []byte, requestID string) *APIError {
	apiErr := &APIError{
		StatusCode: statusCode,
		RequestID:  requestID,
	}

	var errResp chatsdk.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		apiErr.Type = errResp.Error.Type
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
	}

	return apiErr
}
