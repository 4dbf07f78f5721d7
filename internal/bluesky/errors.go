package bluesky

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// APIError is an XRPC error response.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("[%d] %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Code)
}

// Expired reports whether the access token has expired.
func (e *APIError) Expired() bool {
	return e.Code == "ExpiredToken"
}

func parseError(resp *resty.Response) error {
	apiErr, ok := resp.Error().(*APIError)
	if !ok || apiErr == nil || apiErr.Code == "" {
		return &APIError{
			StatusCode: resp.StatusCode(),
			Code:       http.StatusText(resp.StatusCode()),
			Message:    string(resp.Body()),
		}
	}
	apiErr.StatusCode = resp.StatusCode()
	return apiErr
}

// IsAuthError reports whether err means the session is missing or invalid.
func IsAuthError(err error) bool {
	if errors.Is(err, ErrNotAuthenticated) {
		return true
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "AuthenticationRequired", "ExpiredToken", "InvalidToken", "AuthMissing":
		return true
	}
	return apiErr.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether err means the requested record or actor does not exist.
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "NotFound", "RecordNotFound", "ActorNotFound", "UnknownFeed", "UnknownList":
		return true
	}
	return apiErr.StatusCode == http.StatusNotFound
}
