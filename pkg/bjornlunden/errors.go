package bjornlunden

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrMissingUserKey is returned by tenant-scoped calls when no user key is configured.
var ErrMissingUserKey = errors.New("user key is required for this endpoint")

// APIError is returned when the API answers with a non-200 status.
type APIError struct {
	Op         string // e.g. "list accounts"
	ID         string // identifying parameter, if any
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("bjornlunden: %s failed (status %d)", e.Op, e.StatusCode)
	if e.ID != "" {
		msg = fmt.Sprintf("bjornlunden: %s %q failed (status %d)", e.Op, e.ID, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// newAPIError builds an APIError from an error response body.
func newAPIError(op, id string, status int, body []byte) *APIError {
	apiErr := &APIError{Op: op, ID: id, StatusCode: status}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.ErrorDescription != "":
			apiErr.Message = fmt.Sprintf("%s - %s", errResp.Error, errResp.ErrorDescription)
		case errResp.Message != "":
			apiErr.Message = errResp.Message
		default:
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	if len(body) > 0 && len(body) <= 512 {
		apiErr.Message = string(body)
	}
	return apiErr
}

// retryable reports whether a status code is worth another attempt.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

const maxRetryDelay = 30 * time.Second

// retryDelay doubles base for every previous attempt, capped at maxRetryDelay.
func retryDelay(base time.Duration, attempt int) time.Duration {
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) (time.Duration, bool) {
	if resp == nil {
		return 0, false
	}
	seconds, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || seconds < 0 {
		return 0, false
	}
	d := time.Duration(seconds) * time.Second
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d, true
}
