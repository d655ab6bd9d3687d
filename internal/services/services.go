// package services implements HTTP clients for the Spotify Web API and for the shelves server
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/shelves/internal/shared"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx response from Spotify or the shelves server.
type APIError struct {
	StatusCode int
	Reason     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("API error: status %d (%s): %s", e.StatusCode, e.Reason, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("API error: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: status %d", e.StatusCode)
}

// Unwrap maps well-known statuses to sentinel errors so callers can use [errors.Is].
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized:
		return shared.ErrNotAuthenticated
	case http.StatusServiceUnavailable, http.StatusBadGateway:
		return shared.ErrServiceUnavailable
	default:
		return shared.ErrAPIRequest
	}
}

// StatusOf extracts the HTTP status from an [APIError], or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// errorBody covers both Spotify's {"error":{"status","message","reason"}} and the server's {"error":"..."}.
type errorBody struct {
	Error json.RawMessage `json:"error"`
}

type spotifyError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || len(eb.Error) == 0 {
		return apiErr
	}

	var se spotifyError
	if err := json.Unmarshal(eb.Error, &se); err == nil {
		apiErr.Message, apiErr.Reason = se.Message, se.Reason
		return apiErr
	}

	var msg string
	if err := json.Unmarshal(eb.Error, &msg); err == nil {
		apiErr.Message = msg
	}
	return apiErr
}

// request describes one JSON call made through [doJSON].
type request struct {
	method  string
	url     string
	body    any
	result  any
	bearer  string
	cookies []*http.Cookie
}

// doJSON performs req and decodes a 2xx body into req.result.
//
// Returns the status code even on API errors so callers can act on specific codes (e.g. 204 on transfer).
func doJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, req request) (int, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var reader io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	for _, c := range req.cookies {
		httpReq.AddCookie(c)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, parseAPIError(resp.StatusCode, body)
	}

	if req.result != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, req.result); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: failed to decode response: %v", shared.ErrInvalidPayload, err)
		}
	}

	return resp.StatusCode, nil
}

// newLimiter returns a limiter for rps requests per second, or nil for unlimited.
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := max(int(rps), 1)
	return rate.NewLimiter(rate.Limit(rps), burst)
}
