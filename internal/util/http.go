package util

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
	Body       string // first bytes of the response body, for context
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status '%s' fetching %s: %s", e.Status, e.URL, e.Body)
}

// Throttled reports whether the publisher is likely rate limiting or blocking us.
func (e *StatusError) Throttled() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusForbidden:
		return true
	}
	return false
}

// StreamFile executes a pre-built HTTP request and copies the body into w.
// It handles response closing and non-200 status codes.
// The caller is responsible for creating the request (including context and headers).
func StreamFile(client *http.Client, req *http.Request, w io.Writer) (int64, error) {
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read some of the body for context on error
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, &StatusError{
			URL:        req.URL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bodyBytes),
		}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed reading body from %s: %w", req.URL.String(), err)
	}
	return n, nil
}

// DefaultHTTPClient creates an http.Client with the given timeout, or 120s when zero.
func DefaultHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
