// Package httpx wraps outbound HTTP calls with timeout, retry and
// exponential backoff, and classifies failures so that transient errors
// never surface as raw transport exceptions.
package httpx

import "fmt"

// HTTPError is a non-success HTTP response. 4xx statuses other than 429 are
// terminal: the request was understood and rejected, so retrying is pointless.
type HTTPError struct {
	Status int
	Body   string
	URL    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d from %s: %s", e.Status, e.URL, e.Body)
}

// ExhaustedError indicates the retry budget was spent. Last holds the final
// observed failure.
type ExhaustedError struct {
	Service  string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("[%s] request failed after %d attempts: %v", e.Service, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// retryableStatus reports whether a status code is worth retrying.
// 429 and all 5xx are transient; everything else in [400,500) is terminal.
func retryableStatus(status int) bool {
	return status == 429 || (status >= 500 && status < 600)
}
