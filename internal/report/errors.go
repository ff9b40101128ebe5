package report

import (
	"errors"
)

// ErrRateLimited is returned when GitHub rejects a request with a rate limit.
var ErrRateLimited = errors.New("GitHub API rate limit exceeded. Please try again later.")

// APIError is a non-success GitHub response that is not a rate limit.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}
