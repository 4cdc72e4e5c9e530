package pbsapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates a lookup matched nothing: no schedule for the
	// requested period, or no item for the code and schedule.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates the API rejected the subscription key.
	ErrUnauthorized = errors.New("unauthorized: invalid subscription key")

	// ErrMalformedRecord indicates a record the calculation depends on could
	// not be decoded.
	ErrMalformedRecord = errors.New("malformed record")
)

// StatusError is a non-2xx response from the schedule API.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pbs %s: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

// IsRateLimited reports whether err is a 429 from the schedule API.
func IsRateLimited(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests
}
