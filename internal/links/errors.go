package links

import (
	"errors"
	"fmt"

	"github.com/openshorten/openshorten/internal/safety"
)

var (
	ErrNotFound      = errors.New("link not found")
	ErrInvalidURL    = errors.New("invalid url")
	ErrURLTooLong    = errors.New("url exceeds the maximum length")
	ErrForbidden     = errors.New("not the owner of this link")
	ErrCodeExhausted = errors.New("could not allocate a free short code")
)

// UnsafeURLError rejects a shorten request whose URL scored into the unsafe
// band. It carries the assessment so the caller can explain the rejection.
type UnsafeURLError struct {
	Assessment safety.Assessment
}

func (e *UnsafeURLError) Error() string {
	return fmt.Sprintf("url flagged as potentially malicious: %s", e.Assessment.Reason)
}
