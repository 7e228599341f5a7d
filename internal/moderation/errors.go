package moderation

import "errors"

// Typed failures surfaced to the transport layer. Handlers map these onto
// HTTP status codes; anything else is treated as an internal error.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("a pending submission already exists for this subject")
	ErrAlreadyResolved = errors.New("already resolved")
	ErrIneligibleIP    = errors.New("ip address is not eligible for blocking")
	ErrNotFlagged      = errors.New("link is not flagged")
	ErrNotBlocked      = errors.New("ip address is not blocked")
	ErrInvalidStatus   = errors.New("resolution status must be approved or rejected")
)
