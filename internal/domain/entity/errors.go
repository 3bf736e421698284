package entity

import "errors"

// Caller-facing error taxonomy. The HTTP port maps these to status codes;
// infrastructure failures are wrapped into ErrUnavailable before they leave
// the service layer.
var (
	ErrValidationFailed    = errors.New("validation failed")
	ErrAdmissionDenied     = errors.New("creation rate limit reached")
	ErrInvalidTransition   = errors.New("invalid listing transition")
	ErrInvalidState        = errors.New("operation not valid in current state")
	ErrNotAuthorized       = errors.New("actor not authorized for this action")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateOffer      = errors.New("an open offer from this buyer already exists")
	ErrSelfOfferNotAllowed = errors.New("cannot make an offer on your own listing")
	ErrUnavailable         = errors.New("service temporarily unavailable")
)
