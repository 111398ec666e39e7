package iio

import "errors"

// Error kinds. Every failure returned by this module wraps one of these so
// callers can classify it with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrParse          = errors.New("parse failure")
	ErrWriteRejected  = errors.New("write rejected")
	ErrState          = errors.New("invalid state")
	ErrResource       = errors.New("resource unavailable")
	ErrNotImplemented = errors.New("not implemented")
)
