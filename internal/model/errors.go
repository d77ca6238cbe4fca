package model

import "errors"

var (
	ErrInvalidQuery        = errors.New("invalid query")
	ErrInvalid             = errors.New("invalid input")
	ErrQuotaExceeded       = errors.New("provider quota exceeded")
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrProviderRejected    = errors.New("provider rejected request")
	ErrProviderOverQuota   = errors.New("provider over query limit")
	ErrProviderFailed      = errors.New("provider failed")
	ErrNoResultsFound      = errors.New("no results found")
	ErrDisallowed          = errors.New("content not allowed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrSelfReport          = errors.New("cannot report own review")
	ErrAlreadyReported     = errors.New("review already reported")
)
