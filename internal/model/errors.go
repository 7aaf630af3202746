// Package model holds the domain types shared by the extraction, clustering,
// proposal and access packages, plus the error taxonomy they report with.
package model

import "errors"

// Error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") and test with
// errors.Is; the HTTP layer maps them onto status codes.
var (
	// ErrValidation marks input rejected before any effect took place.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks an unknown keyword, conversation, subject or principal.
	ErrNotFound = errors.New("not found")
	// ErrExternal marks a failure of the store or the text-generation capability.
	ErrExternal = errors.New("external capability error")
)
