package export

import "errors"

// Domain errors for the export package.
var (
	// ErrInvalidRule is returned when a persistence rule fails validation.
	ErrInvalidRule = errors.New("export: invalid rule")

	// ErrDuplicateRule is returned when a rule set holds two rules with the same ID.
	ErrDuplicateRule = errors.New("export: duplicate rule id")

	// ErrClosed is returned by Record after the collector has been closed.
	ErrClosed = errors.New("export: collector closed")

	// ErrMissingDependency is returned by NewCollector when a required
	// collaborator is nil.
	ErrMissingDependency = errors.New("export: missing dependency")
)
