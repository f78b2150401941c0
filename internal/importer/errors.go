package importer

import "errors"

// Domain errors for the importer package.
var (
	// ErrInvalidDefinition is returned when an import definition fails validation.
	ErrInvalidDefinition = errors.New("importer: invalid definition")

	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("importer: missing dependency")
)
