package host

import "errors"

var (
	// ErrInvalidPayload is returned by message handlers for undecodable payloads.
	ErrInvalidPayload = errors.New("host: invalid payload")

	// ErrInvalidTopic is returned when a topic does not carry a device id.
	ErrInvalidTopic = errors.New("host: unexpected topic")

	// ErrMissingDependency is returned by New when a collaborator is nil.
	ErrMissingDependency = errors.New("host: missing dependency")
)
