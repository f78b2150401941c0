// Package logging builds the bridge's structured logger on log/slog.
//
// Every entry carries service and version. Components narrow the process
// logger with Component so entries can be filtered per subsystem:
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json or text
//	  output: stdout   # stdout or stderr
//
// Store passwords, API tokens and the JWT secret are never logged.
package logging
