// Package auth issues and verifies the bearer tokens of the admin API.
//
// Tokens are HS256 JWTs signed with the configured secret. There is no user
// database: operators mint tokens with the command line and the role inside
// the token decides what the holder may do.
//
//	viewer: read rules, import definitions and status
//	admin:  viewer plus change configuration and trigger polls
package auth
