// Package jwt issues and verifies signed access tokens carrying a subject and
// a role. Decoding collapses every failure into [ErrInvalid].
package jwt
