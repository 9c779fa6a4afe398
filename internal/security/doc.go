// Package security derives the engine's security posture summary from its
// resolved settings.
package security
