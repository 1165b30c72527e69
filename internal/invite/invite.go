// Package invite generates the short human-shareable codes that identify a
// community. Codes are not guaranteed unique here; the directory checks for
// collisions and retries.
package invite

import "huddle/api/internal/util"

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 6
)

// Generate returns a 6-character code drawn from [A-Z0-9].
func Generate() string {
	return util.RandomFrom(alphabet, length)
}
