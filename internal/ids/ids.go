// Package ids generates storage identifiers.
package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable ULID. Identifiers minted in the
// same millisecond stay ordered.
func New() string {
	return ulid.Make().String()
}
