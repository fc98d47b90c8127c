package uid

import "github.com/google/uuid"

// New generates a random order identifier. It doubles as the transfer note
// buyers type into their bank app, so it must stay unique per order.
func New() string {
	return uuid.New().String()
}
