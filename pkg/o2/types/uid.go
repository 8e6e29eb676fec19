package types

import "github.com/google/uuid"

// UID is a random identifier for a single message/request. Clock sync does
// not use it; its samples carry their own uint32 serial numbers.
type UID string

// NewUID generates a fresh random UID.
func NewUID() UID {
	return UID(uuid.NewString())
}
