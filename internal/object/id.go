package object

import "github.com/google/uuid"

// NewID generates a new random object/message/frame id.
func NewID() string {
	return uuid.NewString()
}
