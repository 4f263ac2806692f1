package utils

import (
	"github.com/google/uuid"
)

// NewImageID returns a random identifier for an uploaded image.
func NewImageID() string {
	return uuid.New().String()
}

// ValidImageID reports whether id looks like something NewImageID produced.
// Ids are used as file names, so anything else is rejected before touching disk.
func ValidImageID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
