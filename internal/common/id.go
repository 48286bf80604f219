package common

import (
	"github.com/google/uuid"
)

// NewJobID generates a unique backup job ID
func NewJobID() string {
	return uuid.New().String()
}

// NewEventID generates a unique error event ID with the "evt_" prefix
// Format: evt_<uuid>
func NewEventID() string {
	return "evt_" + uuid.New().String()
}
