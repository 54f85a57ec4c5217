package entities

import (
	"time"

	"github.com/google/uuid"

	"meterhub-backend/domain/keys"
)

// Place is a root entity owned by a user; trackers attach to places.
// Reading ingestion maintains aggregate counters directly on the place item.
type Place struct {
	ID       string
	UserID   string
	Name     string
	Position string
	ImageURL string
	Status   string
	Created  int64

	// Aggregate counters, incremented transactionally during ingestion.
	ConsumptionReadingCount int64
	AbsoluteReadingCount    int64
}

// NewPlace creates a place in the "created" state.
func NewPlace(userID, name, position, imageURL string) *Place {
	return &Place{
		ID:       uuid.New().String(),
		UserID:   userID,
		Name:     name,
		Position: position,
		ImageURL: imageURL,
		Status:   keys.StatusCreated,
		Created:  time.Now().UnixMilli(),
	}
}
