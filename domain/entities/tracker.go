package entities

import (
	"time"

	"github.com/google/uuid"

	"meterhub-backend/domain/keys"
)

// UtilityAccount links a tracker to an external utility provider. The
// attributes are independently settable and removable.
type UtilityAccount struct {
	Provider      string
	AccountNumber string
	MeterNumber   string
}

// Tracker is a meter attached to a place. The meter type is embedded in the
// tracker's status token and type partition. Ingestion maintains per-type,
// per-cycle counters and running totals on the tracker item.
type Tracker struct {
	ID      string
	PlaceID string
	OwnerID string
	Type    string // gas-meter | electricity-meter
	Status  string
	Created int64

	Utility *UtilityAccount

	ConsumptionReadingCount int64
	AbsoluteReadingCount    int64
	CycleCounts             map[string]int64   // consumption<Cycle>ReadingCount
	CycleTotals             map[string]float64 // consumption<Cycle>ReadingTotal
}

// NewTracker creates an active tracker for a place.
func NewTracker(placeID, ownerID, meterType string) *Tracker {
	return &Tracker{
		ID:      uuid.New().String(),
		PlaceID: placeID,
		OwnerID: ownerID,
		Type:    meterType,
		Status:  keys.StatusActive,
		Created: time.Now().UnixMilli(),
	}
}

// ValidTrackerType reports whether t is a supported meter type.
func ValidTrackerType(t string) bool {
	return t == keys.TrackerGasMeter || t == keys.TrackerElectricityMeter
}
