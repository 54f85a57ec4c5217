package entities

import (
	"meterhub-backend/domain/keys"
)

// ReadingInput is one element of an ingestion batch before validation.
// Pointer fields distinguish absent from zero: a consumption reading must
// carry cycle, value, start and end; an absolute reading carries none of
// them. Anything else is malformed and silently dropped by ingestion.
type ReadingInput struct {
	ID    string
	Type  string // consumption | absolute
	Cycle string
	Value *float64
	Start *int64
	End   *int64
	IV    string
}

// ValidConsumption reports whether the input is a well-formed consumption
// reading.
func (r ReadingInput) ValidConsumption() bool {
	return r.Type == keys.ReadingConsumption &&
		keys.ValidCycle(r.Cycle) &&
		r.Value != nil && r.Start != nil && r.End != nil
}

// ValidAbsolute reports whether the input is a well-formed absolute reading.
func (r ReadingInput) ValidAbsolute() bool {
	return r.Type == keys.ReadingAbsolute
}

// TimeKey derives the reading's identity/time key: the start bound for
// consumption readings, the ingestion timestamp for absolute ones.
func (r ReadingInput) TimeKey(ingestedAt int64) int64 {
	if r.Type == keys.ReadingConsumption && r.Start != nil {
		return *r.Start
	}
	return ingestedAt
}

// Reading is a persisted meter reading, child of a tracker.
type Reading struct {
	ID        string
	TrackerID string
	OwnerID   string
	Type      string
	Cycle     string
	Value     *float64
	Start     *int64
	End       *int64
	IV        string
	Status    string
	Created   int64
}
