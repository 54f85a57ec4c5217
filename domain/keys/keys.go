// Package keys defines the composite key scheme for the single-table layout.
//
// Every item in the table is addressed by a partition key of the form
// "<kind>|<id>". Two secondary indexes overlay relationships onto the same
// table: gsi1pk expresses a belongs-to relationship (tracker -> place,
// reading -> tracker, project -> user) and gsi2pk partitions items by kind
// so a whole entity class can be listed without a scan. The mutable "data"
// attribute doubles as the sort key of both indexes and encodes the
// lifecycle status of the item.
package keys

import (
	"fmt"
	"strings"
)

// Sep delimits the fields of every composite key and status token.
const Sep = "|"

// Entity kinds.
const (
	KindProject = "project"
	KindPlace   = "place"
	KindTracker = "tracker"
	KindReading = "reading"
	KindUser    = "user"
	KindOAuth   = "oauth"
	KindJWKS    = "jwks"

	// KindImportTimestamp marks the auxiliary time-bucket items written
	// alongside consumption readings for time-series lookups.
	KindImportTimestamp = "imp-ts"
)

// Lifecycle statuses. No status is a prefix of another, which keeps
// begins_with filtering on the data attribute unambiguous.
const (
	StatusActive   = "active"
	StatusCreated  = "created"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusArchived = "archived"
)

// Tracker subtypes.
const (
	TrackerGasMeter         = "gas-meter"
	TrackerElectricityMeter = "electricity-meter"
)

// Reading kinds and cycles.
const (
	ReadingConsumption = "consumption"
	ReadingAbsolute    = "absolute"

	CycleDaily   = "daily"
	CycleWeekly  = "weekly"
	CycleMonthly = "monthly"
	CycleYearly  = "yearly"
)

// ValidCycle reports whether c is a recognized consumption cycle.
func ValidCycle(c string) bool {
	switch c {
	case CycleDaily, CycleWeekly, CycleMonthly, CycleYearly:
		return true
	}
	return false
}

// PK builds the primary partition key for an entity: "<kind>|<id>".
func PK(kind, id string) string {
	return kind + Sep + id
}

// BelongsTo builds the gsi1pk value pointing at a parent entity. It is the
// parent's primary key, which lets the belongs-to index and point lookups
// share one vocabulary.
func BelongsTo(parentKind, parentID string) string {
	return parentKind + Sep + parentID
}

// TypePartition builds the gsi2pk value for an entity kind, optionally
// narrowed by a subtype: "type|<kind>[|<subtype>]".
func TypePartition(kind string, subtype ...string) string {
	parts := append([]string{"type", kind}, subtype...)
	return strings.Join(parts, Sep)
}

// Encode builds a status token: "<kind>|<status>[|<extra>...]". The extra
// fields carry per-kind metadata such as a reading's cycle and time key.
func Encode(kind, status string, extra ...string) string {
	parts := append([]string{kind, status}, extra...)
	return strings.Join(parts, Sep)
}

// Decode splits a status token into its kind, status and trailing fields.
// The trailing field count varies by kind (absolute readings omit the
// cycle), so callers must not assume a fixed length for extra.
func Decode(token string) (kind, status string, extra []string, err error) {
	parts := strings.Split(token, Sep)
	if len(parts) < 2 {
		return "", "", nil, fmt.Errorf("malformed status token %q", token)
	}
	return parts[0], parts[1], parts[2:], nil
}

// Status extracts just the lifecycle status from a token.
func Status(token string) string {
	_, status, _, err := Decode(token)
	if err != nil {
		return ""
	}
	return status
}

// BucketPK builds the partition key of a consumption time-bucket item:
// "<cycle>|<trackerID>|<start>|<end>".
func BucketPK(cycle, trackerID string, start, end int64) string {
	return fmt.Sprintf("%s%s%s%s%d%s%d", cycle, Sep, trackerID, Sep, start, Sep, end)
}

// BucketData builds the data attribute of a time-bucket item: "imp-ts|<start>".
func BucketData(start int64) string {
	return fmt.Sprintf("%s%s%d", KindImportTimestamp, Sep, start)
}
