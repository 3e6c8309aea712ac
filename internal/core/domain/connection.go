package domain

import "time"

// Signal identifies one contributing factor to a connection's strength.
type Signal string

// Connection signals.
const (
	SignalSimilarity   Signal = "similarity"
	SignalSharedEntity Signal = "shared-entity"
	SignalTemporal     Signal = "temporal"
)

// Connection is a scored, typed relationship between two items.
// Connections are symmetric: creating A->B makes B->A queryable.
// They are created only by connection discovery and replaced (not
// accumulated) when an item is reprocessed.
type Connection struct {
	// SourceID is the item the discovery run was triggered for.
	SourceID string

	// TargetID is the related item.
	TargetID string

	// Strength is the combined score in [0,1].
	Strength float64

	// Signals maps each contributing signal to its normalised value
	// in [0,1]. Absent signals contributed nothing.
	Signals map[Signal]float64

	// CreatedAt is when the connection was discovered.
	CreatedAt time.Time
}
