package types

import "time"

// Entity carries the creation and modification timestamps embedded in every
// stored record.
type Entity struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewEntity stamps both timestamps with at, normalized to UTC.
func NewEntity(at time.Time) Entity {
	at = at.UTC()
	return Entity{CreatedAt: at, UpdatedAt: at}
}

// Touch sets UpdatedAt to at.
func (e *Entity) Touch(at time.Time) {
	e.UpdatedAt = at.UTC()
}
