package models

import "time"

// Timestamps adds GORM auto-times. Rows in this schema are hard-deleted, so
// there is no DeletedAt: partial unique indexes must not see tombstones.
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// All returns every model owned by this service, in migration order.
func All() []interface{} {
	return []interface{}{
		&Player{},
		&Team{},
		&TeamMembership{},
		&TeamJoinRequest{},
		&QueueEntry{},
	}
}
