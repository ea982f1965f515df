package models

import "time"

type QueueStatus string

const (
	QueueSearching QueueStatus = "searching"
	QueueReady     QueueStatus = "ready"
	QueueMatched   QueueStatus = "matched"
)

// QueueEntry is a player's presence in the matchmaking queue. There is at most
// one entry per player across all game modes.
type QueueEntry struct {
	ID            string      `json:"id" gorm:"primaryKey;type:uuid"`
	PlayerID      string      `json:"player_id" gorm:"type:uuid;not null;uniqueIndex"`
	GameMode      string      `json:"game_mode" gorm:"size:32;not null;index:idx_queue_mode_status"`
	MapPreference string      `json:"map_preference" gorm:"size:32;not null"`
	Status        QueueStatus `json:"status" gorm:"size:16;not null;index:idx_queue_mode_status"`
	QueueStart    time.Time   `json:"queue_start" gorm:"not null;index"`
	UpdatedAt     time.Time   `json:"updated_at"`

	Player *Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`
}
