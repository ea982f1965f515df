package models

type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestAccepted JoinRequestStatus = "accepted"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// TeamJoinRequest is a player's ask to join a team. A pending request is
// resolved exactly once by the team's captain and is immutable afterwards.
type TeamJoinRequest struct {
	ID       string            `json:"id" gorm:"primaryKey;type:uuid"`
	TeamID   string            `json:"team_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_join_request_pending,where:status = 'pending'"`
	PlayerID string            `json:"player_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_join_request_pending,where:status = 'pending'"`
	Status   JoinRequestStatus `json:"status" gorm:"size:16;not null;index"`
	Message  *string           `json:"message,omitempty" gorm:"type:text"`

	Timestamps

	Player *Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`
	Team   *Team   `json:"team,omitempty" gorm:"foreignKey:TeamID"`
}
