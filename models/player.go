package models

// DefaultRating is the starting rating for players and teams.
const DefaultRating = 1000

// Player is the local profile of an authenticated user.
type Player struct {
	ID              string  `json:"id" gorm:"primaryKey;type:uuid"`
	AuthID          string  `json:"auth_id" gorm:"uniqueIndex;not null"`
	SteamID         *string `json:"steam_id,omitempty" gorm:"index"`
	Nickname        string  `json:"nickname" gorm:"not null"` // not unique
	AvatarURL       *string `json:"avatar_url,omitempty"`
	ProfileCoverURL *string `json:"profile_cover_url,omitempty"`
	City            *string `json:"city,omitempty"`

	Rating        int `json:"rating" gorm:"not null;default:1000;index"`
	MatchesPlayed int `json:"matches_played" gorm:"not null;default:0"`
	MatchesWon    int `json:"matches_won" gorm:"not null;default:0"`
	MatchesLost   int `json:"matches_lost" gorm:"not null;default:0"`

	// TeamID is set iff a TeamMembership row exists for this player.
	TeamID *string `json:"team_id,omitempty" gorm:"type:uuid;index"`

	Timestamps
}
