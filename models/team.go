package models

import "time"

// MaxRosterSize is the fixed team capacity.
const MaxRosterSize = 5

// Role tags. RoleCaptain is the only role that authorizes captain actions.
const (
	RoleCaptain = "IGL"
	RoleEntry   = "Entry"
	RoleAWPer   = "AWPer"
	RoleSupport = "Support"
	RoleLurker  = "Lurker"
	RoleRifler  = "Rifler"
)

// KnownRoles lists the canonical spelling of the common role tags. Other
// free-form roles are accepted as given.
var KnownRoles = []string{RoleCaptain, RoleEntry, RoleAWPer, RoleSupport, RoleLurker, RoleRifler}

type Team struct {
	ID          string  `json:"id" gorm:"primaryKey;type:uuid"`
	Name        string  `json:"name" gorm:"not null"`
	Slug        string  `json:"slug" gorm:"index"`
	Tag         string  `json:"tag" gorm:"size:8;not null"`
	Description *string `json:"description,omitempty" gorm:"type:text"`
	Region      *string `json:"region,omitempty"`
	LogoURL     *string `json:"logo_url,omitempty"`
	CoverURL    *string `json:"cover_url,omitempty"`

	Rating int `json:"rating" gorm:"not null;default:1000;index"`
	Wins   int `json:"wins" gorm:"not null;default:0"`
	Losses int `json:"losses" gorm:"not null;default:0"`

	// No gorm default here: a default would swallow an explicit false on insert.
	IsRecruiting bool `json:"is_recruiting" gorm:"not null;index"`

	Timestamps

	Members []TeamMembership `json:"members,omitempty" gorm:"foreignKey:TeamID"`
}

// TeamMembership is the join row between a team and a player.
// player_id is unique: a player is on at most one team. The partial unique
// index on team_id keeps a single IGL per team.
type TeamMembership struct {
	ID       string    `json:"id" gorm:"primaryKey;type:uuid"`
	TeamID   string    `json:"team_id" gorm:"type:uuid;not null;index;uniqueIndex:idx_team_single_captain,where:role = 'IGL'"`
	PlayerID string    `json:"player_id" gorm:"type:uuid;not null;uniqueIndex"`
	Role     string    `json:"role" gorm:"size:32;not null"`
	JoinedAt time.Time `json:"joined_at" gorm:"not null"`

	Player *Player `json:"player,omitempty" gorm:"foreignKey:PlayerID"`
}

// IsCaptain reports whether the membership carries the captain role.
func (m *TeamMembership) IsCaptain() bool {
	return m != nil && m.Role == RoleCaptain
}
