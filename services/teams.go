package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"squad-hub/models"
	"squad-hub/realtime"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/gosimple/unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
)

const (
	maxTagLength     = 8
	maxTeamNameRunes = 64
	maxRoleRunes     = 32
)

// TeamService owns team creation, roster changes and captaincy.
type TeamService struct {
	DB     *gorm.DB
	Bridge realtime.Bridge
	Log    *slog.Logger
	Now    Clock
}

func NewTeamService(db *gorm.DB, bridge realtime.Bridge, logger *slog.Logger) *TeamService {
	return &TeamService{DB: db, Bridge: bridge, Log: logger, Now: systemClock}
}

type CreateTeamInput struct {
	Name        string  `json:"name"`
	Tag         string  `json:"tag"`
	Region      *string `json:"region,omitempty"`
	Description *string `json:"description,omitempty"`
}

// TeamPatch lists the captain-editable fields; nil means unchanged.
type TeamPatch struct {
	Name         *string `json:"name,omitempty"`
	Tag          *string `json:"tag,omitempty"`
	Description  *string `json:"description,omitempty"`
	Region       *string `json:"region,omitempty"`
	LogoURL      *string `json:"logo_url,omitempty"`
	CoverURL     *string `json:"cover_url,omitempty"`
	IsRecruiting *bool   `json:"is_recruiting,omitempty"`
}

// CreateTeam creates a team with requester as its captain. The team row, the
// captain membership and the requester's team reference commit together.
func (s *TeamService) CreateTeam(ctx context.Context, requester *models.Player, in CreateTeamInput) (*models.Team, error) {
	if err := requirePlayer(requester); err != nil {
		return nil, err
	}
	name, err := normalizeTeamName(in.Name)
	if err != nil {
		return nil, err
	}
	tag, err := normalizeTag(in.Tag)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	team := &models.Team{
		ID:           uuid.NewString(),
		Name:         name,
		Slug:         slug.Make(name),
		Tag:          tag,
		Description:  trimmedOrNil(in.Description),
		Region:       trimmedOrNil(in.Region),
		Rating:       models.DefaultRating,
		IsRecruiting: true,
	}
	team.CreatedAt, team.UpdatedAt = now, now

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		player, err := lockPlayer(tx, requester.ID)
		if err != nil {
			return err
		}
		if player.TeamID != nil {
			return ErrAlreadyOnTeam
		}
		if err := tx.Create(team).Error; err != nil {
			return err
		}
		captain := models.TeamMembership{
			ID:       uuid.NewString(),
			TeamID:   team.ID,
			PlayerID: player.ID,
			Role:     models.RoleCaptain,
			JoinedAt: now,
		}
		if err := tx.Create(&captain).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyOnTeam
			}
			return err
		}
		team.Members = []models.TeamMembership{captain}
		return tx.Model(&models.Player{}).Where("id = ?", player.ID).
			Updates(map[string]interface{}{"team_id": team.ID, "updated_at": now}).Error
	})
	if err != nil {
		return nil, failed(s.Log, "create team", err, slog.String("player_id", requester.ID))
	}

	requester.TeamID = &team.ID
	s.Log.Info("team created", slog.String("team_id", team.ID), slog.String("tag", team.Tag), slog.String("captain_id", requester.ID))
	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(team.ID))
	return team, nil
}

// UpdateTeam applies a captain's patch. Reopening recruiting on a full team
// fails with ErrTeamFull, so is_recruiting never claims a free slot that
// does not exist.
func (s *TeamService) UpdateTeam(ctx context.Context, teamID string, requester *models.Player, patch TeamPatch) (*models.Team, error) {
	if err := requirePlayer(requester); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if patch.Name != nil {
		name, err := normalizeTeamName(*patch.Name)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
		updates["slug"] = slug.Make(name)
	}
	if patch.Tag != nil {
		tag, err := normalizeTag(*patch.Tag)
		if err != nil {
			return nil, err
		}
		updates["tag"] = tag
	}
	if patch.Description != nil {
		updates["description"] = trimmedOrNil(patch.Description)
	}
	if patch.Region != nil {
		updates["region"] = trimmedOrNil(patch.Region)
	}
	if patch.LogoURL != nil {
		updates["logo_url"] = trimmedOrNil(patch.LogoURL)
	}
	if patch.CoverURL != nil {
		updates["cover_url"] = trimmedOrNil(patch.CoverURL)
	}
	if patch.IsRecruiting != nil {
		updates["is_recruiting"] = *patch.IsRecruiting
	}
	updates["updated_at"] = s.Now()

	var team *models.Team
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if team, err = lockTeam(tx, teamID); err != nil {
			return err
		}
		if _, err := requireCaptain(tx, teamID, requester.ID); err != nil {
			return err
		}
		if patch.IsRecruiting != nil && *patch.IsRecruiting {
			n, err := countMembers(tx, teamID)
			if err != nil {
				return err
			}
			if n >= models.MaxRosterSize {
				return ErrTeamFull
			}
		}
		if err := tx.Model(&models.Team{}).Where("id = ?", teamID).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", teamID).First(team).Error
	})
	if err != nil {
		return nil, failed(s.Log, "update team", err, slog.String("team_id", teamID))
	}

	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID))
	return team, nil
}

// UpdateMemberRole sets a member's combat role. The IGL role is not
// assignable here and the captain's own role is fixed: captaincy only moves
// through TransferCaptaincy, which keeps exactly one IGL per team.
func (s *TeamService) UpdateMemberRole(ctx context.Context, teamID string, requester *models.Player, memberID, newRole string) (*models.TeamMembership, error) {
	if err := requirePlayer(requester); err != nil {
		return nil, err
	}
	role, err := normalizeRole(newRole)
	if err != nil {
		return nil, err
	}

	var member *models.TeamMembership
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockTeam(tx, teamID); err != nil {
			return err
		}
		if _, err := requireCaptain(tx, teamID, requester.ID); err != nil {
			return err
		}
		if role == models.RoleCaptain || memberID == requester.ID {
			return ErrCaptaincyViaTransfer
		}
		var err error
		if member, err = membershipOf(tx, teamID, memberID); err != nil {
			return err
		}
		member.Role = role
		return tx.Model(&models.TeamMembership{}).Where("id = ?", member.ID).Update("role", role).Error
	})
	if err != nil {
		return nil, failed(s.Log, "update member role", err, slog.String("team_id", teamID), slog.String("member_id", memberID))
	}

	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID))
	return member, nil
}

// RemoveMember drops a member from the roster. Removal always frees a slot,
// so the team is marked recruiting.
func (s *TeamService) RemoveMember(ctx context.Context, teamID string, requester *models.Player, memberID string) error {
	if err := requirePlayer(requester); err != nil {
		return err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockTeam(tx, teamID); err != nil {
			return err
		}
		if _, err := requireCaptain(tx, teamID, requester.ID); err != nil {
			return err
		}
		if memberID == requester.ID {
			return ErrCannotRemoveSelf
		}
		return s.detachMember(tx, teamID, memberID)
	})
	if err != nil {
		return failed(s.Log, "remove member", err, slog.String("team_id", teamID), slog.String("member_id", memberID))
	}

	s.Log.Info("member removed", slog.String("team_id", teamID), slog.String("member_id", memberID))
	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID))
	return nil
}

// LeaveTeam lets a member walk away. The captain never leaves: captaincy has
// to be transferred first, and a lone captain keeps the team.
func (s *TeamService) LeaveTeam(ctx context.Context, teamID string, requester *models.Player) error {
	if err := requirePlayer(requester); err != nil {
		return err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockTeam(tx, teamID); err != nil {
			return err
		}
		m, err := membershipOf(tx, teamID, requester.ID)
		if err != nil {
			return err
		}
		if m.IsCaptain() {
			return ErrCaptainMustTransfer
		}
		return s.detachMember(tx, teamID, requester.ID)
	})
	if err != nil {
		return failed(s.Log, "leave team", err, slog.String("team_id", teamID), slog.String("player_id", requester.ID))
	}

	requester.TeamID = nil
	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID))
	return nil
}

func (s *TeamService) detachMember(tx *gorm.DB, teamID, memberID string) error {
	now := s.Now()
	res := tx.Where("team_id = ? AND player_id = ?", teamID, memberID).Delete(&models.TeamMembership{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotAMember
	}
	if err := tx.Model(&models.Player{}).Where("id = ? AND team_id = ?", memberID, teamID).
		Updates(map[string]interface{}{"team_id": nil, "updated_at": now}).Error; err != nil {
		return err
	}
	return tx.Model(&models.Team{}).Where("id = ?", teamID).
		Updates(map[string]interface{}{"is_recruiting": true, "updated_at": now}).Error
}

// TransferCaptaincy hands the IGL role to another member; the old captain
// becomes an Entry. Both role writes commit together.
func (s *TeamService) TransferCaptaincy(ctx context.Context, teamID string, requester *models.Player, newCaptainID string) error {
	if err := requirePlayer(requester); err != nil {
		return err
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockTeam(tx, teamID); err != nil {
			return err
		}
		current, err := requireCaptain(tx, teamID, requester.ID)
		if err != nil {
			return err
		}
		if newCaptainID == requester.ID {
			return nil
		}
		next, err := membershipOf(tx, teamID, newCaptainID)
		if err != nil {
			return err
		}
		// Demote first: the single-captain index rejects two IGLs at once.
		if err := tx.Model(&models.TeamMembership{}).Where("id = ?", current.ID).Update("role", models.RoleEntry).Error; err != nil {
			return err
		}
		return tx.Model(&models.TeamMembership{}).Where("id = ?", next.ID).Update("role", models.RoleCaptain).Error
	})
	if err != nil {
		return failed(s.Log, "transfer captaincy", err, slog.String("team_id", teamID), slog.String("new_captain_id", newCaptainID))
	}

	s.Log.Info("captaincy transferred", slog.String("team_id", teamID), slog.String("from", requester.ID), slog.String("to", newCaptainID))
	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID))
	return nil
}

// GetTeam returns a team with its roster, oldest member first.
func (s *TeamService) GetTeam(ctx context.Context, teamID string) (*models.Team, error) {
	var team models.Team
	err := s.withRoster(s.DB.WithContext(ctx)).Where("id = ?", teamID).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, failed(s.Log, "get team", err, slog.String("team_id", teamID))
	}
	return &team, nil
}

// ObserveTeam streams roster snapshots of a team until stop is called.
func (s *TeamService) ObserveTeam(ctx context.Context, teamID string, onUpdate func(*models.Team)) (func(), error) {
	return observe(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID), func(ctx context.Context) (*models.Team, error) {
		return s.GetTeam(ctx, teamID)
	}, onUpdate)
}

const (
	TeamStatusAll        = "all"
	TeamStatusRecruiting = "recruiting"
	TeamStatusFull       = "full"
)

type TeamFilter struct {
	Search string
	Status string
	Limit  int
	Offset int
}

// ListTeams returns teams ordered by rating, best first.
func (s *TeamService) ListTeams(ctx context.Context, f TeamFilter) ([]models.Team, error) {
	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := s.withRoster(s.DB.WithContext(ctx)).Model(&models.Team{})
	switch f.Status {
	case "", TeamStatusAll:
	case TeamStatusRecruiting:
		q = q.Where("is_recruiting = ?", true)
	case TeamStatusFull:
		q = q.Where("is_recruiting = ?", false)
	default:
		return nil, invalidInput("unknown team status %q", f.Status)
	}
	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		like := containsPattern(term)
		q = q.Where("LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(tag) LIKE ? ESCAPE '\\' OR LOWER(region) LIKE ? ESCAPE '\\'", like, like, like)
	}

	teams := make([]models.Team, 0)
	if err := q.Order("rating DESC").Order("name ASC").Limit(limit).Offset(offset).Find(&teams).Error; err != nil {
		return nil, failed(s.Log, "list teams", err)
	}
	return teams, nil
}

func (s *TeamService) withRoster(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Members", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at ASC")
		}).
		Preload("Members.Player")
}

func normalizeTeamName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", invalidInput("team name is required")
	}
	if utf8.RuneCountInString(name) > maxTeamNameRunes {
		return "", invalidInput("team name must be at most %d characters", maxTeamNameRunes)
	}
	return name, nil
}

var upperTag = cases.Upper(language.Und)

// normalizeTag folds a tag to upper-case ASCII letters and digits.
func normalizeTag(raw string) (string, error) {
	folded := upperTag.String(unidecode.Unidecode(strings.TrimSpace(raw)))
	tag := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, folded)
	if tag == "" {
		return "", invalidInput("team tag is required")
	}
	if len(tag) > maxTagLength {
		return "", invalidInput("team tag must be at most %d characters", maxTagLength)
	}
	return tag, nil
}

// normalizeRole trims a role and gives known roles their canonical spelling.
func normalizeRole(raw string) (string, error) {
	role := strings.TrimSpace(raw)
	if role == "" {
		return "", invalidInput("role is required")
	}
	if utf8.RuneCountInString(role) > maxRoleRunes {
		return "", invalidInput("role must be at most %d characters", maxRoleRunes)
	}
	for _, known := range models.KnownRoles {
		if strings.EqualFold(role, known) {
			return known, nil
		}
	}
	return role, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// ReconcileRecruiting closes recruiting on any team that is open while full.
// The write paths keep this from happening; the job repairs rows edited by
// hand.
func (s *TeamService) ReconcileRecruiting(ctx context.Context) (int, error) {
	var ids []string
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		full := tx.Model(&models.TeamMembership{}).
			Select("team_id").
			Group("team_id").
			Having("COUNT(*) >= ?", models.MaxRosterSize)
		if err := tx.Model(&models.Team{}).
			Where("is_recruiting = ? AND id IN (?)", true, full).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&models.Team{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{"is_recruiting": false, "updated_at": s.Now()}).Error
	})
	if err != nil {
		return 0, failed(s.Log, "reconcile recruiting", err)
	}

	topics := make([]string, len(ids))
	for i, id := range ids {
		topics[i] = realtime.TeamTopic(id)
	}
	publish(ctx, s.Bridge, s.Log, topics...)
	return len(ids), nil
}
