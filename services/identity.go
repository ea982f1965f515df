package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"squad-hub/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultNicknamePrefix = "Player-"

// ExternalIdentity is what the identity provider knows about a user.
type ExternalIdentity struct {
	AuthID      string
	ProviderID  string // Steam id, when the user signed in through Steam
	DisplayName string
	AvatarURL   string
}

// SessionProvider yields the identity behind the current session, or nil
// when there is none.
type SessionProvider interface {
	CurrentUser(ctx context.Context) (*ExternalIdentity, error)
}

// StaticSession is a SessionProvider over an identity already extracted
// from the request (gateway headers).
type StaticSession struct {
	Identity *ExternalIdentity
}

func (s StaticSession) CurrentUser(context.Context) (*ExternalIdentity, error) {
	if s.Identity == nil || strings.TrimSpace(s.Identity.AuthID) == "" {
		return nil, nil
	}
	return s.Identity, nil
}

// Resolution is the outcome of resolving the current player. A degraded
// resolution carries an ephemeral profile that was never persisted; callers
// must not use it for writes.
type Resolution struct {
	Player   *models.Player `json:"player"`
	Degraded bool           `json:"degraded"`
}

type IdentityService struct {
	DB            *gorm.DB
	Log           *slog.Logger
	AllowDegraded bool
	Now           Clock
}

func NewIdentityService(db *gorm.DB, logger *slog.Logger, allowDegraded bool) *IdentityService {
	return &IdentityService{DB: db, Log: logger, AllowDegraded: allowDegraded, Now: systemClock}
}

// ResolveCurrentPlayer maps the session's external identity to a Player,
// creating the row on first sight.
func (s *IdentityService) ResolveCurrentPlayer(ctx context.Context, sessions SessionProvider) (*Resolution, error) {
	identity, err := sessions.CurrentUser(ctx)
	if err != nil {
		s.Log.Warn("session lookup failed", slog.Any("error", err))
		return nil, ErrUnauthenticated
	}
	if identity == nil || strings.TrimSpace(identity.AuthID) == "" {
		return nil, ErrUnauthenticated
	}

	player, err := s.findByAuthID(ctx, identity.AuthID)
	if err == nil {
		return &Resolution{Player: player}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return s.degrade(identity, err)
	}

	player = s.newPlayer(identity)
	err = s.DB.WithContext(ctx).Create(player).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// A concurrent first resolution created the row first.
		existing, readErr := s.findByAuthID(ctx, identity.AuthID)
		if readErr != nil {
			return s.degrade(identity, readErr)
		}
		return &Resolution{Player: existing}, nil
	}
	if err != nil {
		return s.degrade(identity, err)
	}

	s.Log.Info("player created", slog.String("player_id", player.ID), slog.String("auth_id", identity.AuthID))
	return &Resolution{Player: player}, nil
}

func (s *IdentityService) findByAuthID(ctx context.Context, authID string) (*models.Player, error) {
	var player models.Player
	if err := s.DB.WithContext(ctx).Where("auth_id = ?", authID).First(&player).Error; err != nil {
		return nil, err
	}
	return &player, nil
}

func (s *IdentityService) newPlayer(identity *ExternalIdentity) *models.Player {
	now := s.Now()
	p := &models.Player{
		ID:       uuid.NewString(),
		AuthID:   identity.AuthID,
		Nickname: defaultNickname(identity),
		Rating:   models.DefaultRating,
	}
	p.CreatedAt, p.UpdatedAt = now, now
	if id := strings.TrimSpace(identity.ProviderID); id != "" {
		p.SteamID = &id
	}
	if avatar := strings.TrimSpace(identity.AvatarURL); avatar != "" {
		p.AvatarURL = &avatar
	}
	return p
}

func (s *IdentityService) degrade(identity *ExternalIdentity, cause error) (*Resolution, error) {
	s.Log.Error("player lookup failed", slog.String("auth_id", identity.AuthID), slog.Any("error", cause))
	if !s.AllowDegraded {
		return nil, storeFailure("resolve player", cause)
	}
	p := s.newPlayer(identity)
	p.ID = "" // never persisted; writes reject it
	return &Resolution{Player: p, Degraded: true}, nil
}

func defaultNickname(identity *ExternalIdentity) string {
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	suffix := identity.AuthID
	if len(suffix) > 6 {
		suffix = suffix[:6]
	}
	return defaultNicknamePrefix + suffix
}
