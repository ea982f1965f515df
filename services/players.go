package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"squad-hub/models"

	"gorm.io/gorm"
)

const maxNicknameRunes = 32

type ProfilePatch struct {
	Nickname        *string `json:"nickname,omitempty"`
	City            *string `json:"city,omitempty"`
	AvatarURL       *string `json:"avatar_url,omitempty"`
	ProfileCoverURL *string `json:"profile_cover_url,omitempty"`
}

func (s *IdentityService) GetPlayer(ctx context.Context, playerID string) (*models.Player, error) {
	var player models.Player
	err := s.DB.WithContext(ctx).Where("id = ?", playerID).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, failed(s.Log, "get player", err, slog.String("player_id", playerID))
	}
	return &player, nil
}

// UpdateProfile edits the player's own display fields.
func (s *IdentityService) UpdateProfile(ctx context.Context, player *models.Player, patch ProfilePatch) (*models.Player, error) {
	if err := requirePlayer(player); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"updated_at": s.Now()}
	if patch.Nickname != nil {
		nick := strings.TrimSpace(*patch.Nickname)
		if nick == "" {
			return nil, invalidInput("nickname is required")
		}
		if utf8.RuneCountInString(nick) > maxNicknameRunes {
			return nil, invalidInput("nickname must be at most %d characters", maxNicknameRunes)
		}
		updates["nickname"] = nick
	}
	if patch.City != nil {
		updates["city"] = trimmedOrNil(patch.City)
	}
	if patch.AvatarURL != nil {
		updates["avatar_url"] = trimmedOrNil(patch.AvatarURL)
	}
	if patch.ProfileCoverURL != nil {
		updates["profile_cover_url"] = trimmedOrNil(patch.ProfileCoverURL)
	}

	db := s.DB.WithContext(ctx)
	res := db.Model(&models.Player{}).Where("id = ?", player.ID).Updates(updates)
	if res.Error != nil {
		return nil, failed(s.Log, "update profile", res.Error, slog.String("player_id", player.ID))
	}
	if res.RowsAffected == 0 {
		return nil, ErrPlayerNotFound
	}
	return s.GetPlayer(ctx, player.ID)
}

// SearchPlayers matches nickname or city, case-insensitively.
func (s *IdentityService) SearchPlayers(ctx context.Context, query string, limit int) ([]models.Player, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&models.Player{}).Limit(limit)
	if term := strings.ToLower(strings.TrimSpace(query)); term != "" {
		like := containsPattern(term)
		db = db.Where("LOWER(nickname) LIKE ? ESCAPE '\\' OR LOWER(city) LIKE ? ESCAPE '\\'", like, like)
	}

	players := make([]models.Player, 0)
	if err := db.Order("nickname ASC").Find(&players).Error; err != nil {
		return nil, failed(s.Log, "search players", err)
	}
	return players, nil
}

// Ranking lists players by rating, best first.
func (s *IdentityService) Ranking(ctx context.Context, limit int) ([]models.Player, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	players := make([]models.Player, 0)
	err := s.DB.WithContext(ctx).
		Order("rating DESC").Order("matches_won DESC").Order("nickname ASC").
		Limit(limit).Find(&players).Error
	if err != nil {
		return nil, failed(s.Log, "player ranking", err)
	}
	return players, nil
}
