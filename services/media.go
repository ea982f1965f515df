package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"squad-hub/models"
	"squad-hub/utils"

	"github.com/google/uuid"
)

// MaxImageBytes caps logo, cover and avatar uploads.
const MaxImageBytes = 5 << 20

const (
	MediaLogo  = "logo"
	MediaCover = "cover"
)

// Uploader stores an object and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// MediaService uploads images and records their URLs on teams and players.
// A nil Uploader disables uploads.
type MediaService struct {
	Uploader Uploader
	Teams    *TeamService
	Players  *IdentityService
	Log      *slog.Logger
}

func NewMediaService(uploader Uploader, teams *TeamService, players *IdentityService, logger *slog.Logger) *MediaService {
	return &MediaService{Uploader: uploader, Teams: teams, Players: players, Log: logger}
}

// SetTeamMedia replaces a team's logo or cover. Only the captain may do it.
func (s *MediaService) SetTeamMedia(ctx context.Context, teamID string, requester *models.Player, kind string, size int64, file io.Reader) (*models.Team, error) {
	if err := requirePlayer(requester); err != nil {
		return nil, err
	}
	if kind != MediaLogo && kind != MediaCover {
		return nil, invalidInput("unknown media kind %q", kind)
	}
	if _, err := s.Teams.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if _, err := requireCaptain(s.Teams.DB.WithContext(ctx), teamID, requester.ID); err != nil {
		return nil, failed(s.Log, "set team media", err, slog.String("team_id", teamID))
	}

	url, err := s.upload(ctx, fmt.Sprintf("teams/%s/%s", teamID, kind), size, file)
	if err != nil {
		return nil, err
	}

	patch := TeamPatch{}
	if kind == MediaLogo {
		patch.LogoURL = &url
	} else {
		patch.CoverURL = &url
	}
	return s.Teams.UpdateTeam(ctx, teamID, requester, patch)
}

// SetPlayerAvatar replaces the player's avatar.
func (s *MediaService) SetPlayerAvatar(ctx context.Context, player *models.Player, size int64, file io.Reader) (*models.Player, error) {
	if err := requirePlayer(player); err != nil {
		return nil, err
	}
	url, err := s.upload(ctx, fmt.Sprintf("players/%s/avatar", player.ID), size, file)
	if err != nil {
		return nil, err
	}
	return s.Players.UpdateProfile(ctx, player, ProfilePatch{AvatarURL: &url})
}

func (s *MediaService) upload(ctx context.Context, prefix string, size int64, file io.Reader) (string, error) {
	if s.Uploader == nil {
		return "", invalidInput("uploads are not enabled")
	}
	if size <= 0 {
		return "", invalidInput("file is empty")
	}
	if size > MaxImageBytes {
		return "", invalidInput("file must be at most %d MB", MaxImageBytes>>20)
	}

	contentType, ext, body, err := utils.SniffImage(io.LimitReader(file, MaxImageBytes))
	if errors.Is(err, utils.ErrNotAnImage) {
		return "", invalidInput("file must be a PNG, JPEG, GIF or WebP image")
	}
	if err != nil {
		return "", invalidInput("could not read file")
	}

	key := fmt.Sprintf("%s-%s%s", prefix, uuid.NewString(), ext)
	url, err := s.Uploader.Upload(ctx, key, contentType, body)
	if err != nil {
		s.Log.Error("upload failed", slog.String("key", key), slog.Any("error", err))
		return "", &Error{Kind: KindStoreUnavailable, Message: "upload failed", Err: err}
	}
	s.Log.Info("media uploaded", slog.String("key", key))
	return url, nil
}
