package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"squad-hub/models"
	"squad-hub/realtime"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	maxRequestMessageRunes = 500
	RequestStatusAll       = "all"
)

// JoinRequestService runs the request → captain decision workflow.
type JoinRequestService struct {
	DB     *gorm.DB
	Bridge realtime.Bridge
	Log    *slog.Logger
	Now    Clock
}

func NewJoinRequestService(db *gorm.DB, bridge realtime.Bridge, logger *slog.Logger) *JoinRequestService {
	return &JoinRequestService{DB: db, Bridge: bridge, Log: logger, Now: systemClock}
}

// RequestToJoin files a pending request from requester to teamID.
func (s *JoinRequestService) RequestToJoin(ctx context.Context, teamID string, requester *models.Player, message *string) (*models.TeamJoinRequest, error) {
	if err := requirePlayer(requester); err != nil {
		return nil, err
	}
	msg := trimmedOrNil(message)
	if msg != nil && utf8.RuneCountInString(*msg) > maxRequestMessageRunes {
		return nil, invalidInput("message must be at most %d characters", maxRequestMessageRunes)
	}

	now := s.Now()
	req := &models.TeamJoinRequest{
		ID:       uuid.NewString(),
		TeamID:   teamID,
		PlayerID: requester.ID,
		Status:   models.JoinRequestPending,
		Message:  msg,
	}
	req.CreatedAt, req.UpdatedAt = now, now

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var team models.Team
		err := tx.Where("id = ?", teamID).First(&team).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrTeamNotFound
		}
		if err != nil {
			return err
		}
		if !team.IsRecruiting {
			return ErrTeamNotRecruiting
		}

		var player models.Player
		if err := tx.Where("id = ?", requester.ID).First(&player).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPlayerNotFound
			}
			return err
		}
		if player.TeamID != nil {
			return ErrAlreadyOnTeam
		}

		var pending int64
		if err := tx.Model(&models.TeamJoinRequest{}).
			Where("team_id = ? AND player_id = ? AND status = ?", teamID, requester.ID, models.JoinRequestPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrDuplicateRequest
		}

		if err := tx.Create(req).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateRequest
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, failed(s.Log, "request to join", err, slog.String("team_id", teamID), slog.String("player_id", requester.ID))
	}

	s.Log.Info("join request created", slog.String("request_id", req.ID), slog.String("team_id", teamID), slog.String("player_id", requester.ID))
	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID))
	return req, nil
}

// RespondToRequest lets the captain accept or reject a pending request.
//
// Accepting locks the team row before counting, so two concurrent accepts on
// the same team are serialized and the fifth slot is handed out once. When
// the accept fails (TeamFull, AlreadyOnTeam) nothing is written and the
// request stays pending.
func (s *JoinRequestService) RespondToRequest(ctx context.Context, requestID, teamID string, captain *models.Player, accept bool) (*models.TeamJoinRequest, error) {
	if err := requirePlayer(captain); err != nil {
		return nil, err
	}

	var req models.TeamJoinRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockTeam(tx, teamID); err != nil {
			return err
		}
		if _, err := requireCaptain(tx, teamID, captain.ID); err != nil {
			return err
		}

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND team_id = ?", requestID, teamID).First(&req).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if req.Status != models.JoinRequestPending {
			return ErrAlreadyResolved
		}

		now := s.Now()
		if !accept {
			req.Status, req.UpdatedAt = models.JoinRequestRejected, now
			return tx.Model(&models.TeamJoinRequest{}).Where("id = ?", req.ID).
				Updates(map[string]interface{}{"status": req.Status, "updated_at": now}).Error
		}

		n, err := countMembers(tx, teamID)
		if err != nil {
			return err
		}
		if n >= models.MaxRosterSize {
			return ErrTeamFull
		}

		player, err := lockPlayer(tx, req.PlayerID)
		if err != nil {
			return err
		}
		if player.TeamID != nil {
			return ErrAlreadyOnTeam
		}

		member := models.TeamMembership{
			ID:       uuid.NewString(),
			TeamID:   teamID,
			PlayerID: player.ID,
			Role:     models.RoleEntry,
			JoinedAt: now,
		}
		if err := tx.Create(&member).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyOnTeam
			}
			return err
		}
		if err := tx.Model(&models.Player{}).Where("id = ?", player.ID).
			Updates(map[string]interface{}{"team_id": teamID, "updated_at": now}).Error; err != nil {
			return err
		}

		req.Status, req.UpdatedAt = models.JoinRequestAccepted, now
		if err := tx.Model(&models.TeamJoinRequest{}).Where("id = ?", req.ID).
			Updates(map[string]interface{}{"status": req.Status, "updated_at": now}).Error; err != nil {
			return err
		}

		if n+1 >= models.MaxRosterSize {
			return tx.Model(&models.Team{}).Where("id = ?", teamID).
				Updates(map[string]interface{}{"is_recruiting": false, "updated_at": now}).Error
		}
		return nil
	})
	if err != nil {
		return nil, failed(s.Log, "respond to request", err, slog.String("request_id", requestID), slog.String("team_id", teamID))
	}

	s.Log.Info("join request resolved",
		slog.String("request_id", req.ID),
		slog.String("team_id", teamID),
		slog.String("status", string(req.Status)),
	)
	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(teamID))
	return &req, nil
}

// ListRequests returns a team's requests, newest first. Only the captain
// may list them. status is one of pending (default), accepted, rejected, all.
func (s *JoinRequestService) ListRequests(ctx context.Context, teamID string, captain *models.Player, status string) ([]models.TeamJoinRequest, error) {
	if captain == nil {
		return nil, ErrUnauthenticated
	}
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = string(models.JoinRequestPending)
	}
	switch status {
	case RequestStatusAll, string(models.JoinRequestPending), string(models.JoinRequestAccepted), string(models.JoinRequestRejected):
	default:
		return nil, invalidInput("unknown request status %q", status)
	}

	db := s.DB.WithContext(ctx)
	var team models.Team
	if err := db.Where("id = ?", teamID).First(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTeamNotFound
		}
		return nil, failed(s.Log, "list requests", err, slog.String("team_id", teamID))
	}
	if _, err := requireCaptain(db, teamID, captain.ID); err != nil {
		return nil, failed(s.Log, "list requests", err, slog.String("team_id", teamID))
	}

	q := db.Preload("Player").Where("team_id = ?", teamID)
	if status != RequestStatusAll {
		q = q.Where("status = ?", status)
	}
	out := make([]models.TeamJoinRequest, 0)
	if err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, failed(s.Log, "list requests", err, slog.String("team_id", teamID))
	}
	return out, nil
}

// ListMyRequests returns the player's own requests with their teams.
func (s *JoinRequestService) ListMyRequests(ctx context.Context, player *models.Player) ([]models.TeamJoinRequest, error) {
	if player == nil {
		return nil, ErrUnauthenticated
	}
	out := make([]models.TeamJoinRequest, 0)
	err := s.DB.WithContext(ctx).Preload("Team").
		Where("player_id = ?", player.ID).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, failed(s.Log, "list my requests", err, slog.String("player_id", player.ID))
	}
	return out, nil
}

// CancelRequest withdraws the player's own pending request.
func (s *JoinRequestService) CancelRequest(ctx context.Context, requestID string, player *models.Player) error {
	if err := requirePlayer(player); err != nil {
		return err
	}

	var req models.TeamJoinRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND player_id = ?", requestID, player.ID).First(&req).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		if req.Status != models.JoinRequestPending {
			return ErrAlreadyResolved
		}
		return tx.Where("id = ?", req.ID).Delete(&models.TeamJoinRequest{}).Error
	})
	if err != nil {
		return failed(s.Log, "cancel request", err, slog.String("request_id", requestID))
	}

	publish(ctx, s.Bridge, s.Log, realtime.TeamTopic(req.TeamID))
	return nil
}
