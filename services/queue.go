package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"squad-hub/models"
	"squad-hub/realtime"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	ModeCompetitive = "competitive"
	ModeCasual      = "casual"
	ModeWingman     = "wingman"
	ModeDeathmatch  = "deathmatch"

	MapRandom = "random"
)

// GameModes lists the queueable modes.
var GameModes = []string{ModeCompetitive, ModeCasual, ModeWingman, ModeDeathmatch}

type GameMap struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var mapCatalogue = []GameMap{
	{ID: MapRandom, Name: "Random"},
	{ID: "dust2", Name: "Dust II"},
	{ID: "mirage", Name: "Mirage"},
	{ID: "inferno", Name: "Inferno"},
	{ID: "cache", Name: "Cache"},
	{ID: "overpass", Name: "Overpass"},
	{ID: "nuke", Name: "Nuke"},
	{ID: "ancient", Name: "Ancient"},
	{ID: "anubis", Name: "Anubis"},
}

// QueueService keeps one queue entry per player and publishes per-mode
// change notifications.
type QueueService struct {
	DB     *gorm.DB
	Bridge realtime.Bridge
	Log    *slog.Logger
	Now    Clock
}

func NewQueueService(db *gorm.DB, bridge realtime.Bridge, logger *slog.Logger) *QueueService {
	return &QueueService{DB: db, Bridge: bridge, Log: logger, Now: systemClock}
}

// Maps returns the map catalogue in display order.
func (s *QueueService) Maps() []GameMap {
	out := make([]GameMap, len(mapCatalogue))
	copy(out, mapCatalogue)
	return out
}

// JoinQueue puts the player in the queue for gameMode, replacing any entry
// they already have. Repeating the call restarts the wait.
func (s *QueueService) JoinQueue(ctx context.Context, player *models.Player, gameMode, mapPreference string) (*models.QueueEntry, error) {
	if err := requirePlayer(player); err != nil {
		return nil, err
	}
	mode, err := normalizeMode(gameMode)
	if err != nil {
		return nil, err
	}
	mapID, err := normalizeMap(mapPreference)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	entry := models.QueueEntry{
		ID:            uuid.NewString(),
		PlayerID:      player.ID,
		GameMode:      mode,
		MapPreference: mapID,
		Status:        models.QueueSearching,
		QueueStart:    now,
		UpdatedAt:     now,
	}

	var previousMode string
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev models.QueueEntry
		err := tx.Where("player_id = ?", player.ID).First(&prev).Error
		switch {
		case err == nil:
			previousMode = prev.GameMode
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "player_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"game_mode", "map_preference", "status", "queue_start", "updated_at"}),
		}).Create(&entry).Error; err != nil {
			return err
		}
		return tx.Where("player_id = ?", player.ID).First(&entry).Error
	})
	if err != nil {
		return nil, failed(s.Log, "join queue", err, slog.String("player_id", player.ID))
	}

	topics := []string{realtime.QueueTopic(mode)}
	if previousMode != "" && previousMode != mode {
		topics = append(topics, realtime.QueueTopic(previousMode))
	}
	s.Log.Info("player queued", slog.String("player_id", player.ID), slog.String("game_mode", mode), slog.String("map", mapID))
	publish(ctx, s.Bridge, s.Log, topics...)
	return &entry, nil
}

// LeaveQueue removes the player's entry. Leaving while not queued is a no-op.
func (s *QueueService) LeaveQueue(ctx context.Context, player *models.Player) error {
	if err := requirePlayer(player); err != nil {
		return err
	}

	var removed []models.QueueEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("player_id = ?", player.ID).Find(&removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where("player_id = ?", player.ID).Delete(&models.QueueEntry{}).Error
	})
	if err != nil {
		return failed(s.Log, "leave queue", err, slog.String("player_id", player.ID))
	}

	for _, e := range removed {
		publish(ctx, s.Bridge, s.Log, realtime.QueueTopic(e.GameMode))
	}
	return nil
}

type QueueStatusResult struct {
	InQueue bool               `json:"in_queue"`
	Entry   *models.QueueEntry `json:"entry,omitempty"`
}

func (s *QueueService) QueueStatus(ctx context.Context, player *models.Player) (*QueueStatusResult, error) {
	if player == nil {
		return nil, ErrUnauthenticated
	}
	if player.ID == "" {
		return &QueueStatusResult{}, nil
	}
	var entry models.QueueEntry
	err := s.DB.WithContext(ctx).Where("player_id = ?", player.ID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &QueueStatusResult{}, nil
	}
	if err != nil {
		return nil, failed(s.Log, "queue status", err, slog.String("player_id", player.ID))
	}
	return &QueueStatusResult{InQueue: true, Entry: &entry}, nil
}

// QueuedPlayer is a queue entry as shown in a mode's lobby.
type QueuedPlayer struct {
	PlayerID      string             `json:"player_id"`
	Nickname      string             `json:"nickname"`
	AvatarURL     *string            `json:"avatar_url,omitempty"`
	Rating        int                `json:"rating"`
	Status        models.QueueStatus `json:"status"`
	MapPreference string             `json:"map_preference"`
	QueueStart    time.Time          `json:"queue_start"`
	WaitTime      time.Duration      `json:"-"`
	QueueTime     int64              `json:"queue_time"` // seconds
}

// ListQueuedPlayers returns the players searching in gameMode, longest
// waiting first.
func (s *QueueService) ListQueuedPlayers(ctx context.Context, gameMode string) ([]QueuedPlayer, error) {
	mode, err := normalizeMode(gameMode)
	if err != nil {
		return nil, err
	}

	var entries []models.QueueEntry
	err = s.DB.WithContext(ctx).Preload("Player").
		Where("game_mode = ? AND status = ?", mode, models.QueueSearching).
		Order("queue_start ASC").Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, failed(s.Log, "list queue", err, slog.String("game_mode", mode))
	}

	now := s.Now()
	out := make([]QueuedPlayer, 0, len(entries))
	for _, e := range entries {
		wait := now.Sub(e.QueueStart)
		if wait < 0 {
			wait = 0
		}
		qp := QueuedPlayer{
			PlayerID:      e.PlayerID,
			Status:        e.Status,
			MapPreference: e.MapPreference,
			QueueStart:    e.QueueStart,
			WaitTime:      wait,
			QueueTime:     int64(wait / time.Second),
			Rating:        models.DefaultRating,
		}
		if e.Player != nil {
			qp.Nickname = e.Player.Nickname
			qp.AvatarURL = e.Player.AvatarURL
			qp.Rating = e.Player.Rating
		}
		out = append(out, qp)
	}
	return out, nil
}

// ObserveQueue delivers the lobby of gameMode now and after every change.
func (s *QueueService) ObserveQueue(ctx context.Context, gameMode string, onUpdate func([]QueuedPlayer)) (func(), error) {
	mode, err := normalizeMode(gameMode)
	if err != nil {
		return nil, err
	}
	return observe(ctx, s.Bridge, s.Log, realtime.QueueTopic(mode), func(ctx context.Context) ([]QueuedPlayer, error) {
		return s.ListQueuedPlayers(ctx, mode)
	}, onUpdate)
}

// SweepStaleEntries drops searching entries older than ttl and reports how
// many were removed.
func (s *QueueService) SweepStaleEntries(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.Now().Add(-ttl)

	var stale []models.QueueEntry
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status = ? AND queue_start < ?", models.QueueSearching, cutoff).
			Find(&stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		ids := make([]string, len(stale))
		for i, e := range stale {
			ids[i] = e.ID
		}
		return tx.Where("id IN ?", ids).Delete(&models.QueueEntry{}).Error
	})
	if err != nil {
		return 0, failed(s.Log, "sweep queue", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	modes := map[string]struct{}{}
	for _, e := range stale {
		modes[e.GameMode] = struct{}{}
	}
	topics := make([]string, 0, len(modes))
	for m := range modes {
		topics = append(topics, realtime.QueueTopic(m))
	}
	sort.Strings(topics)

	s.Log.Info("stale queue entries removed", slog.Int("count", len(stale)), slog.Duration("ttl", ttl))
	publish(ctx, s.Bridge, s.Log, topics...)
	return len(stale), nil
}

func normalizeMode(raw string) (string, error) {
	mode := strings.ToLower(strings.TrimSpace(raw))
	for _, m := range GameModes {
		if m == mode {
			return m, nil
		}
	}
	return "", invalidInput("unknown game mode %q", raw)
}

func normalizeMap(raw string) (string, error) {
	id := strings.ToLower(strings.TrimSpace(raw))
	if id == "" {
		return MapRandom, nil
	}
	for _, m := range mapCatalogue {
		if m.ID == id {
			return m.ID, nil
		}
	}
	return "", invalidInput("unknown map %q", raw)
}
