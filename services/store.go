package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"squad-hub/models"
	"squad-hub/realtime"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Clock returns the current time; services take one so tests can pin it.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching term literally anywhere.
// Queries using it must declare ESCAPE '\'.
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

// requirePlayer guards writes. A degraded resolution carries a profile that
// was never stored, so it cannot be written against.
func requirePlayer(p *models.Player) error {
	if p == nil {
		return ErrUnauthenticated
	}
	if p.ID == "" {
		return ErrStoreUnavailable
	}
	return nil
}

// lockTeam re-reads a team under a row lock for the rest of the transaction.
func lockTeam(tx *gorm.DB, teamID string) (*models.Team, error) {
	var team models.Team
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", teamID).First(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, err
	}
	return &team, nil
}

func lockPlayer(tx *gorm.DB, playerID string) (*models.Player, error) {
	var player models.Player
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", playerID).First(&player).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &player, nil
}

func membershipOf(db *gorm.DB, teamID, playerID string) (*models.TeamMembership, error) {
	var m models.TeamMembership
	err := db.Where("team_id = ? AND player_id = ?", teamID, playerID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotAMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// requireCaptain fails with ErrNotCaptain unless playerID holds the IGL role
// in teamID.
func requireCaptain(db *gorm.DB, teamID, playerID string) (*models.TeamMembership, error) {
	m, err := membershipOf(db, teamID, playerID)
	if errors.Is(err, ErrNotAMember) {
		return nil, ErrNotCaptain
	}
	if err != nil {
		return nil, err
	}
	if !m.IsCaptain() {
		return nil, ErrNotCaptain
	}
	return m, nil
}

func countMembers(db *gorm.DB, teamID string) (int64, error) {
	var n int64
	err := db.Model(&models.TeamMembership{}).Where("team_id = ?", teamID).Count(&n).Error
	return n, err
}

// failed converts err for callers and logs it when it is a store failure.
func failed(logger *slog.Logger, op string, err error, attrs ...any) error {
	out := storeFailure(op, err)
	if KindOf(out) == KindStoreUnavailable {
		logger.Error(op+" failed", append(attrs, slog.Any("error", err))...)
	}
	return out
}

// publish announces committed changes. Delivery is best effort: the write
// already succeeded, so failures are only logged.
func publish(ctx context.Context, bridge realtime.Bridge, logger *slog.Logger, topics ...string) {
	if bridge == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, topic := range topics {
		if err := bridge.Publish(ctx, topic); err != nil {
			logger.Warn("failed to publish change", slog.String("topic", topic), slog.Any("error", err))
		}
	}
}

// observe delivers load's result immediately and again after every
// notification on topic, until the returned stop func is called or ctx ends.
// Notifications that arrive during a reload collapse into one more reload.
// At most one delivery may still happen after stop.
func observe[T any](
	ctx context.Context,
	bridge realtime.Bridge,
	logger *slog.Logger,
	topic string,
	load func(context.Context) (T, error),
	onUpdate func(T),
) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	signal := make(chan struct{}, 1)
	unsubscribe := bridge.Subscribe(topic, func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			unsubscribe()
			cancel()
		})
	}

	// Subscribed before the first read so no change slips in between.
	initial, err := load(ctx)
	if err != nil {
		stop()
		return nil, err
	}
	onUpdate(initial)

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
				view, err := load(ctx)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					logger.Warn("failed to reload observed view", slog.String("topic", topic), slog.Any("error", err))
					continue
				}
				onUpdate(view)
			}
		}
	}()

	return stop, nil
}
