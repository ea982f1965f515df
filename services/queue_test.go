package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"squad-hub/models"
	"squad-hub/realtime"

	"github.com/stretchr/testify/require"
)

func TestJoinQueueIsIdempotentPerPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.player("alpha")

	first, err := f.queue.JoinQueue(ctx, p, ModeCompetitive, "")
	require.NoError(t, err)
	require.Equal(t, MapRandom, first.MapPreference)
	require.Equal(t, models.QueueSearching, first.Status)

	second, err := f.queue.JoinQueue(ctx, p, "Wingman", "Mirage")
	require.NoError(t, err)
	require.Equal(t, ModeWingman, second.GameMode)
	require.Equal(t, "mirage", second.MapPreference)
	require.True(t, second.QueueStart.After(first.QueueStart), "rejoining restarts the wait")

	var n int64
	require.NoError(t, f.db.Model(&models.QueueEntry{}).Where("player_id = ?", p.ID).Count(&n).Error)
	require.EqualValues(t, 1, n)

	status, err := f.queue.QueueStatus(ctx, p)
	require.NoError(t, err)
	require.True(t, status.InQueue)
	require.Equal(t, ModeWingman, status.Entry.GameMode)

	competitive, err := f.queue.ListQueuedPlayers(ctx, ModeCompetitive)
	require.NoError(t, err)
	require.Empty(t, competitive)
}

func TestJoinQueueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.player("alpha")

	_, err := f.queue.JoinQueue(ctx, p, "battle-royale", "")
	require.Equal(t, KindInvalidInput, KindOf(err))
	_, err = f.queue.JoinQueue(ctx, p, ModeCasual, "de_atlantis")
	require.Equal(t, KindInvalidInput, KindOf(err))
	_, err = f.queue.JoinQueue(ctx, nil, ModeCasual, "")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestLeaveQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.player("alpha")

	// Leaving while not queued is a no-op.
	require.NoError(t, f.queue.LeaveQueue(ctx, p))

	_, err := f.queue.JoinQueue(ctx, p, ModeCasual, "dust2")
	require.NoError(t, err)
	require.NoError(t, f.queue.LeaveQueue(ctx, p))
	require.NoError(t, f.queue.LeaveQueue(ctx, p))

	status, err := f.queue.QueueStatus(ctx, p)
	require.NoError(t, err)
	require.False(t, status.InQueue)
	require.Nil(t, status.Entry)
}

func TestListQueuedPlayersFirstComeFirstServed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.player("a"), f.player("b"), f.player("c")

	for _, p := range []*models.Player{a, b, c} {
		_, err := f.queue.JoinQueue(ctx, p, ModeCompetitive, "")
		require.NoError(t, err)
	}
	// a requeues and goes to the back.
	_, err := f.queue.JoinQueue(ctx, a, ModeCompetitive, "inferno")
	require.NoError(t, err)

	list, err := f.queue.ListQueuedPlayers(ctx, ModeCompetitive)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{b.ID, c.ID, a.ID}, []string{list[0].PlayerID, list[1].PlayerID, list[2].PlayerID})
	require.Equal(t, "b", list[0].Nickname)
	require.Equal(t, models.DefaultRating, list[0].Rating)
	require.Equal(t, "inferno", list[2].MapPreference)
	require.Greater(t, list[0].QueueTime, list[2].QueueTime)
	require.Equal(t, int64(list[0].WaitTime/time.Second), list[0].QueueTime)

	// Only searching entries are listed.
	require.NoError(t, f.db.Model(&models.QueueEntry{}).Where("player_id = ?", b.ID).Update("status", models.QueueMatched).Error)
	list, err = f.queue.ListQueuedPlayers(ctx, ModeCompetitive)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestSweepStaleEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stale, fresh := f.player("stale"), f.player("fresh")

	_, err := f.queue.JoinQueue(ctx, stale, ModeCasual, "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	_, err = f.queue.JoinQueue(ctx, fresh, ModeDeathmatch, "")
	require.NoError(t, err)

	var notified []string
	var mu sync.Mutex
	for _, mode := range GameModes {
		topic := realtime.QueueTopic(mode)
		defer f.hub.Subscribe(topic, func() {
			mu.Lock()
			notified = append(notified, topic)
			mu.Unlock()
		})()
	}

	n, err := f.queue.SweepStaleEntries(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	status, err := f.queue.QueueStatus(ctx, stale)
	require.NoError(t, err)
	require.False(t, status.InQueue)
	status, err = f.queue.QueueStatus(ctx, fresh)
	require.NoError(t, err)
	require.True(t, status.InQueue)

	mu.Lock()
	require.Equal(t, []string{realtime.QueueTopic(ModeCasual)}, notified)
	mu.Unlock()
}

func TestJoinQueuePublishesOldAndNewMode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.player("alpha")

	counts := map[string]int{}
	var mu sync.Mutex
	for _, mode := range []string{ModeCompetitive, ModeCasual} {
		topic := realtime.QueueTopic(mode)
		defer f.hub.Subscribe(topic, func() {
			mu.Lock()
			counts[topic]++
			mu.Unlock()
		})()
	}

	_, err := f.queue.JoinQueue(ctx, p, ModeCompetitive, "")
	require.NoError(t, err)
	_, err = f.queue.JoinQueue(ctx, p, ModeCasual, "")
	require.NoError(t, err)
	require.NoError(t, f.queue.LeaveQueue(ctx, p))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, counts[realtime.QueueTopic(ModeCompetitive)])
	require.Equal(t, 2, counts[realtime.QueueTopic(ModeCasual)])
}

func TestObserveQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.player("a"), f.player("b")
	_, err := f.queue.JoinQueue(ctx, a, ModeCompetitive, "")
	require.NoError(t, err)

	views := make(chan []QueuedPlayer, 16)
	stop, err := f.queue.ObserveQueue(ctx, ModeCompetitive, func(list []QueuedPlayer) { views <- list })
	require.NoError(t, err)

	// The current view is delivered before ObserveQueue returns.
	require.Len(t, <-views, 1)

	_, err = f.queue.JoinQueue(ctx, b, ModeCompetitive, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		for {
			select {
			case v := <-views:
				if len(v) == 2 {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	stop()
	stop()
	require.Zero(t, f.hub.SubscriberCount(realtime.QueueTopic(ModeCompetitive)))

	require.NoError(t, f.queue.LeaveQueue(ctx, a))
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, len(views), 1, "at most one delivery after stop")

	_, err = f.queue.ObserveQueue(ctx, "bogus", func([]QueuedPlayer) {})
	require.Equal(t, KindInvalidInput, KindOf(err))
}

func TestMapsCatalogue(t *testing.T) {
	f := newFixture(t)
	maps := f.queue.Maps()
	require.Equal(t, MapRandom, maps[0].ID)
	maps[0].ID = "changed"
	require.Equal(t, MapRandom, f.queue.Maps()[0].ID)
}
