package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"squad-hub/models"
	"squad-hub/realtime"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// stepClock advances one second per reading so ordering by time is stable.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	t        *testing.T
	db       *gorm.DB
	hub      *realtime.Hub
	clock    *stepClock
	identity *IdentityService
	teams    *TeamService
	requests *JoinRequestService
	queue    *QueueService
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database shared and serializes
	// transactions the way row locks do on PostgreSQL.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	hub := realtime.NewHub(quietLog)
	clock := newStepClock()

	f := &fixture{
		t:        t,
		db:       db,
		hub:      hub,
		clock:    clock,
		identity: NewIdentityService(db, quietLog, false),
		teams:    NewTeamService(db, hub, quietLog),
		requests: NewJoinRequestService(db, hub, quietLog),
		queue:    NewQueueService(db, hub, quietLog),
	}
	f.identity.Now = clock.Now
	f.teams.Now = clock.Now
	f.requests.Now = clock.Now
	f.queue.Now = clock.Now
	return f
}

func (f *fixture) player(name string) *models.Player {
	f.t.Helper()
	res, err := f.identity.ResolveCurrentPlayer(context.Background(), StaticSession{Identity: &ExternalIdentity{
		AuthID:      "auth-" + name,
		DisplayName: name,
	}})
	require.NoError(f.t, err)
	require.False(f.t, res.Degraded)
	return res.Player
}

// reload re-reads a player so TeamID reflects the store.
func (f *fixture) reload(p *models.Player) *models.Player {
	f.t.Helper()
	fresh, err := f.identity.GetPlayer(context.Background(), p.ID)
	require.NoError(f.t, err)
	return fresh
}

func (f *fixture) team(captain *models.Player, name string) *models.Team {
	f.t.Helper()
	team, err := f.teams.CreateTeam(context.Background(), captain, CreateTeamInput{Name: name, Tag: name[:3]})
	require.NoError(f.t, err)
	return team
}

// join runs the full request/accept flow for p.
func (f *fixture) join(team *models.Team, captain, p *models.Player) {
	f.t.Helper()
	ctx := context.Background()
	req, err := f.requests.RequestToJoin(ctx, team.ID, p, nil)
	require.NoError(f.t, err)
	_, err = f.requests.RespondToRequest(ctx, req.ID, team.ID, captain, true)
	require.NoError(f.t, err)
}

// fullTeam builds a team with a captain and four accepted members.
func (f *fixture) fullTeam(name string) (*models.Team, *models.Player, []*models.Player) {
	f.t.Helper()
	captain := f.player(name + "-igl")
	team := f.team(captain, name)
	members := make([]*models.Player, 0, 4)
	for i := 0; i < 4; i++ {
		p := f.player(fmt.Sprintf("%s-m%d", name, i))
		f.join(team, captain, p)
		members = append(members, p)
	}
	return team, captain, members
}

func (f *fixture) memberCount(teamID string) int64 {
	f.t.Helper()
	n, err := countMembers(f.db, teamID)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) captainCount(teamID string) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.TeamMembership{}).
		Where("team_id = ? AND role = ?", teamID, models.RoleCaptain).Count(&n).Error)
	return n
}

func (f *fixture) recruiting(teamID string) bool {
	f.t.Helper()
	var team models.Team
	require.NoError(f.t, f.db.Where("id = ?", teamID).First(&team).Error)
	return team.IsRecruiting
}

// checkRosterInvariants asserts the properties every committed state keeps.
func (f *fixture) checkRosterInvariants(teamID string) {
	f.t.Helper()
	n := f.memberCount(teamID)
	require.LessOrEqual(f.t, n, int64(models.MaxRosterSize))
	require.LessOrEqual(f.t, f.captainCount(teamID), int64(1))
	if f.recruiting(teamID) {
		require.Less(f.t, n, int64(models.MaxRosterSize))
	}

	var members []models.TeamMembership
	require.NoError(f.t, f.db.Where("team_id = ?", teamID).Find(&members).Error)
	for _, m := range members {
		var p models.Player
		require.NoError(f.t, f.db.Where("id = ?", m.PlayerID).First(&p).Error)
		require.NotNil(f.t, p.TeamID)
		require.Equal(f.t, teamID, *p.TeamID)
	}
}
