package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"squad-hub/models"

	"github.com/stretchr/testify/require"
)

func TestRequestToJoinChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captain, applicant := f.player("alpha"), f.player("bravo")
	team := f.team(captain, "alpha")

	_, err := f.requests.RequestToJoin(ctx, "missing", applicant, nil)
	require.ErrorIs(t, err, ErrTeamNotFound)

	_, err = f.requests.RequestToJoin(ctx, team.ID, captain, nil)
	require.ErrorIs(t, err, ErrAlreadyOnTeam)

	msg := "  entry fragger, 3k hours "
	req, err := f.requests.RequestToJoin(ctx, team.ID, applicant, &msg)
	require.NoError(t, err)
	require.Equal(t, models.JoinRequestPending, req.Status)
	require.Equal(t, "entry fragger, 3k hours", *req.Message)

	_, err = f.requests.RequestToJoin(ctx, team.ID, applicant, nil)
	require.ErrorIs(t, err, ErrDuplicateRequest)

	closed := false
	_, err = f.teams.UpdateTeam(ctx, team.ID, captain, TeamPatch{IsRecruiting: &closed})
	require.NoError(t, err)
	_, err = f.requests.RequestToJoin(ctx, team.ID, f.player("charlie"), nil)
	require.ErrorIs(t, err, ErrTeamNotRecruiting)
}

func TestConcurrentDuplicateRequests(t *testing.T) {
	f := newFixture(t)
	captain, applicant := f.player("alpha"), f.player("bravo")
	team := f.team(captain, "alpha")

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.requests.RequestToJoin(context.Background(), team.ID, applicant, nil)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrDuplicateRequest)
	}
	require.Equal(t, 1, ok)
}

func TestRespondToRequestReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captain, applicant := f.player("alpha"), f.player("bravo")
	team := f.team(captain, "alpha")
	req, err := f.requests.RequestToJoin(ctx, team.ID, applicant, nil)
	require.NoError(t, err)

	_, err = f.requests.RespondToRequest(ctx, req.ID, team.ID, applicant, false)
	require.ErrorIs(t, err, ErrNotCaptain)

	rejected, err := f.requests.RespondToRequest(ctx, req.ID, team.ID, captain, false)
	require.NoError(t, err)
	require.Equal(t, models.JoinRequestRejected, rejected.Status)
	require.Nil(t, f.reload(applicant).TeamID)

	_, err = f.requests.RespondToRequest(ctx, req.ID, team.ID, captain, true)
	require.ErrorIs(t, err, ErrAlreadyResolved)

	// A rejected request does not block a new one.
	_, err = f.requests.RequestToJoin(ctx, team.ID, applicant, nil)
	require.NoError(t, err)
}

func TestRespondToRequestNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alphaCaptain, bravoCaptain, applicant := f.player("alpha"), f.player("bravo"), f.player("charlie")
	alpha := f.team(alphaCaptain, "alpha")
	bravo := f.team(bravoCaptain, "bravo")
	req, err := f.requests.RequestToJoin(ctx, alpha.ID, applicant, nil)
	require.NoError(t, err)

	_, err = f.requests.RespondToRequest(ctx, "missing", alpha.ID, alphaCaptain, true)
	require.ErrorIs(t, err, ErrRequestNotFound)

	// A request only resolves within its own team.
	_, err = f.requests.RespondToRequest(ctx, req.ID, bravo.ID, bravoCaptain, true)
	require.ErrorIs(t, err, ErrRequestNotFound)
}

// Scenario: a captain accepts a fourth member, then a fifth; the fifth
// acceptance closes recruiting, and a sixth request is refused.
func TestAcceptFillsRosterAndClosesRecruiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captain := f.player("igl")
	team := f.team(captain, "alpha")
	for i := 0; i < 3; i++ {
		f.join(team, captain, f.player(fmt.Sprintf("m%d", i)))
	}
	require.True(t, f.recruiting(team.ID))

	fifth := f.player("fifth")
	req, err := f.requests.RequestToJoin(ctx, team.ID, fifth, nil)
	require.NoError(t, err)
	accepted, err := f.requests.RespondToRequest(ctx, req.ID, team.ID, captain, true)
	require.NoError(t, err)
	require.Equal(t, models.JoinRequestAccepted, accepted.Status)

	require.EqualValues(t, 5, f.memberCount(team.ID))
	require.False(t, f.recruiting(team.ID))
	m, err := membershipOf(f.db, team.ID, fifth.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleEntry, m.Role)
	require.Equal(t, team.ID, *f.reload(fifth).TeamID)

	_, err = f.requests.RequestToJoin(ctx, team.ID, f.player("sixth"), nil)
	require.ErrorIs(t, err, ErrTeamNotRecruiting)
	f.checkRosterInvariants(team.ID)
}

// Scenario: a pending request outlives the roster filling up. Accepting it
// fails and the request stays pending.
func TestAcceptOnFullTeamKeepsRequestPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captain := f.player("igl")
	team := f.team(captain, "alpha")

	late := f.player("late")
	lateReq, err := f.requests.RequestToJoin(ctx, team.ID, late, nil)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		f.join(team, captain, f.player(fmt.Sprintf("m%d", i)))
	}

	_, err = f.requests.RespondToRequest(ctx, lateReq.ID, team.ID, captain, true)
	require.ErrorIs(t, err, ErrTeamFull)

	var stored models.TeamJoinRequest
	require.NoError(t, f.db.Where("id = ?", lateReq.ID).First(&stored).Error)
	require.Equal(t, models.JoinRequestPending, stored.Status)
	require.Nil(t, f.reload(late).TeamID)

	// Rejecting it is still possible.
	_, err = f.requests.RespondToRequest(ctx, lateReq.ID, team.ID, captain, false)
	require.NoError(t, err)
	f.checkRosterInvariants(team.ID)
}

// Scenario: a player applies to two teams; once one accepts, the other
// team's acceptance fails and leaves that request pending.
func TestAcceptAfterJoiningElsewhere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alphaCaptain, bravoCaptain, applicant := f.player("alpha"), f.player("bravo"), f.player("charlie")
	alpha := f.team(alphaCaptain, "alpha")
	bravo := f.team(bravoCaptain, "bravo")

	toAlpha, err := f.requests.RequestToJoin(ctx, alpha.ID, applicant, nil)
	require.NoError(t, err)
	toBravo, err := f.requests.RequestToJoin(ctx, bravo.ID, applicant, nil)
	require.NoError(t, err)

	_, err = f.requests.RespondToRequest(ctx, toAlpha.ID, alpha.ID, alphaCaptain, true)
	require.NoError(t, err)

	_, err = f.requests.RespondToRequest(ctx, toBravo.ID, bravo.ID, bravoCaptain, true)
	require.ErrorIs(t, err, ErrAlreadyOnTeam)

	var stored models.TeamJoinRequest
	require.NoError(t, f.db.Where("id = ?", toBravo.ID).First(&stored).Error)
	require.Equal(t, models.JoinRequestPending, stored.Status)
	require.EqualValues(t, 1, f.memberCount(bravo.ID))
	require.Equal(t, alpha.ID, *f.reload(applicant).TeamID)
}

// Many captains' accepts racing for the last slots never overfill a team.
func TestConcurrentAcceptsRespectCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captain := f.player("igl")
	team := f.team(captain, "alpha")

	const applicants = 8
	reqs := make([]*models.TeamJoinRequest, applicants)
	for i := range reqs {
		req, err := f.requests.RequestToJoin(ctx, team.ID, f.player(fmt.Sprintf("a%d", i)), nil)
		require.NoError(t, err)
		reqs[i] = req
	}

	errs := make([]error, applicants)
	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.requests.RespondToRequest(context.Background(), id, team.ID, captain, true)
		}(i, req.ID)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
			continue
		}
		require.ErrorIs(t, err, ErrTeamFull)
	}
	require.Equal(t, models.MaxRosterSize-1, accepted)
	require.EqualValues(t, models.MaxRosterSize, f.memberCount(team.ID))
	require.False(t, f.recruiting(team.ID))
	f.checkRosterInvariants(team.ID)
}

func TestListRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captain := f.player("igl")
	team := f.team(captain, "alpha")
	a, b := f.player("a"), f.player("b")

	first, err := f.requests.RequestToJoin(ctx, team.ID, a, nil)
	require.NoError(t, err)
	second, err := f.requests.RequestToJoin(ctx, team.ID, b, nil)
	require.NoError(t, err)
	_, err = f.requests.RespondToRequest(ctx, first.ID, team.ID, captain, false)
	require.NoError(t, err)

	pending, err := f.requests.ListRequests(ctx, team.ID, captain, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)
	require.Equal(t, "b", pending[0].Player.Nickname)

	all, err := f.requests.ListRequests(ctx, team.ID, captain, RequestStatusAll)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID, "newest first")

	rejected, err := f.requests.ListRequests(ctx, team.ID, captain, "rejected")
	require.NoError(t, err)
	require.Len(t, rejected, 1)

	_, err = f.requests.ListRequests(ctx, team.ID, a, "")
	require.ErrorIs(t, err, ErrNotCaptain)
	_, err = f.requests.ListRequests(ctx, team.ID, captain, "maybe")
	require.Equal(t, KindInvalidInput, KindOf(err))
}

func TestListAndCancelMyRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	captain, applicant := f.player("igl"), f.player("a")
	team := f.team(captain, "alpha")

	req, err := f.requests.RequestToJoin(ctx, team.ID, applicant, nil)
	require.NoError(t, err)

	mine, err := f.requests.ListMyRequests(ctx, applicant)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, "alpha", mine[0].Team.Name)

	require.ErrorIs(t, f.requests.CancelRequest(ctx, req.ID, captain), ErrRequestNotFound)
	require.NoError(t, f.requests.CancelRequest(ctx, req.ID, applicant))
	require.ErrorIs(t, f.requests.CancelRequest(ctx, req.ID, applicant), ErrRequestNotFound)

	req, err = f.requests.RequestToJoin(ctx, team.ID, applicant, nil)
	require.NoError(t, err)
	_, err = f.requests.RespondToRequest(ctx, req.ID, team.ID, captain, false)
	require.NoError(t, err)
	require.ErrorIs(t, f.requests.CancelRequest(ctx, req.ID, applicant), ErrAlreadyResolved)
}
