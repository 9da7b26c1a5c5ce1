package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/buzzer/internal/buzzer"
	"github.com/playperu/buzzer/internal/metrics"
)

// recordingPublisher keeps every published snapshot.
type recordingPublisher struct {
	mu    sync.Mutex
	snaps []buzzer.Session
}

func (p *recordingPublisher) Publish(s buzzer.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func (p *recordingPublisher) last() buzzer.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snaps[len(p.snaps)-1]
}

type recordingObserver struct {
	rounds []buzzer.Round
}

func (o *recordingObserver) RoundClosed(r buzzer.Round) {
	o.rounds = append(o.rounds, r)
}

func join(t *testing.T, s *Store, team buzzer.Team, name string) buzzer.Player {
	t.Helper()
	p, err := s.Join(team, name)
	require.NoError(t, err)
	return p
}

func TestStore_NewStoreIsInactive(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(WithPublisher(pub))

	state := s.State()
	assert.False(t, state.Active)
	assert.False(t, state.AcceptingAnswers)
	assert.Len(t, state.SessionID, sessionIDLength)
	assert.NotNil(t, state.Players)
	assert.NotNil(t, state.BuzzRanking)
	assert.Equal(t, 1, pub.count(), "initial snapshot published")
}

func TestStore_CreateReplacesSession(t *testing.T) {
	s := NewStore()
	s.Create()
	join(t, s, buzzer.TeamAlpha, "Ana")
	s.StartAccepting()

	second := s.Create()
	assert.True(t, second.Active)
	assert.False(t, second.AcceptingAnswers)
	assert.Empty(t, second.Players)
	assert.Empty(t, second.BuzzRanking)
	assert.Len(t, second.SessionID, sessionIDLength)
}

func TestStore_JoinSameTeam(t *testing.T) {
	s := NewStore()
	s.Create()

	ana := join(t, s, buzzer.TeamAlpha, "Ana")
	beto := join(t, s, buzzer.TeamAlpha, "  Beto  ")

	assert.NotEqual(t, ana.ID, beto.ID)
	assert.Equal(t, "Beto", beto.Name)

	state := s.State()
	require.Len(t, state.Players, 2)
	assert.Equal(t, buzzer.TeamAlpha, state.Players[0].Team)
	assert.Equal(t, buzzer.TeamAlpha, state.Players[1].Team)
	assert.Equal(t, ana.ID, state.Players[0].ID, "join order preserved")
}

func TestStore_JoinRejectsInvalidInput(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(WithPublisher(pub))
	s.Create()
	before := pub.count()

	for _, name := range []string{"", "   "} {
		_, err := s.Join(buzzer.TeamBravo, name)
		var verr *buzzer.ValidationError
		require.True(t, errors.As(err, &verr), "name %q", name)
		assert.Equal(t, "name", verr.Field)
	}

	_, err := s.Join("Omega", "Ana")
	var verr *buzzer.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "team", verr.Field)

	assert.Empty(t, s.State().Players)
	assert.Equal(t, before, pub.count(), "rejected joins do not publish")
}

func TestStore_BuzzScenario(t *testing.T) {
	s := NewStore()
	s.Create()
	p1 := join(t, s, buzzer.TeamAlpha, "Ana")
	p2 := join(t, s, buzzer.TeamBravo, "Beto")
	s.StartAccepting()

	r1 := s.Buzz(p1.ID)
	r2 := s.Buzz(p2.ID)
	r3 := s.Buzz(p1.ID)

	require.True(t, r1.Success)
	require.NotNil(t, r1.Position)
	assert.Equal(t, 1, *r1.Position)
	require.True(t, r2.Success)
	assert.Equal(t, 2, *r2.Position)
	assert.False(t, r3.Success)
	assert.Nil(t, r3.Position)

	ranking := s.State().BuzzRanking
	require.Len(t, ranking, 2)
	assert.Equal(t, p1.ID, ranking[0].PlayerID)
	assert.Equal(t, 1, ranking[0].Position)
	assert.Equal(t, "Ana", ranking[0].PlayerName)
	assert.Equal(t, buzzer.TeamAlpha, ranking[0].Team)
	assert.Equal(t, p2.ID, ranking[1].PlayerID)
	assert.Equal(t, 2, ranking[1].Position)
}

func TestStore_BuzzWhileNotAccepting(t *testing.T) {
	s := NewStore()
	s.Create()
	p := join(t, s, buzzer.TeamCharlie, "Caro")

	res := s.Buzz(p.ID)
	assert.False(t, res.Success)
	assert.Nil(t, res.Position)
	assert.Empty(t, s.State().BuzzRanking)

	s.StartAccepting()
	require.True(t, s.Buzz(p.ID).Success)
	s.StopAccepting()

	other := join(t, s, buzzer.TeamDelta, "Dani")
	assert.False(t, s.Buzz(other.ID).Success)
	assert.Len(t, s.State().BuzzRanking, 1, "stop keeps the ranking")
}

func TestStore_BuzzUnknownPlayer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	s := NewStore(WithMetrics(m))
	s.Create()
	s.StartAccepting()

	res := s.Buzz("forged-id")
	assert.False(t, res.Success)
	assert.Empty(t, s.State().BuzzRanking)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Buzzes.WithLabelValues(string(buzzer.RejectUnknownPlayer))))
}

func TestStore_StartAcceptingAlwaysClearsRanking(t *testing.T) {
	s := NewStore()
	s.Create()
	p := join(t, s, buzzer.TeamAlpha, "Ana")
	s.StartAccepting()
	require.True(t, s.Buzz(p.ID).Success)

	state := s.StartAccepting()
	assert.True(t, state.AcceptingAnswers)
	assert.Empty(t, state.BuzzRanking)

	// A new round lets the same player buzz again.
	res := s.Buzz(p.ID)
	require.True(t, res.Success)
	assert.Equal(t, 1, *res.Position)
}

func TestStore_ResetFromEitherState(t *testing.T) {
	s := NewStore()
	s.Create()
	p := join(t, s, buzzer.TeamAlpha, "Ana")
	s.StartAccepting()
	s.Buzz(p.ID)

	state := s.Reset()
	assert.False(t, state.AcceptingAnswers)
	assert.Empty(t, state.BuzzRanking)
	assert.Len(t, state.Players, 1, "reset keeps players")

	again := s.Reset()
	assert.False(t, again.AcceptingAnswers)
	assert.Equal(t, state.SessionID, again.SessionID)
}

func TestStore_EveryMutationPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(WithPublisher(pub))
	base := pub.count()

	s.Create()
	p := join(t, s, buzzer.TeamAlpha, "Ana")
	s.StopAccepting() // no-op still publishes
	s.StartAccepting()
	s.Buzz(p.ID)
	s.Buzz(p.ID) // rejected, no publish
	s.Reset()

	assert.Equal(t, base+6, pub.count())
	assert.Empty(t, pub.last().BuzzRanking)
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	s.Create()
	join(t, s, buzzer.TeamAlpha, "Ana")

	state := s.State()
	state.Players[0].Name = "Mallory"
	state.Players = append(state.Players, buzzer.Player{ID: "x"})

	fresh := s.State()
	require.Len(t, fresh.Players, 1)
	assert.Equal(t, "Ana", fresh.Players[0].Name)
}

func TestStore_LeaveKeepsRankedBuzz(t *testing.T) {
	s := NewStore()
	s.Create()
	p := join(t, s, buzzer.TeamAlpha, "Ana")
	s.StartAccepting()
	require.True(t, s.Buzz(p.ID).Success)

	assert.True(t, s.Leave(p.ID))
	assert.False(t, s.Leave(p.ID), "second leave is a no-op")

	state := s.State()
	assert.Empty(t, state.Players)
	require.Len(t, state.BuzzRanking, 1)
	assert.Equal(t, "Ana", state.BuzzRanking[0].PlayerName)

	s.StartAccepting()
	assert.False(t, s.Buzz(p.ID).Success, "departed players cannot buzz")
}

func TestStore_Timestamps(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC))
	s := NewStore(WithClock(clock))
	s.Create()

	p := join(t, s, buzzer.TeamAlpha, "Ana")
	assert.Equal(t, clock.Now(), p.JoinedAt)

	s.StartAccepting()
	clock.Advance(1500 * time.Millisecond)
	s.Buzz(p.ID)

	assert.Equal(t, clock.Now(), s.State().BuzzRanking[0].Timestamp)
}

func TestStore_RoundObserver(t *testing.T) {
	obs := &recordingObserver{}
	clock := clockwork.NewFakeClock()
	s := NewStore(WithRoundObserver(obs), WithClock(clock))
	s.Create()
	p1 := join(t, s, buzzer.TeamAlpha, "Ana")
	p2 := join(t, s, buzzer.TeamBravo, "Beto")

	s.StartAccepting()
	opened := clock.Now()
	s.Buzz(p2.ID)
	s.Buzz(p1.ID)
	clock.Advance(time.Minute)
	s.StopAccepting()
	assert.Empty(t, obs.rounds, "stop keeps the round open")

	s.StartAccepting()
	require.Len(t, obs.rounds, 1)
	r := obs.rounds[0]
	assert.Equal(t, 1, r.Number)
	assert.Equal(t, opened, r.OpenedAt)
	assert.Equal(t, clock.Now(), r.ClosedAt)
	require.Len(t, r.Ranking, 2)
	assert.Equal(t, p2.ID, r.Ranking[0].PlayerID)

	// Empty rounds are not reported.
	s.Reset()
	assert.Len(t, obs.rounds, 1)

	s.StartAccepting()
	s.Buzz(p1.ID)
	s.Create()
	require.Len(t, obs.rounds, 2)
	assert.Equal(t, 3, obs.rounds[1].Number)
}

func TestStore_FlushReportsStoppedRound(t *testing.T) {
	obs := &recordingObserver{}
	pub := &recordingPublisher{}
	s := NewStore(WithRoundObserver(obs), WithPublisher(pub))
	s.Create()
	p := join(t, s, buzzer.TeamCharlie, "Caro")

	s.Flush()
	assert.Empty(t, obs.rounds, "nothing ranked yet")

	s.StartAccepting()
	s.Buzz(p.ID)
	s.StopAccepting()
	published := len(pub.snaps)

	s.Flush()
	require.Len(t, obs.rounds, 1)
	assert.Equal(t, 1, obs.rounds[0].Number)
	assert.Len(t, obs.rounds[0].Ranking, 1)
	assert.Len(t, pub.snaps, published, "flush does not publish")
	assert.Len(t, s.State().BuzzRanking, 1, "flush keeps the ranking")

	// Neither a second flush nor the next reset reports the same round again.
	s.Flush()
	s.Reset()
	assert.Len(t, obs.rounds, 1)

	s.StartAccepting()
	s.Buzz(p.ID)
	s.Reset()
	assert.Len(t, obs.rounds, 2)
}

func TestStore_ConcurrentBuzzes(t *testing.T) {
	const players = 64

	s := NewStore()
	s.Create()
	ids := make([]string, players)
	for i := range ids {
		team := buzzer.Teams[i%len(buzzer.Teams)]
		ids[i] = join(t, s, team, fmt.Sprintf("player-%d", i)).ID
	}
	s.StartAccepting()

	positions := make([]int, players)
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			// Every player hammers the button a few times.
			for range 3 {
				res := s.Buzz(id)
				if res.Success {
					if positions[i] != 0 {
						return fmt.Errorf("player %d ranked twice", i)
					}
					positions[i] = *res.Position
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ranking := s.State().BuzzRanking
	require.Len(t, ranking, players)

	seen := make(map[string]bool, players)
	for i, rec := range ranking {
		assert.Equal(t, i+1, rec.Position, "positions are contiguous")
		assert.False(t, seen[rec.PlayerID], "player %s ranked twice", rec.PlayerID)
		seen[rec.PlayerID] = true
	}

	byID := make(map[string]int, players)
	for _, rec := range ranking {
		byID[rec.PlayerID] = rec.Position
	}
	for i, id := range ids {
		assert.Equal(t, byID[id], positions[i], "returned position matches ranking")
	}
}

func TestStore_ConcurrentMixedOperations(t *testing.T) {
	pub := &recordingPublisher{}
	s := NewStore(WithPublisher(pub))
	s.Create()
	s.StartAccepting()

	var g errgroup.Group
	for i := range 32 {
		g.Go(func() error {
			p, err := s.Join(buzzer.Teams[i%4], fmt.Sprintf("p%d", i))
			if err != nil {
				return err
			}
			s.Buzz(p.ID)
			if i%8 == 0 {
				s.StopAccepting()
				s.StartAccepting()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	for _, snap := range pub.snaps {
		for i, rec := range snap.BuzzRanking {
			assert.Equal(t, i+1, rec.Position, "no torn ranking in any published snapshot")
		}
	}
}
