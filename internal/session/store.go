// Package session owns the single in-process buzzer session.
//
// Every operation holds one mutex for its whole read-modify-write span, and
// every mutation publishes the resulting snapshot before the lock is
// released, so subscribers observe snapshots in mutation order.
package session

import (
	"crypto/rand"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/playperu/buzzer/internal/buzzer"
	"github.com/playperu/buzzer/internal/metrics"
)

const sessionIDLength = 6

// Publisher receives every snapshot produced by a mutation. It is called with
// the store lock held and must not block.
type Publisher interface {
	Publish(s buzzer.Session)
}

// RoundObserver receives rounds whose non-empty ranking is being discarded.
// It is called with the store lock held and must not block.
type RoundObserver interface {
	RoundClosed(r buzzer.Round)
}

type Option func(*Store)

func WithClock(c clockwork.Clock) Option {
	return func(s *Store) { s.clock = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.pub = p }
}

func WithRoundObserver(o RoundObserver) Option {
	return func(s *Store) { s.rounds = o }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

type Store struct {
	mu sync.Mutex

	sessionID string
	active    bool
	accepting bool
	players   []buzzer.Player
	byID      map[string]buzzer.Player
	ranking   []buzzer.BuzzRecord
	buzzed    map[string]struct{}

	round         int
	roundOpenedAt time.Time
	roundReported bool

	clock   clockwork.Clock
	pub     Publisher
	rounds  RoundObserver
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewStore returns a store holding an inactive session and publishes that
// initial snapshot so viewers attaching before the first create see it.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessionID: newSessionID(),
		byID:      make(map[string]buzzer.Player),
		buzzed:    make(map[string]struct{}),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.Discard()
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	s.mu.Lock()
	s.publishLocked()
	s.mu.Unlock()
	return s
}

// Create replaces the session wholesale with a fresh active one.
func (s *Store) Create() buzzer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeRoundLocked()
	s.sessionID = newSessionID()
	s.active = true
	s.accepting = false
	s.players = nil
	s.byID = make(map[string]buzzer.Player)
	s.ranking = nil
	s.buzzed = make(map[string]struct{})
	s.round = 0
	s.roundReported = false

	s.logger.Info("session created", "session_id", s.sessionID)
	return s.commitLocked("create")
}

// State returns a deep copy of the current session.
func (s *Store) State() buzzer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Join validates team and name and appends a new player.
func (s *Store) Join(team buzzer.Team, name string) (buzzer.Player, error) {
	name, err := buzzer.ValidateJoin(team, name)
	if err != nil {
		return buzzer.Player{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := buzzer.Player{
		ID:       uuid.NewString(),
		Team:     team,
		Name:     name,
		JoinedAt: s.clock.Now(),
	}
	s.players = append(s.players, p)
	s.byID[p.ID] = p

	s.metrics.Joins.Inc()
	s.logger.Info("player joined", "session_id", s.sessionID, "player_id", p.ID, "team", p.Team)
	s.commitLocked("join")
	return p, nil
}

// Leave removes a player. Buzzes already ranked for the player are kept.
// It reports whether the player was known.
func (s *Store) Leave(playerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[playerID]; !ok {
		return false
	}
	delete(s.byID, playerID)
	s.players = slices.DeleteFunc(s.players, func(p buzzer.Player) bool {
		return p.ID == playerID
	})

	s.logger.Info("player left", "session_id", s.sessionID, "player_id", playerID)
	s.commitLocked("leave")
	return true
}

// StartAccepting opens a new round. The ranking is cleared on every call,
// including when answers are already being accepted.
func (s *Store) StartAccepting() buzzer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeRoundLocked()
	s.accepting = true
	s.clearRankingLocked()
	s.round++
	s.roundOpenedAt = s.clock.Now()

	return s.commitLocked("start_accepting")
}

func (s *Store) StopAccepting() buzzer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accepting = false
	return s.commitLocked("stop_accepting")
}

// Reset clears the ranking and stops accepting without changing the session id.
func (s *Store) Reset() buzzer.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeRoundLocked()
	s.accepting = false
	s.clearRankingLocked()
	return s.commitLocked("reset")
}

// Buzz ranks playerID in the current round. Late, duplicate and unknown
// buzzes all come back as success=false without touching the ranking.
func (s *Store) Buzz(playerID string) buzzer.BuzzResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	reason := s.checkBuzzLocked(playerID)
	if reason != buzzer.RejectNone {
		s.metrics.Buzzes.WithLabelValues(string(reason)).Inc()
		s.logger.Debug("buzz rejected", "player_id", playerID, "reason", reason)
		return buzzer.BuzzResult{}
	}

	p := s.byID[playerID]
	position := len(s.ranking) + 1
	s.ranking = append(s.ranking, buzzer.BuzzRecord{
		PlayerID:   p.ID,
		Team:       p.Team,
		PlayerName: p.Name,
		Timestamp:  s.clock.Now(),
		Position:   position,
	})
	s.buzzed[playerID] = struct{}{}

	s.metrics.Buzzes.WithLabelValues("accepted").Inc()
	s.logger.Info("buzz accepted", "player_id", playerID, "team", p.Team, "position", position)
	s.commitLocked("buzz")
	return buzzer.BuzzResult{Success: true, Position: &position}
}

func (s *Store) checkBuzzLocked(playerID string) buzzer.RejectReason {
	if !s.accepting {
		return buzzer.RejectNotAccepting
	}
	if _, ok := s.buzzed[playerID]; ok {
		return buzzer.RejectDuplicate
	}
	if _, ok := s.byID[playerID]; !ok {
		return buzzer.RejectUnknownPlayer
	}
	return buzzer.RejectNone
}

func (s *Store) clearRankingLocked() {
	s.ranking = nil
	clear(s.buzzed)
	s.roundReported = false
}

// Flush hands the current ranking to the round observer without changing the
// session. It is meant for shutdown, so a round that was stopped but never
// cleared still reaches the observer. A flushed round is not reported again.
func (s *Store) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeRoundLocked()
}

// closeRoundLocked hands the current ranking to the round observer when it
// is about to be discarded.
func (s *Store) closeRoundLocked() {
	if s.rounds == nil || len(s.ranking) == 0 || s.roundReported {
		return
	}
	s.roundReported = true
	s.rounds.RoundClosed(buzzer.Round{
		SessionID: s.sessionID,
		Number:    s.round,
		OpenedAt:  s.roundOpenedAt,
		ClosedAt:  s.clock.Now(),
		Ranking:   slices.Clone(s.ranking),
	})
}

func (s *Store) commitLocked(op string) buzzer.Session {
	s.metrics.Mutations.WithLabelValues(op).Inc()
	return s.publishLocked()
}

func (s *Store) publishLocked() buzzer.Session {
	snap := s.snapshotLocked()
	if s.pub != nil {
		// The publisher gets its own copy so callers may keep the returned one.
		s.pub.Publish(s.snapshotLocked())
	}
	return snap
}

func (s *Store) snapshotLocked() buzzer.Session {
	players := make([]buzzer.Player, len(s.players))
	copy(players, s.players)
	ranking := make([]buzzer.BuzzRecord, len(s.ranking))
	copy(ranking, s.ranking)

	return buzzer.Session{
		SessionID:        s.sessionID,
		Active:           s.active,
		AcceptingAnswers: s.accepting,
		Players:          players,
		BuzzRanking:      ranking,
	}
}

func newSessionID() string {
	return rand.Text()[:sessionIDLength]
}
