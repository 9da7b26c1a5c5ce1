// Package buzzer defines the core domain types of a buzzer round.
// It has no external dependencies.
package buzzer

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type Team string

const (
	TeamAlpha   Team = "Alpha"
	TeamBravo   Team = "Bravo"
	TeamCharlie Team = "Charlie"
	TeamDelta   Team = "Delta"
)

// Teams lists the fixed set of teams in display order.
var Teams = []Team{TeamAlpha, TeamBravo, TeamCharlie, TeamDelta}

func (t Team) Valid() bool {
	return slices.Contains(Teams, t)
}

type Player struct {
	ID       string    `json:"id"`
	Team     Team      `json:"team"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// BuzzRecord is one accepted buzz. Team and PlayerName are copied from the
// player at buzz time.
type BuzzRecord struct {
	PlayerID   string    `json:"playerId"`
	Team       Team      `json:"team"`
	PlayerName string    `json:"playerName"`
	Timestamp  time.Time `json:"timestamp"`
	Position   int       `json:"position"`
}

// Session is a point-in-time copy of the session record. Values returned by
// the store never share slices with its internal state.
type Session struct {
	SessionID        string       `json:"sessionId"`
	Active           bool         `json:"active"`
	AcceptingAnswers bool         `json:"acceptingAnswers"`
	Players          []Player     `json:"players"`
	BuzzRanking      []BuzzRecord `json:"buzzRanking"`
}

type BuzzResult struct {
	Success  bool `json:"success"`
	Position *int `json:"position"`
}

// RejectReason says why a buzz was not ranked. It never reaches the
// participant; the wire result is a plain success=false.
type RejectReason string

const (
	RejectNone          RejectReason = ""
	RejectNotAccepting  RejectReason = "not_accepting"
	RejectDuplicate     RejectReason = "duplicate"
	RejectUnknownPlayer RejectReason = "unknown_player"
)

// Round is a finished round handed to the archive.
type Round struct {
	SessionID string       `json:"sessionId"`
	Number    int          `json:"number"`
	OpenedAt  time.Time    `json:"openedAt"`
	ClosedAt  time.Time    `json:"closedAt"`
	Ranking   []BuzzRecord `json:"ranking"`
}

// ValidationError reports a rejected join. Session state is unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ValidateJoin checks a join request and returns the trimmed name.
func ValidateJoin(team Team, name string) (string, error) {
	if !team.Valid() {
		return "", &ValidationError{Field: "team", Message: fmt.Sprintf("%q is not one of %v", team, Teams)}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &ValidationError{Field: "name", Message: "must not be empty"}
	}
	return name, nil
}
