// Package archive keeps a history of finished buzzer rounds in SQLite.
//
// The session store reports closed rounds while holding its lock, so the
// Recorder only queues them; a single worker goroutine writes them out.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/playperu/buzzer/internal/buzzer"
	"github.com/playperu/buzzer/internal/metrics"
)

const (
	queueSize    = 64
	writeTimeout = 5 * time.Second
	timeLayout   = "2006-01-02T15:04:05.000000000Z07:00" // fixed width so text order is time order

	DefaultListLimit = 20
	MaxListLimit     = 200
)

// ErrDisabled is returned by a nil Recorder.
var ErrDisabled = errors.New("round archive disabled")

type Recorder struct {
	db      *sql.DB
	queue   chan buzzer.Round
	logger  *slog.Logger
	metrics *metrics.Metrics

	dropped    atomic.Int64
	dropWarner rate.Sometimes
}

func NewRecorder(db *sql.DB, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	return &Recorder{
		db:      db,
		queue:   make(chan buzzer.Round, queueSize),
		logger:  logger,
		metrics: m,

		dropWarner: rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// RoundClosed queues r for writing. It drops the round when the queue is full.
func (r *Recorder) RoundClosed(round buzzer.Round) {
	select {
	case r.queue <- round:
	default:
		total := r.dropped.Add(1)
		r.dropWarner.Do(func() {
			r.logger.Warn("archive queue full, dropping round",
				"session_id", round.SessionID,
				"round", round.Number,
				"dropped_total", total,
			)
		})
	}
}

// Run writes queued rounds until ctx is done, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case round := <-r.queue:
			r.write(context.Background(), round)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case round := <-r.queue:
			r.write(context.Background(), round)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, round buzzer.Round) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := r.Save(ctx, round); err != nil {
		r.logger.Error("archiving round failed",
			"session_id", round.SessionID,
			"round", round.Number,
			"error", err,
		)
		return
	}
	r.metrics.RoundsArchived.Inc()
	r.logger.Info("round archived",
		"session_id", round.SessionID,
		"round", round.Number,
		"buzzes", len(round.Ranking),
	)
}

// Save writes one round and its ranking in a single transaction.
func (r *Recorder) Save(ctx context.Context, round buzzer.Round) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var roundID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO rounds (session_id, number, opened_at, closed_at)
		VALUES (?, ?, ?, ?)
		RETURNING id
	`, round.SessionID, round.Number, formatTime(round.OpenedAt), formatTime(round.ClosedAt)).Scan(&roundID)
	if err != nil {
		return fmt.Errorf("inserting round: %w", err)
	}

	for _, b := range round.Ranking {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO round_buzzes (round_id, position, player_id, team, player_name, buzzed_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, roundID, b.Position, b.PlayerID, string(b.Team), b.PlayerName, formatTime(b.Timestamp))
		if err != nil {
			return fmt.Errorf("inserting buzz %d: %w", b.Position, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing round: %w", err)
	}
	return nil
}

// List returns the most recently closed rounds, newest first.
func (r *Recorder) List(ctx context.Context, limit int) ([]buzzer.Round, error) {
	if r == nil {
		return nil, ErrDisabled
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, number, opened_at, closed_at
		FROM rounds
		ORDER BY closed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing rounds: %w", err)
	}

	var (
		ids    []int64
		rounds []buzzer.Round
	)
	for rows.Next() {
		var (
			id               int64
			round            buzzer.Round
			opened, closedAt string
		)
		if err := rows.Scan(&id, &round.SessionID, &round.Number, &opened, &closedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning round: %w", err)
		}
		if round.OpenedAt, err = parseTime(opened); err != nil {
			rows.Close()
			return nil, fmt.Errorf("round %d opened_at: %w", id, err)
		}
		if round.ClosedAt, err = parseTime(closedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("round %d closed_at: %w", id, err)
		}
		round.Ranking = []buzzer.BuzzRecord{}
		ids = append(ids, id)
		rounds = append(rounds, round)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rounds: %w", err)
	}

	for i, id := range ids {
		ranking, err := r.ranking(ctx, id)
		if err != nil {
			return nil, err
		}
		rounds[i].Ranking = ranking
	}
	return rounds, nil
}

func (r *Recorder) ranking(ctx context.Context, roundID int64) ([]buzzer.BuzzRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT position, player_id, team, player_name, buzzed_at
		FROM round_buzzes
		WHERE round_id = ?
		ORDER BY position
	`, roundID)
	if err != nil {
		return nil, fmt.Errorf("listing buzzes for round %d: %w", roundID, err)
	}
	defer rows.Close()

	ranking := []buzzer.BuzzRecord{}
	for rows.Next() {
		var (
			b        buzzer.BuzzRecord
			team, at string
		)
		if err := rows.Scan(&b.Position, &b.PlayerID, &team, &b.PlayerName, &at); err != nil {
			return nil, fmt.Errorf("scanning buzz: %w", err)
		}
		b.Team = buzzer.Team(team)
		ts, err := parseTime(at)
		if err != nil {
			return nil, fmt.Errorf("round %d buzz %d buzzed_at: %w", roundID, b.Position, err)
		}
		b.Timestamp = ts
		ranking = append(ranking, b)
	}
	return ranking, rows.Err()
}

// Check reports whether the archive database is reachable.
func (r *Recorder) Check(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
