// Package sqlite persists demo runs and their pipeline events in a local
// SQLite file. The event tables mirror the ClickHouse sink schema, so an
// event's insert statement works against either.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/farwydi/actionpipe"
	"github.com/farwydi/actionpipe/store/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Run describes one demo invocation.
type Run struct {
	ID        string
	Source    string
	Width     int
	Height    int
	FPS       float64
	StartedAt time.Time
}

// Store is a SQLite-backed results store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the results store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateRun records the start of a demo run.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO runs (run_id, source, width, height, fps, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Source,
		run.Width,
		run.Height,
		run.FPS,
		run.StartedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishRun closes out a run with its processed frame count.
func (s *Store) FinishRun(ctx context.Context, runID string, frames int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE runs SET finished_at = ?, frames = ? WHERE run_id = ?`,
		time.Now().UTC().UnixMilli(),
		frames,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// SaveEvents inserts a batch of events. Events sharing an insert statement
// go through one prepared statement in one transaction.
func (s *Store) SaveEvents(ctx context.Context, events []actionpipe.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	grouped := map[string][]actionpipe.Event{}
	for _, event := range events {
		grouped[event.SQL()] = append(grouped[event.SQL()], event)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for query, group := range grouped {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		for _, event := range group {
			if _, err := stmt.ExecContext(ctx, event.ToExec()...); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("insert event: %w", err)
			}
		}
		if err := stmt.Close(); err != nil {
			return fmt.Errorf("close insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit events: %w", err)
	}
	return nil
}

// ListActionEvents returns a run's action events ordered by millis, then
// track ID, then descending score.
func (s *Store) ListActionEvents(ctx context.Context, runID string) ([]actionpipe.ActionEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT run_id, timestamp, millis, track_id,
		        box_left, box_top, box_right, box_bottom,
		        action_id, action, score
		 FROM action_events
		 WHERE run_id = ?
		 ORDER BY millis ASC, track_id ASC, score DESC`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list action events: %w", err)
	}
	defer rows.Close()

	var events []actionpipe.ActionEvent
	for rows.Next() {
		var e actionpipe.ActionEvent
		if err := rows.Scan(
			&e.RunID,
			&e.Timestamp,
			&e.Millis,
			&e.TrackID,
			&e.Box.Left,
			&e.Box.Top,
			&e.Box.Right,
			&e.Box.Bottom,
			&e.ActionID,
			&e.Action,
			&e.Score,
		); err != nil {
			return nil, fmt.Errorf("list action events: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list action events: %w", err)
	}
	return events, nil
}

// CountTrackEvents returns the number of tracked boxes stored for a run.
func (s *Store) CountTrackEvents(ctx context.Context, runID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM track_events WHERE run_id = ?`,
		runID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count track events: %w", err)
	}
	return count, nil
}
