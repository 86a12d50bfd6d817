package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Database keeps an audit trail of finished room sessions. Drawing state
// itself never touches disk; a restarted server starts with no rooms.
type Database struct {
	db *sql.DB
}

// One room from creation to deletion
type RoomSession struct {
	ID               int64     `json:"id"`
	RoomCode         string    `json:"room_code"`
	OpenedAt         time.Time `json:"opened_at"`
	ClosedAt         time.Time `json:"closed_at"`
	Operations       int       `json:"operations"`
	FinalHistorySize int       `json:"final_history_size"`
	PeakParticipants int       `json:"peak_participants"`
}

type Totals struct {
	Sessions   int `json:"sessions"`
	Operations int `json:"operations"`
}

func New(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_code TEXT NOT NULL,
		opened_at INTEGER NOT NULL,
		closed_at INTEGER NOT NULL,
		operations INTEGER NOT NULL DEFAULT 0,
		final_history_size INTEGER NOT NULL DEFAULT 0,
		peak_participants INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_room_sessions_code ON room_sessions(room_code);
	CREATE INDEX IF NOT EXISTS idx_room_sessions_closed_at ON room_sessions(closed_at DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveSessions inserts a batch of finished sessions in one transaction
func (d *Database) SaveSessions(ctx context.Context, sessions []RoomSession) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO room_sessions (room_code, opened_at, closed_at, operations, final_history_size, peak_participants)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range sessions {
		_, err := stmt.ExecContext(ctx,
			s.RoomCode, s.OpenedAt.UnixMilli(), s.ClosedAt.UnixMilli(),
			s.Operations, s.FinalHistorySize, s.PeakParticipants,
		)
		if err != nil {
			return fmt.Errorf("insert session for room %s: %w", s.RoomCode, err)
		}
	}

	return tx.Commit()
}

// ListSessions returns finished sessions, newest first. An empty roomCode
// lists every room.
func (d *Database) ListSessions(ctx context.Context, roomCode string, limit, offset int) ([]RoomSession, error) {
	query := `
		SELECT id, room_code, opened_at, closed_at, operations, final_history_size, peak_participants
		FROM room_sessions`
	args := []any{}
	if roomCode != "" {
		query += " WHERE room_code = ?"
		args = append(args, roomCode)
	}
	query += " ORDER BY closed_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []RoomSession{}
	for rows.Next() {
		var s RoomSession
		var opened, closed int64
		if err := rows.Scan(&s.ID, &s.RoomCode, &opened, &closed, &s.Operations, &s.FinalHistorySize, &s.PeakParticipants); err != nil {
			return nil, err
		}
		s.OpenedAt = time.UnixMilli(opened).UTC()
		s.ClosedAt = time.UnixMilli(closed).UTC()
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (d *Database) CountSessions(ctx context.Context, roomCode string) (int, error) {
	query := "SELECT COUNT(*) FROM room_sessions"
	args := []any{}
	if roomCode != "" {
		query += " WHERE room_code = ?"
		args = append(args, roomCode)
	}
	var count int
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

func (d *Database) GetTotals(ctx context.Context) (Totals, error) {
	var t Totals
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(operations), 0) FROM room_sessions",
	).Scan(&t.Sessions, &t.Operations)
	return t, err
}
