// Package sqliterepo is the node-local durable store for Deployment history
// and Agent Registry snapshots, backed by modernc.org/sqlite (the pure-Go
// driver, adopted in place of the teacher's cgo mattn/go-sqlite3 to keep the
// binary cgo-free). Schema and WAL settings are adapted from the teacher's
// offline queue (agent/internal/transport/offline.go); spec §1 calls the
// on-disk encoding out-of-core, but the core still needs the repository
// contract this package implements it through.
package sqliterepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/chimerahq/chimera/internal/domain"
)

// DeploymentRecord is a durable snapshot of a Deployment at a point in time.
type DeploymentRecord struct {
	SessionID    string
	ConfigPath   string
	Status       domain.DeploymentStatus
	Fingerprint  string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists Deployment snapshots and Agent Registry heartbeats in a
// single SQLite database opened in WAL mode for concurrent reader access.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path and
// migrates its schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS deployments (
			session_id TEXT PRIMARY KEY,
			config_path TEXT NOT NULL,
			status TEXT NOT NULL,
			fingerprint TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS agent_heartbeats (
			node_id TEXT PRIMARY KEY,
			production INTEGER NOT NULL DEFAULT 0,
			consecutive_drift INTEGER NOT NULL DEFAULT 0,
			last_heartbeat DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS health_report_outbox (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			payload BLOB NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_created_at ON health_report_outbox(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sqlite store: %w", err)
		}
	}
	return nil
}

// SaveDeployment upserts a Deployment's current snapshot.
func (s *Store) SaveDeployment(ctx context.Context, d domain.Deployment) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deployments (session_id, config_path, status, fingerprint, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			status = excluded.status,
			fingerprint = excluded.fingerprint,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at
	`, d.SessionID.String(), d.ConfigPath.String(), string(d.Status), d.Fingerprint.String(), d.ErrorMessage, d.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("save deployment %s: %w", d.SessionID, err)
	}
	return nil
}

// LoadDeployment returns the last saved snapshot for sessionID.
func (s *Store) LoadDeployment(ctx context.Context, sessionID string) (DeploymentRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, config_path, status, fingerprint, error_message, created_at, updated_at
		FROM deployments WHERE session_id = ?
	`, sessionID)

	var rec DeploymentRecord
	var status string
	if err := row.Scan(&rec.SessionID, &rec.ConfigPath, &status, &rec.Fingerprint, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return DeploymentRecord{}, false, nil
		}
		return DeploymentRecord{}, false, fmt.Errorf("load deployment %s: %w", sessionID, err)
	}
	rec.Status = domain.DeploymentStatus(status)
	return rec, true, nil
}

// RecentDeployments returns the most recently updated deployments, newest
// first, up to limit.
func (s *Store) RecentDeployments(ctx context.Context, limit int) ([]DeploymentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, config_path, status, fingerprint, error_message, created_at, updated_at
		FROM deployments ORDER BY updated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list deployments: %w", err)
	}
	defer rows.Close()

	var out []DeploymentRecord
	for rows.Next() {
		var rec DeploymentRecord
		var status string
		if err := rows.Scan(&rec.SessionID, &rec.ConfigPath, &status, &rec.Fingerprint, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan deployment row: %w", err)
		}
		rec.Status = domain.DeploymentStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveHeartbeat upserts a node's heartbeat and drift-counter state, so the
// Agent Registry survives process restarts.
func (s *Store) SaveHeartbeat(ctx context.Context, nodeID string, production bool, consecutiveDrift int, at time.Time) error {
	prod := 0
	if production {
		prod = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_heartbeats (node_id, production, consecutive_drift, last_heartbeat)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			production = excluded.production,
			consecutive_drift = excluded.consecutive_drift,
			last_heartbeat = excluded.last_heartbeat
	`, nodeID, prod, consecutiveDrift, at)
	if err != nil {
		return fmt.Errorf("save heartbeat %s: %w", nodeID, err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
