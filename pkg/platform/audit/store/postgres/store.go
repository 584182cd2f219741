package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // registers the "postgres" driver

	audit "algodid/pkg/platform/audit"
)

// Schema creates the audit table. Applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS registry_audit_events (
	id          UUID PRIMARY KEY,
	category    TEXT        NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	action      TEXT        NOT NULL,
	did         TEXT        NOT NULL,
	app_id      BIGINT      NOT NULL,
	sender      TEXT        NOT NULL DEFAULT '',
	tx_id       TEXT        NOT NULL DEFAULT '',
	round       BIGINT      NOT NULL DEFAULT 0,
	funding     BIGINT      NOT NULL DEFAULT 0,
	request_id  TEXT        NOT NULL DEFAULT '',
	reason      TEXT        NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS registry_audit_events_did_idx ON registry_audit_events (did, occurred_at);
`

// Store implements audit.Store on PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate creates the audit table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate audit schema: %w", err)
	}
	return nil
}

// Append inserts an audit event.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := event.Category
	if category == "" {
		category = audit.AuditEvent(event.Action).Category()
	}
	query := `
		INSERT INTO registry_audit_events
			(id, category, occurred_at, action, did, app_id, sender, tx_id, round, funding, request_id, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		event.Action,
		event.DID,
		int64(event.AppID),
		event.Sender,
		event.TxID,
		int64(event.Round),
		int64(event.Funding),
		event.RequestID,
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListByDID returns the events recorded for did, oldest first.
func (s *Store) ListByDID(ctx context.Context, did string) ([]audit.Event, error) {
	query := `
		SELECT category, occurred_at, action, did, app_id, sender, tx_id, round, funding, request_id, reason
		FROM registry_audit_events
		WHERE did = $1
		ORDER BY occurred_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, did)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e                     audit.Event
			category              string
			appID, round, funding int64
		)
		if err := rows.Scan(&category, &e.Timestamp, &e.Action, &e.DID, &appID, &e.Sender, &e.TxID, &round, &funding, &e.RequestID, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		e.AppID = uint64(appID)
		e.Round = uint64(round)
		e.Funding = uint64(funding)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
