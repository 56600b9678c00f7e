package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "eseva/pkg/domain"
	audit "eseva/pkg/platform/audit"
	txcontext "eseva/pkg/platform/tx"
)

const selectEvents = `
	SELECT category, timestamp, user_id, subject, action, decision, reason, request_id, actor_id
	FROM audit_events`

// Store writes audit events to the audit_events table. Append uses the
// transaction carried by ctx when there is one.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	userID := uuid.NullUUID{UUID: uuid.UUID(event.UserID), Valid: !event.UserID.IsNil()}

	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO audit_events (id, category, timestamp, user_id, subject, action, decision, reason, request_id, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.New(), string(event.Category), event.Timestamp.UTC(), userID,
		event.Subject, event.Action, event.Decision, event.Reason, event.RequestID, event.ActorID,
	)
	if err != nil {
		return fmt.Errorf("append audit event %s: %w", event.Action, err)
	}
	return nil
}

// ListByUser returns a citizen's events, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID id.UserID) ([]audit.Event, error) {
	return s.query(ctx, selectEvents+` WHERE user_id = $1 ORDER BY timestamp ASC`, uuid.UUID(userID))
}

// ListBySubject returns the trail for one subject, typically an application id.
func (s *Store) ListBySubject(ctx context.Context, subject string) ([]audit.Event, error) {
	return s.query(ctx, selectEvents+` WHERE subject = $1 ORDER BY timestamp ASC`, subject)
}

// ListRecent returns up to limit events, newest first. A non-positive limit
// returns everything.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		return s.query(ctx, selectEvents+` ORDER BY timestamp DESC`)
	}
	return s.query(ctx, selectEvents+` ORDER BY timestamp DESC LIMIT $1`, limit)
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			e        audit.Event
			category string
			userID   uuid.NullUUID
		)
		if err := rows.Scan(&category, &e.Timestamp, &userID, &e.Subject, &e.Action,
			&e.Decision, &e.Reason, &e.RequestID, &e.ActorID); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		if userID.Valid {
			e.UserID = id.UserID(userID.UUID)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
