package loginsession

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eseva/internal/auth/models"
	id "eseva/pkg/domain"
	"eseva/pkg/platform/sentinel"
	txcontext "eseva/pkg/platform/tx"
)

// PostgresStore persists login sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, mobile, otp, generated_at, expires_at, verified, verified_at`

func (s *PostgresStore) Create(ctx context.Context, session *models.LoginSession) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO login_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		uuid.UUID(session.ID), session.Mobile, session.OTP,
		session.GeneratedAt, session.ExpiresAt, session.Verified, session.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("create login session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindLatestUnverified(ctx context.Context, mobile, otp string) (*models.LoginSession, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM login_sessions
		WHERE mobile = $1 AND otp = $2 AND verified = FALSE
		ORDER BY generated_at DESC
		LIMIT 1
	`, mobile, otp)
	return scanSession(row)
}

// MarkVerified uses a conditional update so concurrent verifications of the
// same session produce exactly one winner.
func (s *PostgresStore) MarkVerified(ctx context.Context, sessionID id.LoginSessionID, at time.Time) error {
	exec := txcontext.ExecutorFrom(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE login_sessions
		SET verified = TRUE, verified_at = $2
		WHERE id = $1 AND verified = FALSE
	`, uuid.UUID(sessionID), at)
	if err != nil {
		return fmt.Errorf("mark login session verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark login session verified: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM login_sessions WHERE id = $1)`, uuid.UUID(sessionID)).Scan(&exists); err != nil {
		return fmt.Errorf("check login session: %w", err)
	}
	if exists {
		return fmt.Errorf("login session already verified: %w", sentinel.ErrAlreadyUsed)
	}
	return fmt.Errorf("login session not found: %w", sentinel.ErrNotFound)
}

func (s *PostgresStore) ListByMobile(ctx context.Context, mobile string) ([]*models.LoginSession, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM login_sessions
		WHERE mobile = $1
		ORDER BY generated_at ASC
	`, mobile)
	if err != nil {
		return nil, fmt.Errorf("list login sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.LoginSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login sessions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.LoginSession, error) {
	var (
		sess       models.LoginSession
		sessionID  uuid.UUID
		verifiedAt sql.NullTime
	)
	err := row.Scan(&sessionID, &sess.Mobile, &sess.OTP, &sess.GeneratedAt, &sess.ExpiresAt, &sess.Verified, &verifiedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("login session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan login session: %w", err)
	}
	sess.ID = id.LoginSessionID(sessionID)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		sess.VerifiedAt = &t
	}
	return &sess, nil
}
