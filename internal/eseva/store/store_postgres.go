package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"eseva/internal/eseva/models"
	id "eseva/pkg/domain"
	"eseva/pkg/platform/sentinel"
	txcontext "eseva/pkg/platform/tx"
)

// PostgresStore persists applications and documents in PostgreSQL. Writes
// join the transaction carried by ctx when there is one.
type PostgresStore struct {
	*txcontext.PostgresRunner
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{PostgresRunner: txcontext.NewPostgresRunner(db), db: db}
}

const applicationColumns = `id, user_id, service_type, applicant_name, applicant_details, status,
	admin_id, admin_remarks, agent_id, agent_remarks, processed_at, created_at`

func (s *PostgresStore) CreateApplication(ctx context.Context, app *models.Application) error {
	details, err := json.Marshal(app.ApplicantDetails)
	if err != nil {
		return fmt.Errorf("marshal applicant details: %w", err)
	}
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO applications (id, user_id, service_type, applicant_name, applicant_details, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		uuid.UUID(app.ID), uuid.UUID(app.UserID), app.ServiceType, app.ApplicantName,
		details, string(app.Status), app.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("application exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// CreateDocuments inserts all rows in one statement.
func (s *PostgresStore) CreateDocuments(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	var (
		ids     = make([]string, len(docs))
		appIDs  = make([]string, len(docs))
		names   = make([]string, len(docs))
		paths   = make([]string, len(docs))
		created = make([]string, len(docs))
	)
	for i, d := range docs {
		ids[i] = d.ID.String()
		appIDs[i] = d.ApplicationID.String()
		names[i] = d.Name
		paths[i] = d.StoragePath
		created[i] = d.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO documents (id, application_id, name, storage_path, created_at)
		SELECT * FROM unnest($1::uuid[], $2::uuid[], $3::text[], $4::text[], $5::timestamptz[])
	`, pq.Array(ids), pq.Array(appIDs), pq.Array(names), pq.Array(paths), pq.Array(created))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return fmt.Errorf("document owner missing: %w", sentinel.ErrNotFound)
		}
		return fmt.Errorf("create documents: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, uuid.UUID(appID))
	return scanApplication(row)
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]*models.Application, error) {
	return s.query(ctx, `SELECT `+applicationColumns+` FROM applications ORDER BY created_at DESC, id DESC`)
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Application, error) {
	return s.query(ctx, `SELECT `+applicationColumns+` FROM applications WHERE user_id = $1 ORDER BY created_at DESC, id DESC`,
		uuid.UUID(userID))
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]*models.Application, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	out := []*models.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, appID id.ApplicationID, status models.Status, adminID id.UserID, remarks string) (*models.Application, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		UPDATE applications
		SET status = $2, admin_id = $3, admin_remarks = $4
		WHERE id = $1
		RETURNING `+applicationColumns,
		uuid.UUID(appID), string(status), uuid.UUID(adminID), remarks)
	return scanApplication(row)
}

func (s *PostgresStore) MarkProcessed(ctx context.Context, appID id.ApplicationID, agentID id.UserID, remarks string, at time.Time) (*models.Application, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx, `
		UPDATE applications
		SET status = $2, agent_id = $3, agent_remarks = $4, processed_at = $5
		WHERE id = $1
		RETURNING `+applicationColumns,
		uuid.UUID(appID), string(models.StatusProcessed), uuid.UUID(agentID), remarks, at)
	return scanApplication(row)
}

func (s *PostgresStore) ListDocuments(ctx context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, application_id, name, storage_path, created_at
		FROM documents
		WHERE application_id = $1
		ORDER BY created_at ASC, name ASC
	`, uuid.UUID(appID))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := []*models.Document{}
	for rows.Next() {
		var (
			d            models.Document
			docID, owner uuid.UUID
		)
		if err := rows.Scan(&docID, &owner, &d.Name, &d.StoragePath, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		d.ID = id.DocumentID(docID)
		d.ApplicationID = id.ApplicationID(owner)
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app                    models.Application
		appID, userID          uuid.UUID
		adminID, agentID       uuid.NullUUID
		adminRemarks, agentRem sql.NullString
		processedAt            sql.NullTime
		details                []byte
		status                 string
	)
	err := row.Scan(&appID, &userID, &app.ServiceType, &app.ApplicantName, &details, &status,
		&adminID, &adminRemarks, &agentID, &agentRem, &processedAt, &app.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	app.ID = id.ApplicationID(appID)
	app.UserID = id.UserID(userID)
	app.Status = models.Status(status)
	if err := json.Unmarshal(details, &app.ApplicantDetails); err != nil {
		return nil, fmt.Errorf("decode applicant details: %w", err)
	}
	if adminID.Valid {
		u := id.UserID(adminID.UUID)
		app.AdminID = &u
	}
	if agentID.Valid {
		u := id.UserID(agentID.UUID)
		app.AgentID = &u
	}
	if adminRemarks.Valid {
		app.AdminRemarks = &adminRemarks.String
	}
	if agentRem.Valid {
		app.AgentRemarks = &agentRem.String
	}
	if processedAt.Valid {
		t := processedAt.Time
		app.ProcessedAt = &t
	}
	return &app, nil
}
