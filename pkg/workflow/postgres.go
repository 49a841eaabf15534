package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/platinummonkey/campus/pkg/rbac"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const applicationColumns = `id, organization_id, school_id, applicant_name, grade_applied, owner_ids, status, notes, created_by, created_at, updated_at`

const transferColumns = `id, student_id, organization_id, school_id, destination_organization_id, destination_school_id, reason, owner_ids, status, requested_by, created_at, updated_at`

var applicationScope = rbac.Columns{Organization: "organization_id", School: "school_id", Owner: "owner_ids"}

var (
	transferSourceScope      = rbac.Columns{Organization: "organization_id", School: "school_id", Owner: "owner_ids"}
	transferDestinationScope = rbac.Columns{Organization: "destination_organization_id", School: "destination_school_id", Owner: "owner_ids"}
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func ownerIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

// CreateApplication inserts a new application
func (s *PostgresStore) CreateApplication(ctx context.Context, app *Application) error {
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	app.OwnerIDs = ownerIDs(app.OwnerIDs)

	query := `
		INSERT INTO admission_applications (id, organization_id, school_id, applicant_name, grade_applied, owner_ids, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, app.ID, app.OrganizationID, app.SchoolID, app.ApplicantName,
		app.GradeApplied, pq.Array(app.OwnerIDs), app.Status, app.Notes, app.CreatedBy).
		Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

// GetApplication retrieves an application by ID
func (s *PostgresStore) GetApplication(ctx context.Context, id uuid.UUID) (*Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM admission_applications WHERE id = $1`
	app, err := scanApplication(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return app, nil
}

// ListApplications returns the applications admitted by filter, newest first
func (s *PostgresStore) ListApplications(ctx context.Context, filter rbac.ScopeFilter, limit, offset int) ([]*Application, error) {
	where, args := filter.Clause(applicationScope, 1)
	query := fmt.Sprintf(`SELECT %s FROM admission_applications WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		applicationColumns, where, len(args)+1, len(args)+2)
	args = append(args, pageLimit(limit), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := make([]*Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// UpdateApplicationStatus locks the application, lets fn pick the next status and
// records the transition in the same transaction
func (s *PostgresStore) UpdateApplicationStatus(ctx context.Context, id, actorID uuid.UUID, note string, fn ApplicationUpdate) (*Application, error) {
	var app *Application
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + applicationColumns + ` FROM admission_applications WHERE id = $1 FOR UPDATE`
		current, err := scanApplication(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock application: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		update := `UPDATE admission_applications SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`
		if err := tx.QueryRowContext(ctx, update, next, id).Scan(&current.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update application: %w", err)
		}
		if err := insertTransition(ctx, tx, workflowAdmission, id, string(current.Status), string(next), actorID, note); err != nil {
			return err
		}
		current.Status = next
		app = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func scanApplication(scanner rowScanner) (*Application, error) {
	app := &Application{}
	var gradeApplied, notes sql.NullString
	err := scanner.Scan(
		&app.ID, &app.OrganizationID, &app.SchoolID, &app.ApplicantName, &gradeApplied,
		pq.Array(&app.OwnerIDs), &app.Status, &notes, &app.CreatedBy, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	app.GradeApplied = gradeApplied.String
	app.Notes = notes.String
	return app, nil
}

// CreateTransfer inserts a new transfer
func (s *PostgresStore) CreateTransfer(ctx context.Context, t *Transfer) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.OwnerIDs = ownerIDs(t.OwnerIDs)

	query := `
		INSERT INTO student_transfers (id, student_id, organization_id, school_id, destination_organization_id,
			destination_school_id, reason, owner_ids, status, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, t.ID, t.StudentID, t.OrganizationID, t.SchoolID,
		t.DestinationOrganizationID, t.DestinationSchoolID, t.Reason, pq.Array(t.OwnerIDs), t.Status, t.RequestedBy).
		Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create transfer: %w", err)
	}
	return nil
}

// GetTransfer retrieves a transfer by ID
func (s *PostgresStore) GetTransfer(ctx context.Context, id uuid.UUID) (*Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM student_transfers WHERE id = $1`
	t, err := scanTransfer(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return t, nil
}

// ListTransfers returns the transfers admitted by filter on either side, newest first
func (s *PostgresStore) ListTransfers(ctx context.Context, filter rbac.ScopeFilter, limit, offset int) ([]*Transfer, error) {
	source, args := filter.Clause(transferSourceScope, 1)
	destination, destArgs := filter.Clause(transferDestinationScope, len(args)+1)
	args = append(args, destArgs...)

	query := fmt.Sprintf(`SELECT %s FROM student_transfers WHERE (%s OR %s) ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		transferColumns, source, destination, len(args)+1, len(args)+2)
	args = append(args, pageLimit(limit), offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	defer rows.Close()

	transfers := make([]*Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// UpdateTransferStatus locks the transfer, lets fn pick the next status and
// records the transition in the same transaction
func (s *PostgresStore) UpdateTransferStatus(ctx context.Context, id, actorID uuid.UUID, note string, fn TransferUpdate) (*Transfer, error) {
	var transfer *Transfer
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + transferColumns + ` FROM student_transfers WHERE id = $1 FOR UPDATE`
		current, err := scanTransfer(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock transfer: %w", err)
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		update := `UPDATE student_transfers SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at`
		if err := tx.QueryRowContext(ctx, update, next, id).Scan(&current.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update transfer: %w", err)
		}
		if err := insertTransition(ctx, tx, workflowTransfer, id, string(current.Status), string(next), actorID, note); err != nil {
			return err
		}
		current.Status = next
		transfer = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return transfer, nil
}

func scanTransfer(scanner rowScanner) (*Transfer, error) {
	t := &Transfer{}
	var reason sql.NullString
	err := scanner.Scan(
		&t.ID, &t.StudentID, &t.OrganizationID, &t.SchoolID, &t.DestinationOrganizationID,
		&t.DestinationSchoolID, &reason, pq.Array(&t.OwnerIDs), &t.Status, &t.RequestedBy,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Reason = reason.String
	return t, nil
}

// ListTransitions returns the history of a record, oldest first
func (s *PostgresStore) ListTransitions(ctx context.Context, workflow string, recordID uuid.UUID) ([]*Transition, error) {
	query := `
		SELECT id, workflow, record_id, from_status, to_status, actor_id, note, created_at
		FROM workflow_transitions
		WHERE workflow = $1 AND record_id = $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, workflow, recordID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	transitions := make([]*Transition, 0)
	for rows.Next() {
		tr := &Transition{}
		var note sql.NullString
		if err := rows.Scan(&tr.ID, &tr.Workflow, &tr.RecordID, &tr.From, &tr.To, &tr.ActorID, &note, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		tr.Note = note.String
		transitions = append(transitions, tr)
	}
	return transitions, rows.Err()
}

func insertTransition(ctx context.Context, tx *sql.Tx, workflow string, recordID uuid.UUID, from, to string, actorID uuid.UUID, note string) error {
	query := `
		INSERT INTO workflow_transitions (id, workflow, record_id, from_status, to_status, actor_id, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.ExecContext(ctx, query, uuid.New(), workflow, recordID, from, to, actorID, note); err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
