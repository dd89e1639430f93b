package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/campus-placement/internal/model"
)

// RegistrationRepo provides access to the registrations table.  The pair
// (student_id, placement_id) carries a UNIQUE key; Create relies on it
// instead of checking for an existing row first, so two concurrent
// applications for the same pair yield exactly one row.
type RegistrationRepo struct {
	db *sql.DB
}

// NewRegistrationRepo returns a new RegistrationRepo bound to the given database.
func NewRegistrationRepo(db *sql.DB) *RegistrationRepo { return &RegistrationRepo{db: db} }

const registrationColumns = `r.student_id, r.placement_id, r.resume_url, r.form_url, r.status,
	r.applied_at, r.status_updated_at, r.status_updated_by`

func scanRegistration(s rowScanner, extra ...any) (*model.Registration, error) {
	var (
		reg       model.Registration
		updatedAt sql.NullTime
		updatedBy sql.NullInt64
	)
	dest := append([]any{&reg.StudentID, &reg.PlacementID, &reg.ResumeURL, &reg.FormURL, &reg.Status,
		&reg.AppliedAt, &updatedAt, &updatedBy}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		reg.StatusUpdatedAt = &t
	}
	if updatedBy.Valid {
		by := uint64(updatedBy.Int64)
		reg.StatusUpdatedBy = &by
	}
	return &reg, nil
}

// Create inserts a registration.  It returns ErrDuplicate when the student
// already has a registration for the placement.
func (r *RegistrationRepo) Create(ctx context.Context, reg *model.Registration) error {
	const q = `INSERT INTO registrations (student_id, placement_id, resume_url, form_url, status, applied_at)
	           VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, q, reg.StudentID, reg.PlacementID, reg.ResumeURL, reg.FormURL,
		reg.Status, reg.AppliedAt.UTC())
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// Get returns the registration for (placementID, studentID) or ErrNotFound.
func (r *RegistrationRepo) Get(ctx context.Context, placementID, studentID uint64) (*model.Registration, error) {
	q := "SELECT " + registrationColumns + " FROM registrations r WHERE r.placement_id = ? AND r.student_id = ?"
	reg, err := scanRegistration(r.db.QueryRowContext(ctx, q, placementID, studentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// ListByPlacement returns all registrations of a placement with the
// student's name and email, oldest application first.
func (r *RegistrationRepo) ListByPlacement(ctx context.Context, placementID uint64) ([]model.RegistrationWithStudent, error) {
	q := "SELECT " + registrationColumns + `, COALESCE(u.full_name, ''), COALESCE(u.email, '')
	      FROM registrations r
	      LEFT JOIN users u ON u.id = r.student_id
	      WHERE r.placement_id = ?
	      ORDER BY r.applied_at, r.student_id`
	rows, err := r.db.QueryContext(ctx, q, placementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RegistrationWithStudent{}
	for rows.Next() {
		var name, email string
		reg, err := scanRegistration(rows, &name, &email)
		if err != nil {
			return nil, err
		}
		out = append(out, model.RegistrationWithStudent{Registration: *reg, StudentName: name, StudentEmail: email})
	}
	return out, rows.Err()
}

// ListByStudent returns every registration made by a student, newest first.
func (r *RegistrationRepo) ListByStudent(ctx context.Context, studentID uint64) ([]model.Registration, error) {
	q := "SELECT " + registrationColumns + " FROM registrations r WHERE r.student_id = ? ORDER BY r.applied_at DESC"
	rows, err := r.db.QueryContext(ctx, q, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	return out, rows.Err()
}

// StudentIDsByPlacement returns the ids of every student registered for a
// placement regardless of status.
func (r *RegistrationRepo) StudentIDsByPlacement(ctx context.Context, placementID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT student_id FROM registrations WHERE placement_id = ? ORDER BY student_id", placementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpdateStatus sets a registration's status and mirrors the decision into
// placement_decisions within a single transaction, so readers never see the
// registration and the decision sets disagree.  Returns ErrNotFound when no
// registration exists for the pair.
func (r *RegistrationRepo) UpdateStatus(ctx context.Context, placementID, studentID uint64,
	status model.RegistrationStatus, by uint64, at time.Time) (*model.Registration, error) {

	decision := decisionRejected
	if status == model.RegistrationShortlisted {
		decision = decisionSelected
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sel := "SELECT " + registrationColumns + " FROM registrations r WHERE r.placement_id = ? AND r.student_id = ? FOR UPDATE"
	reg, err := scanRegistration(tx.QueryRowContext(ctx, sel, placementID, studentID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	at = at.UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE registrations SET status = ?, status_updated_at = ?, status_updated_by = ?
		 WHERE placement_id = ? AND student_id = ?`,
		status, at, by, placementID, studentID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO placement_decisions (placement_id, student_id, decision, decided_at)
		 VALUES (?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE decision = VALUES(decision), decided_at = VALUES(decided_at)`,
		placementID, studentID, decision, at); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true

	reg.Status = status
	reg.StatusUpdatedAt = &at
	reg.StatusUpdatedBy = &by
	return reg, nil
}
