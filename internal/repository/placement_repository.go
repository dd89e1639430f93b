// Package repository contains data access logic separated from HTTP handlers.
// This file defines the placement repository: placements, their posted
// updates and the selected/rejected decision sets.  A student appears at
// most once per placement in placement_decisions (primary key
// placement_id, student_id), so the two sets can never overlap.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/campus-placement/internal/model"
)

// Decision values stored in placement_decisions.decision.
const (
	decisionSelected = "SELECTED"
	decisionRejected = "REJECTED"
)

// PlacementFilter narrows List.  Nil fields do not filter.
type PlacementFilter struct {
	Status          *model.PlacementStatus
	AssignedAdminID *uint64
}

// PlacementRepo encapsulates all database queries related to placements.
type PlacementRepo struct {
	db *sql.DB
}

// NewPlacementRepo constructs a PlacementRepo with the provided DB handle.
func NewPlacementRepo(db *sql.DB) *PlacementRepo {
	return &PlacementRepo{db: db}
}

// DB exposes the underlying handle so callers can ping it for readiness.
func (r *PlacementRepo) DB() *sql.DB { return r.db }

const placementColumns = `id, company_name, job_title, job_description, eligibility_criteria,
	deadline, application_link, location, salary, status, assigned_admin_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlacement(s rowScanner) (*model.Placement, error) {
	var (
		p        model.Placement
		location sql.NullString
		salary   sql.NullString
		adminID  sql.NullInt64
	)
	if err := s.Scan(&p.ID, &p.CompanyName, &p.JobTitle, &p.JobDescription, &p.EligibilityCriteria,
		&p.Deadline, &p.ApplicationLink, &location, &salary, &p.Status, &adminID,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if location.Valid {
		p.Location = &location.String
	}
	if salary.Valid {
		p.Salary = &salary.String
	}
	if adminID.Valid {
		id := uint64(adminID.Int64)
		p.AssignedAdminID = &id
	}
	p.SelectedStudents = model.StudentSet{}
	p.RejectedStudents = model.StudentSet{}
	p.Updates = []model.Update{}
	return &p, nil
}

// Create inserts a new placement.  On success ID and the timestamp columns
// are populated from the stored row.
func (r *PlacementRepo) Create(ctx context.Context, p *model.Placement) error {
	const q = `INSERT INTO placements
		(company_name, job_title, job_description, eligibility_criteria, deadline,
		 application_link, location, salary, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		p.CompanyName, p.JobTitle, p.JobDescription, p.EligibilityCriteria, p.Deadline.UTC(),
		p.ApplicationLink, nullString(p.Location), nullString(p.Salary), p.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return r.db.QueryRowContext(ctx,
		"SELECT created_at, updated_at FROM placements WHERE id = ?", p.ID).
		Scan(&p.CreatedAt, &p.UpdatedAt)
}

// GetByID loads a placement and its decision sets.  Updates are not
// loaded; use ListUpdates.  Returns ErrNotFound when absent.
func (r *PlacementRepo) GetByID(ctx context.Context, id uint64) (*model.Placement, error) {
	p, err := scanPlacement(r.db.QueryRowContext(ctx,
		"SELECT "+placementColumns+" FROM placements WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.loadDecisions(ctx, []*model.Placement{p}); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns placements matching f, newest first, with decision sets.
func (r *PlacementRepo) List(ctx context.Context, f PlacementFilter) ([]*model.Placement, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		where = append(where, "status = ?")
		args = append(args, *f.Status)
	}
	if f.AssignedAdminID != nil {
		where = append(where, "assigned_admin_id = ?")
		args = append(args, *f.AssignedAdminID)
	}
	q := "SELECT " + placementColumns + " FROM placements"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC"

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*model.Placement{}
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadDecisions(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadDecisions fills SelectedStudents/RejectedStudents for ps in a single
// query.
func (r *PlacementRepo) loadDecisions(ctx context.Context, ps []*model.Placement) error {
	if len(ps) == 0 {
		return nil
	}
	byID := make(map[uint64]*model.Placement, len(ps))
	args := make([]any, 0, len(ps))
	for _, p := range ps {
		byID[p.ID] = p
		args = append(args, p.ID)
	}
	q := `SELECT placement_id, student_id, decision FROM placement_decisions
	      WHERE placement_id IN (` + placeholders(len(args)) + `)`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			pid, sid uint64
			decision string
		)
		if err := rows.Scan(&pid, &sid, &decision); err != nil {
			return err
		}
		p := byID[pid]
		if p == nil {
			continue
		}
		switch decision {
		case decisionSelected:
			p.RecordDecision(sid, model.RegistrationShortlisted)
		case decisionRejected:
			p.RecordDecision(sid, model.RegistrationRejected)
		}
	}
	return rows.Err()
}

// ListUpdates returns the updates of a placement in insertion order.
func (r *PlacementRepo) ListUpdates(ctx context.Context, placementID uint64) ([]model.Update, error) {
	const q = `SELECT id, placement_id, text, posted_by, posted_at, round_type
	           FROM placement_updates WHERE placement_id = ? ORDER BY posted_at, id`
	rows, err := r.db.QueryContext(ctx, q, placementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Update{}
	for rows.Next() {
		var u model.Update
		if err := rows.Scan(&u.ID, &u.PlacementID, &u.Text, &u.PostedBy, &u.PostedAt, &u.RoundType); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// AddUpdate appends an update to its placement and populates u.ID.
func (r *PlacementRepo) AddUpdate(ctx context.Context, u *model.Update) error {
	const q = `INSERT INTO placement_updates (placement_id, text, posted_by, posted_at, round_type)
	           VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, u.PlacementID, u.Text, u.PostedBy, u.PostedAt.UTC(), u.RoundType)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = uint64(id)
	return nil
}

// AssignAdmin sets the delegated admin.  Returns ErrNotFound when the
// placement does not exist.  The DSN sets clientFoundRows so an unchanged
// row still counts as affected.
func (r *PlacementRepo) AssignAdmin(ctx context.Context, id, adminID uint64) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE placements SET assigned_admin_id = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		adminID, id)
	return affectedOrNotFound(res, err)
}

// SetStatus changes the lifecycle status of a placement.
func (r *PlacementRepo) SetStatus(ctx context.Context, id uint64, status model.PlacementStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE placements SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		status, id)
	return affectedOrNotFound(res, err)
}

// Delete removes a placement together with its registrations, decisions
// and updates in one transaction.  Deleting an absent placement is not an
// error.
func (r *PlacementRepo) Delete(ctx context.Context, id uint64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()
	for _, q := range []string{
		"DELETE FROM registrations WHERE placement_id = ?",
		"DELETE FROM placement_decisions WHERE placement_id = ?",
		"DELETE FROM placement_updates WHERE placement_id = ?",
		"DELETE FROM placements WHERE id = ?",
	} {
		if _, err = tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	return nil
}

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
