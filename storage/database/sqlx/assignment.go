package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
)

const assignmentColumns = "id, class_id, teacher_id, title, description, correct_text, image_url, deadline, is_active, created_at, updated_at"

var assignmentOrderings = map[string]string{
	"title":      "title",
	"deadline":   "deadline",
	"created_at": "created_at",
}

type assignmentRow struct {
	ID          string      `db:"id"`
	ClassID     string      `db:"class_id"`
	TeacherID   string      `db:"teacher_id"`
	Title       string      `db:"title"`
	Description string      `db:"description"`
	CorrectText string      `db:"correct_text"`
	ImageURL    null.String `db:"image_url"`
	Deadline    null.Time   `db:"deadline"`
	IsActive    bool        `db:"is_active"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func newAssignmentRow(a assignment.Assignment) assignmentRow {
	row := assignmentRow{
		ID:          a.ID,
		ClassID:     a.ClassID,
		TeacherID:   a.TeacherID,
		Title:       a.Title,
		Description: a.Description,
		CorrectText: a.CorrectText,
		ImageURL:    a.ImageURL,
		Deadline:    a.Deadline,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}
	if row.Deadline.Valid {
		row.Deadline.Time = row.Deadline.Time.UTC()
	}
	return row
}

func (row assignmentRow) toAssignment() assignment.Assignment {
	a := assignment.Assignment{
		ID:          row.ID,
		ClassID:     row.ClassID,
		TeacherID:   row.TeacherID,
		Title:       row.Title,
		Description: row.Description,
		CorrectText: row.CorrectText,
		ImageURL:    row.ImageURL,
		Deadline:    row.Deadline,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
	if a.Deadline.Valid {
		a.Deadline.Time = a.Deadline.Time.UTC()
	}
	return a
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil)

func NewAssignmentRepository(db *sqlx.DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	q := "INSERT INTO assignments (" + assignmentColumns + `) VALUES (:id, :class_id, :teacher_id, :title, :description,
		:correct_text, :image_url, :deadline, :is_active, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, newAssignmentRow(a)); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	return repo.GetAssignment(ctx, a.ID)
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id string) (assignment.Assignment, error) {
	var row assignmentRow
	q := repo.db.Rebind("SELECT " + assignmentColumns + " FROM assignments WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return assignment.Assignment{}, assignment.ErrNotFound
		}
		return assignment.Assignment{}, errors.Wrap(err, "getting assignment")
	}
	return row.toAssignment(), nil
}

func (repo *assignmentRepository) QueryAssignments(
	ctx context.Context,
	filter *assignment.QueryFilter,
	ordering []core.DBOrdering,
) ([]assignment.Assignment, error) {
	var w whereClause
	if filter != nil {
		if filter.ClassIDs != nil {
			w.in("class_id", filter.ClassIDs)
		}
		if filter.TeacherID != "" {
			w.add("teacher_id = ?", filter.TeacherID)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
		if filter.IDs != nil {
			w.in("id", filter.IDs)
		}
	}
	if w.err != nil {
		return nil, w.err
	}

	var rows []assignmentRow
	q := repo.db.Rebind("SELECT " + assignmentColumns + " FROM assignments" + w.String() +
		orderBy(ordering, assignmentOrderings, "created_at ASC"))
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying assignments")
	}
	assignments := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		assignments = append(assignments, row.toAssignment())
	}
	return assignments, nil
}

func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, a assignment.Assignment) (assignment.Assignment, error) {
	q := `UPDATE assignments SET title = :title, description = :description, correct_text = :correct_text,
		image_url = :image_url, deadline = :deadline, is_active = :is_active, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newAssignmentRow(a))
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return repo.GetAssignment(ctx, a.ID)
}

func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM assignments WHERE id = ?"), id); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return nil
}
