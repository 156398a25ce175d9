package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/class"
)

const classColumns = "id, name, description, teacher_id, created_at, updated_at"

var classOrderings = map[string]string{
	"name":       "name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

type classRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	TeacherID   string    `db:"teacher_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type enrollmentRow struct {
	ClassID   string    `db:"class_id"`
	StudentID string    `db:"student_id"`
	JoinedAt  time.Time `db:"joined_at"`
}

func newClassRow(c class.Class) classRow {
	return classRow{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		TeacherID:   c.TeacherID,
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
}

func (row classRow) toClass(studentIDs []string) class.Class {
	if studentIDs == nil {
		studentIDs = []string{}
	}
	return class.Class{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		TeacherID:   row.TeacherID,
		StudentIDs:  studentIDs,
		CreatedAt:   row.CreatedAt.UTC(),
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type classRepository struct {
	db *sqlx.DB
}

var _ class.Repository = (*classRepository)(nil)

func NewClassRepository(db *sqlx.DB) class.Repository {
	return &classRepository{db: db}
}

// studentIDs returns the students of each class, in enrollment order.
func (repo *classRepository) studentIDs(ctx context.Context, classIDs ...string) (map[string][]string, error) {
	students := make(map[string][]string, len(classIDs))
	if len(classIDs) == 0 {
		return students, nil
	}

	var w whereClause
	w.in("class_id", classIDs)
	if w.err != nil {
		return nil, w.err
	}
	var rows []enrollmentRow
	q := repo.db.Rebind("SELECT class_id, student_id, joined_at FROM class_students" + w.String() + " ORDER BY joined_at, student_id")
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying class students")
	}
	for _, row := range rows {
		students[row.ClassID] = append(students[row.ClassID], row.StudentID)
	}
	return students, nil
}

func (repo *classRepository) CreateClass(ctx context.Context, c class.Class) (class.Class, error) {
	q := "INSERT INTO classes (" + classColumns + ") VALUES (:id, :name, :description, :teacher_id, :created_at, :updated_at)"
	if _, err := repo.db.NamedExecContext(ctx, q, newClassRow(c)); err != nil {
		return class.Class{}, errors.Wrap(err, "inserting class")
	}
	return repo.GetClass(ctx, c.ID)
}

func (repo *classRepository) GetClass(ctx context.Context, id string) (class.Class, error) {
	var row classRow
	q := repo.db.Rebind("SELECT " + classColumns + " FROM classes WHERE id = ?")
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return class.Class{}, class.ErrNotFound
		}
		return class.Class{}, errors.Wrap(err, "getting class")
	}
	students, err := repo.studentIDs(ctx, id)
	if err != nil {
		return class.Class{}, err
	}
	return row.toClass(students[id]), nil
}

func (repo *classRepository) QueryClasses(ctx context.Context, filter *class.QueryFilter, ordering []core.DBOrdering) ([]class.Class, error) {
	var w whereClause
	if filter != nil {
		if filter.TeacherID != "" {
			w.add("teacher_id = ?", filter.TeacherID)
		}
		if filter.StudentID != "" {
			w.add("id IN (SELECT class_id FROM class_students WHERE student_id = ?)", filter.StudentID)
		}
		if filter.Search != "" {
			w.add(`LOWER(name) LIKE ? ESCAPE '\'`, likePattern(filter.Search))
		}
		if filter.IDs != nil {
			w.in("id", filter.IDs)
		}
	}
	if w.err != nil {
		return nil, w.err
	}

	var rows []classRow
	q := repo.db.Rebind("SELECT " + classColumns + " FROM classes" + w.String() + orderBy(ordering, classOrderings, "created_at ASC"))
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	students, err := repo.studentIDs(ctx, ids...)
	if err != nil {
		return nil, err
	}

	classes := make([]class.Class, 0, len(rows))
	for _, row := range rows {
		classes = append(classes, row.toClass(students[row.ID]))
	}
	return classes, nil
}

func (repo *classRepository) UpdateClass(ctx context.Context, c class.Class) (class.Class, error) {
	q := "UPDATE classes SET name = :name, description = :description, updated_at = :updated_at WHERE id = :id"
	res, err := repo.db.NamedExecContext(ctx, q, newClassRow(c))
	if err != nil {
		return class.Class{}, errors.Wrap(err, "updating class")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return class.Class{}, class.ErrNotFound
	}
	return repo.GetClass(ctx, c.ID)
}

// DeleteClass also deletes its enrollments and assignments (ON DELETE CASCADE).
func (repo *classRepository) DeleteClass(ctx context.Context, id string) error {
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM classes WHERE id = ?"), id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return nil
}

func (repo *classRepository) AddStudents(ctx context.Context, classID string, studentIDs []string, joinedAt time.Time) error {
	if len(studentIDs) == 0 {
		return nil
	}

	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var w whereClause
	w.add("class_id = ?", classID)
	w.in("student_id", studentIDs)
	if w.err != nil {
		return w.err
	}
	var enrolled []string
	if err := tx.SelectContext(ctx, &enrolled, tx.Rebind("SELECT student_id FROM class_students"+w.String()), w.args...); err != nil {
		return errors.Wrap(err, "querying enrolled students")
	}
	skip := make(map[string]struct{}, len(enrolled))
	for _, id := range enrolled {
		skip[id] = struct{}{}
	}

	q := tx.Rebind("INSERT INTO class_students (class_id, student_id, joined_at) VALUES (?, ?, ?)")
	for _, id := range studentIDs {
		if _, ok := skip[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, q, classID, id, joinedAt.UTC()); err != nil {
			return errors.Wrap(err, "enrolling student")
		}
		skip[id] = struct{}{}
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo *classRepository) RemoveStudents(ctx context.Context, classID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	var w whereClause
	w.add("class_id = ?", classID)
	w.in("student_id", studentIDs)
	if w.err != nil {
		return w.err
	}
	if _, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM class_students"+w.String()), w.args...); err != nil {
		return errors.Wrap(err, "removing students")
	}
	return nil
}
