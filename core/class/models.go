package class

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stenolearn/backend/core"
)

type Class struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	TeacherID   string    `json:"teacher_id"`
	StudentIDs  []string  `json:"student_ids"`
	CreatedAt   time.Time `json:"created_at"` // UTC
	UpdatedAt   time.Time `json:"updated_at"` // UTC
}

func (c *Class) HasStudent(studentID string) bool {
	for _, id := range c.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

type NewClass struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
	// TeacherID is only read from admins, teachers always own the classes they create.
	TeacherID string `json:"teacher_id"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	nc.TeacherID = core.CleanString(nc.TeacherID)
	return validate.Struct(nc)
}

type UpdateClass struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// Validate fills the empty fields of uc from orig before validating it.
func (uc *UpdateClass) Validate(orig Class, validate *validator.Validate) error {
	if name := core.CleanString(uc.Name); name != "" {
		uc.Name = name
	} else {
		uc.Name = orig.Name
	}
	if desc := core.CleanString(uc.Description); desc != "" {
		uc.Description = desc
	} else {
		uc.Description = orig.Description
	}
	return validate.Struct(uc)
}

type Students struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,required"`
}

func (s *Students) Validate(validate *validator.Validate) error {
	s.StudentIDs = core.CleanStrings(s.StudentIDs)
	return validate.Struct(s)
}

// QueryFilter applies AND operation on its non-empty fields.
type QueryFilter struct {
	TeacherID string
	StudentID string
	Search    string // case-insensitive match on Class.Name
	IDs       []string
}

func (qf *QueryFilter) Clean() {
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.Search = core.CleanString(qf.Search)
	qf.IDs = core.CleanStrings(qf.IDs)
}

type Repository interface {
	CreateClass(ctx context.Context, c Class) (Class, error)
	GetClass(ctx context.Context, id string) (Class, error)
	QueryClasses(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
	UpdateClass(ctx context.Context, c Class) (Class, error)
	DeleteClass(ctx context.Context, id string) error
	// AddStudents enrols the students, ignoring those already enrolled.
	AddStudents(ctx context.Context, classID string, studentIDs []string, joinedAt time.Time) error
	RemoveStudents(ctx context.Context, classID string, studentIDs []string) error
}
