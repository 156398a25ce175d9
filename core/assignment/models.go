package assignment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/stenolearn/backend/core"
)

type Assignment struct {
	ID          string      `json:"id"`
	ClassID     string      `json:"class_id"`
	TeacherID   string      `json:"teacher_id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	CorrectText string      `json:"correct_text"`
	ImageURL    null.String `json:"image_url"`
	Deadline    null.Time   `json:"deadline"` // UTC
	IsActive    bool        `json:"is_active"`
	CreatedAt   time.Time   `json:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at"` // UTC
}

// IsLate reports whether a submission made at t misses the deadline.
func (a *Assignment) IsLate(t time.Time) bool {
	return a.Deadline.Valid && t.After(a.Deadline.Time)
}

type NewAssignment struct {
	ClassID     string     `json:"class_id" validate:"required"`
	Title       string     `json:"title" validate:"required,max=255"`
	Description string     `json:"description" validate:"max=5000"`
	CorrectText string     `json:"correct_text" validate:"required,max=20000"`
	ImageURL    string     `json:"image_url" validate:"omitempty,url"`
	Deadline    *time.Time `json:"deadline"`
	IsActive    *bool      `json:"is_active"`
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.ClassID = core.CleanString(na.ClassID)
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.CorrectText = core.CleanString(na.CorrectText)
	na.ImageURL = core.CleanString(na.ImageURL)
	return validate.Struct(na)
}

type UpdateAssignment struct {
	Title         string     `json:"title" validate:"required,max=255"`
	Description   string     `json:"description" validate:"max=5000"`
	CorrectText   string     `json:"correct_text" validate:"required,max=20000"`
	ImageURL      string     `json:"image_url" validate:"omitempty,url"`
	Deadline      *time.Time `json:"deadline"`
	ClearDeadline bool       `json:"clear_deadline"`
	IsActive      *bool      `json:"is_active"`
}

// Validate fills the empty fields of ua from orig before validating it.
func (ua *UpdateAssignment) Validate(orig Assignment, validate *validator.Validate) error {
	keep := func(val *string, origVal string) {
		if v := core.CleanString(*val); v != "" {
			*val = v
		} else {
			*val = origVal
		}
	}
	keep(&ua.Title, orig.Title)
	keep(&ua.Description, orig.Description)
	keep(&ua.CorrectText, orig.CorrectText)
	keep(&ua.ImageURL, orig.ImageURL.String)
	if ua.IsActive == nil {
		isActive := orig.IsActive
		ua.IsActive = &isActive
	}
	if ua.Deadline == nil && !ua.ClearDeadline && orig.Deadline.Valid {
		deadline := orig.Deadline.Time
		ua.Deadline = &deadline
	}
	return validate.Struct(ua)
}

// QueryFilter applies AND operation on its non-empty fields.
type QueryFilter struct {
	ClassIDs  []string
	TeacherID string
	IsActive  *bool
	IDs       []string
}

func (qf *QueryFilter) Clean() {
	qf.ClassIDs = core.CleanStrings(qf.ClassIDs)
	qf.TeacherID = core.CleanString(qf.TeacherID)
	qf.IDs = core.CleanStrings(qf.IDs)
}

type Repository interface {
	CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	GetAssignment(ctx context.Context, id string) (Assignment, error)
	QueryAssignments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Assignment, error)
	UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
	DeleteAssignment(ctx context.Context, id string) error
}
