package score

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/scoring"
)

// TypingTestID is the assignment id of ad-hoc typing tests.
const TypingTestID = "typing-test"

// Score is the immutable result of one attempt, computed on submission.
type Score struct {
	ID           string            `json:"id"`
	StudentID    string            `json:"student_id"`
	AssignmentID string            `json:"assignment_id"`
	ClassID      string            `json:"class_id"`
	TypedText    string            `json:"typed_text"`
	Accuracy     int               `json:"accuracy"`
	WordAccuracy int               `json:"word_accuracy"`
	Progress     int               `json:"progress"`
	WPM          int               `json:"wpm"`
	Mistakes     []scoring.Mistake `json:"mistakes"`
	TimeElapsed  float64           `json:"time_elapsed"`
	IsLate       bool              `json:"is_late"`
	CompletedAt  time.Time         `json:"completed_at"` // UTC
}

func (s *Score) IsTypingTest() bool {
	return s.AssignmentID == TypingTestID
}

func (s *Score) Result() scoring.Result {
	return scoring.Result{
		Accuracy:     s.Accuracy,
		WordAccuracy: s.WordAccuracy,
		Progress:     s.Progress,
		WPM:          s.WPM,
		Mistakes:     s.Mistakes,
		TimeElapsed:  s.TimeElapsed,
	}
}

// NewScore is a submitted attempt. Metrics are never read from the client, except for the WPM
// when the elapsed time is unknown.
type NewScore struct {
	AssignmentID  string   `json:"assignment_id" validate:"required"`
	TypedText     string   `json:"typed_text" validate:"required,max=20000"`
	TimeElapsed   *float64 `json:"time_elapsed" validate:"omitempty,gte=0"`
	WPM           *int     `json:"wpm" validate:"omitempty,gte=0"`
	ReferenceText string   `json:"reference_text" validate:"max=20000"` // typing tests only
}

func (ns *NewScore) Validate(validate *validator.Validate, maxWPM int) error {
	ns.AssignmentID = core.CleanString(ns.AssignmentID)
	if err := validate.Struct(ns); err != nil {
		return err
	}

	var fldErrs []core.FieldError
	if ns.WPM != nil && maxWPM > 0 && *ns.WPM > maxWPM {
		fldErrs = append(fldErrs, core.FieldError{Field: "wpm", Error: fmt.Sprintf("wpm must be %d or less", maxWPM)})
	}
	if ns.AssignmentID == TypingTestID && ns.ReferenceText == "" {
		fldErrs = append(fldErrs, core.FieldError{Field: "reference_text", Error: "this field is required"})
	}
	if fldErrs != nil {
		return core.NewValidationError(nil, fldErrs...)
	}
	return nil
}

type Preview struct {
	ReferenceText string   `json:"reference_text" validate:"required,max=20000"`
	TypedText     string   `json:"typed_text" validate:"max=20000"`
	TimeElapsed   *float64 `json:"time_elapsed" validate:"omitempty,gte=0"`
}

func (p *Preview) Validate(validate *validator.Validate) error {
	return validate.Struct(p)
}

// QueryFilter applies AND operation on its non-empty fields.
type QueryFilter struct {
	StudentID    string
	AssignmentID string
	ClassIDs     []string // scores of any of these classes
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.AssignmentID = core.CleanString(qf.AssignmentID)
	qf.ClassIDs = core.CleanStrings(qf.ClassIDs)
}

type StudentReport struct {
	StudentID string `json:"student_id"`
	scoring.Summary
}

type Report struct {
	scoring.Summary
	Students []StudentReport `json:"students"`
}

// Repository has no update nor delete operation: scores are written once.
type Repository interface {
	CreateScore(ctx context.Context, s Score) (Score, error)
	GetScore(ctx context.Context, id string) (Score, error)
	QueryScores(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Score, error)
}
