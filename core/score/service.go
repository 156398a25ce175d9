package score

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/scoring"
	"github.com/stenolearn/backend/core/user"
)

var (
	// errors
	ErrNotFound    = core.NewNotFoundError("score not found")
	ErrNotEnrolled = errors.New("student not enrolled in the class of this assignment")
	ErrInactive    = errors.New("assignment is not active")
)

type (
	Service interface {
		Submit(ctx context.Context, student user.User, ns NewScore) (Score, error)
		Preview(reference, typed string, elapsedSeconds float64) scoring.Result
		Get(ctx context.Context, id string) (Score, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Score, error)
		Report(ctx context.Context, filter *QueryFilter) (Report, error)
	}

	service struct {
		repo          Repository
		assignmentSvc assignment.Service
		classSvc      class.Service
		lookahead     int
		nowFunc       func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, assignmentSvc assignment.Service, classSvc class.Service, conf core.ScoringConfig) Service {
	return &service{
		repo:          repo,
		assignmentSvc: assignmentSvc,
		classSvc:      classSvc,
		lookahead:     conf.Lookahead,
		nowFunc:       time.Now,
	}
}

// Submit scores the attempt against the reference text and saves it.
func (svc *service) Submit(ctx context.Context, student user.User, ns NewScore) (Score, error) {
	now := svc.nowFunc().UTC()
	s := Score{
		ID:           uuid.New().String(),
		StudentID:    student.ID,
		AssignmentID: ns.AssignmentID,
		TypedText:    ns.TypedText,
		CompletedAt:  now,
	}

	reference := ns.ReferenceText
	if ns.AssignmentID != TypingTestID {
		a, err := svc.assignmentSvc.Get(ctx, ns.AssignmentID)
		if err != nil {
			if core.IsNotFound(err) {
				return Score{}, core.NewValidationError(err, core.FieldError{Field: "assignment_id", Error: err.Error()})
			}
			return Score{}, errors.Wrap(err, "getting assignment")
		}
		if !a.IsActive {
			return Score{}, core.NewValidationError(ErrInactive, core.FieldError{Field: "assignment_id", Error: ErrInactive.Error()})
		}
		enrolled, err := svc.classSvc.HasStudent(ctx, a.ClassID, student.ID)
		if err != nil {
			return Score{}, errors.Wrap(err, "checking class enrollment")
		}
		if !enrolled {
			return Score{}, ErrNotEnrolled
		}
		reference = a.CorrectText
		s.ClassID = a.ClassID
		s.IsLate = a.IsLate(now)
	}

	var res scoring.Result
	if ns.TimeElapsed != nil {
		res = scoring.Evaluate(reference, ns.TypedText, *ns.TimeElapsed, svc.lookahead)
	} else {
		var wpm int
		if ns.WPM != nil {
			wpm = *ns.WPM
		}
		elapsed := scoring.EstimateElapsed(scoring.WordCount(ns.TypedText), wpm)
		res = scoring.Evaluate(reference, ns.TypedText, elapsed, svc.lookahead)
		if ns.WPM != nil {
			res.WPM = wpm
		}
	}

	s.Accuracy = res.Accuracy
	s.WordAccuracy = res.WordAccuracy
	s.Progress = res.Progress
	s.WPM = res.WPM
	s.Mistakes = res.Mistakes
	s.TimeElapsed = res.TimeElapsed
	return svc.repo.CreateScore(ctx, s)
}

// Preview scores an attempt without saving it.
func (svc *service) Preview(reference, typed string, elapsedSeconds float64) scoring.Result {
	return scoring.Evaluate(reference, typed, elapsedSeconds, svc.lookahead)
}

func (svc *service) Get(ctx context.Context, id string) (Score, error) {
	return svc.repo.GetScore(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Score, error) {
	return svc.repo.QueryScores(ctx, filter, ordering)
}

// Report summarizes the matching scores, overall and per student.
func (svc *service) Report(ctx context.Context, filter *QueryFilter) (Report, error) {
	scores, err := svc.repo.QueryScores(ctx, filter, nil)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying scores")
	}

	all := make([]scoring.Result, 0, len(scores))
	byStudent := make(map[string][]scoring.Result)
	for _, s := range scores {
		res := s.Result()
		all = append(all, res)
		byStudent[s.StudentID] = append(byStudent[s.StudentID], res)
	}

	report := Report{
		Summary:  scoring.Summarize(all),
		Students: make([]StudentReport, 0, len(byStudent)),
	}
	for studentID, results := range byStudent {
		report.Students = append(report.Students, StudentReport{StudentID: studentID, Summary: scoring.Summarize(results)})
	}
	sort.Slice(report.Students, func(i, j int) bool { return report.Students[i].StudentID < report.Students[j].StudentID })
	return report, nil
}
