package assignment

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/class"
)

var ErrNotFound = core.NewNotFoundError("assignment not found")

type (
	Service interface {
		Create(ctx context.Context, na NewAssignment) (Assignment, error)
		Get(ctx context.Context, id string) (Assignment, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Assignment, error)
		Update(ctx context.Context, id string, ua UpdateAssignment) (Assignment, error)
		Delete(ctx context.Context, id string) error
		AttachImage(ctx context.Context, id string, r io.Reader, filename string) (Assignment, error)
	}

	service struct {
		repo     Repository
		classSvc class.Service
		mediaSvc core.MediaService
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, classSvc class.Service, mediaSvc core.MediaService) Service {
	return &service{
		repo:     repo,
		classSvc: classSvc,
		mediaSvc: mediaSvc,
	}
}

// Create adds an assignment to an existing class, owned by the teacher of that class.
func (svc *service) Create(ctx context.Context, na NewAssignment) (Assignment, error) {
	c, err := svc.classSvc.Get(ctx, na.ClassID)
	if err != nil {
		if core.IsNotFound(err) {
			return Assignment{}, core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
		}
		return Assignment{}, errors.Wrap(err, "getting class")
	}

	now := time.Now().UTC()
	a := Assignment{
		ID:          uuid.New().String(),
		ClassID:     c.ID,
		TeacherID:   c.TeacherID,
		Title:       na.Title,
		Description: na.Description,
		CorrectText: na.CorrectText,
		ImageURL:    null.NewString(na.ImageURL, na.ImageURL != ""),
		Deadline:    null.TimeFromPtr(utcPtr(na.Deadline)),
		IsActive:    na.IsActive == nil || *na.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateAssignment(ctx, a)
}

func (svc *service) Get(ctx context.Context, id string) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, filter, ordering)
}

// Update expects ua to be validated against the Assignment beforehand (see UpdateAssignment.Validate).
func (svc *service) Update(ctx context.Context, id string, ua UpdateAssignment) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	a.Title = ua.Title
	a.Description = ua.Description
	a.CorrectText = ua.CorrectText
	a.ImageURL = null.NewString(ua.ImageURL, ua.ImageURL != "")
	a.Deadline = null.TimeFromPtr(utcPtr(ua.Deadline))
	if ua.IsActive != nil {
		a.IsActive = *ua.IsActive
	}
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteAssignment(ctx, id)
}

// AttachImage uploads the reference image of the assignment and saves its URL.
func (svc *service) AttachImage(ctx context.Context, id string, r io.Reader, filename string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	url, err := svc.mediaSvc.Upload(ctx, r, a.ID+"-"+filename)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "uploading image")
	}
	a.ImageURL = null.StringFrom(url)
	a.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateAssignment(ctx, a)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
