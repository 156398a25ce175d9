package class

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/user"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError("class not found")
	ErrNotStudent = errors.New("only active students can be enrolled")
)

type (
	Service interface {
		Create(ctx context.Context, teacher user.User, nc NewClass) (Class, error)
		Get(ctx context.Context, id string) (Class, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error)
		Update(ctx context.Context, id string, uc UpdateClass) (Class, error)
		Delete(ctx context.Context, id string) error
		AddStudents(ctx context.Context, classID string, studentIDs []string) (Class, error)
		RemoveStudents(ctx context.Context, classID string, studentIDs []string) (Class, error)
		Students(ctx context.Context, classID string) ([]user.User, error)
		HasStudent(ctx context.Context, classID, studentID string) (bool, error)
	}

	service struct {
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
	}

	enrollmentData struct {
		StudentName string
		TeacherName string
		ClassName   string
		ClassID     string
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrSvc user.Service, mailSvc core.EmailService) Service {
	return &service{
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
	}
}

func (svc *service) Create(ctx context.Context, teacher user.User, nc NewClass) (Class, error) {
	now := time.Now().UTC()
	return svc.repo.CreateClass(ctx, Class{
		ID:          uuid.New().String(),
		Name:        nc.Name,
		Description: nc.Description,
		TeacherID:   teacher.ID,
		StudentIDs:  []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) Get(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, filter, ordering)
}

func (svc *service) Update(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	c, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	c.Name = uc.Name
	c.Description = uc.Description
	c.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, c)
}

func (svc *service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteClass(ctx, id)
}

// AddStudents enrols active students in the class and notifies the newly enrolled ones by email.
func (svc *service) AddStudents(ctx context.Context, classID string, studentIDs []string) (Class, error) {
	c, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	studentIDs = core.CleanStrings(studentIDs)
	if len(studentIDs) == 0 {
		return c, nil
	}

	isActive := true
	students, err := svc.usrSvc.Query(ctx, &user.QueryFilter{IDs: studentIDs, IsActive: &isActive}, nil)
	if err != nil {
		return Class{}, errors.Wrap(err, "querying students")
	}
	if len(students) != len(studentIDs) || !allStudents(students) {
		return Class{}, core.NewValidationError(ErrNotStudent, core.FieldError{Field: "student_ids", Error: ErrNotStudent.Error()})
	}

	newStudents := make([]user.User, 0, len(students))
	for _, usr := range students {
		if !c.HasStudent(usr.ID) {
			newStudents = append(newStudents, usr)
		}
	}

	ids := make([]string, 0, len(newStudents))
	for _, usr := range newStudents {
		ids = append(ids, usr.ID)
	}
	if len(ids) > 0 {
		if err := svc.repo.AddStudents(ctx, c.ID, ids, time.Now().UTC()); err != nil {
			return Class{}, errors.Wrap(err, "adding students")
		}
		svc.sendEnrollmentMails(ctx, c, newStudents)
	}
	return svc.repo.GetClass(ctx, c.ID)
}

func allStudents(users []user.User) bool {
	for _, usr := range users {
		if !usr.IsStudent() {
			return false
		}
	}
	return true
}

func (svc *service) sendEnrollmentMails(ctx context.Context, c Class, students []user.User) {
	var teacherName string
	if teacher, err := svc.usrSvc.GetByID(ctx, c.TeacherID); err == nil {
		teacherName = teacher.Name
	}

	messages := make([]*core.EmailMessage, 0, len(students))
	for _, usr := range students {
		if usr.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      "You have been added to " + c.Name,
			TemplateName: "class_enrollment",
			TemplateData: enrollmentData{
				StudentName: usr.Name,
				TeacherName: teacherName,
				ClassName:   c.Name,
				ClassID:     c.ID,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}

func (svc *service) RemoveStudents(ctx context.Context, classID string, studentIDs []string) (Class, error) {
	c, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if studentIDs = core.CleanStrings(studentIDs); len(studentIDs) > 0 {
		if err := svc.repo.RemoveStudents(ctx, c.ID, studentIDs); err != nil {
			return Class{}, errors.Wrap(err, "removing students")
		}
	}
	return svc.repo.GetClass(ctx, c.ID)
}

func (svc *service) Students(ctx context.Context, classID string) ([]user.User, error) {
	c, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return nil, err
	}
	if len(c.StudentIDs) == 0 {
		return []user.User{}, nil
	}
	return svc.usrSvc.Query(ctx, &user.QueryFilter{IDs: c.StudentIDs}, []core.DBOrdering{{Field: "name", Ascending: true}})
}

func (svc *service) HasStudent(ctx context.Context, classID, studentID string) (bool, error) {
	c, err := svc.repo.GetClass(ctx, classID)
	if err != nil {
		return false, err
	}
	return c.HasStudent(studentID), nil
}
