// Package testutil holds the helpers shared by the tests of the repositories, services and apps.
package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/user"
	"github.com/stenolearn/backend/storage/database"
)

// Config returns a TEST config which does not depend on the environment.
func Config() *core.Config {
	return &core.Config{
		AppName:                   "StenoLearn",
		Build:                     "test",
		Env:                       "TEST",
		Debug:                     true,
		TestMode:                  true,
		SecretKey:                 "test-secret-key",
		FrontendBaseURL:           "http://localhost:3000",
		DefaultFromEmail:          mail.Address{Name: "StenoLearn", Address: "noreply@test.cd"},
		PasswordResetTimeoutDelta: 24 * time.Hour,
		Server: core.ServerConfig{
			Address:                   ":8000",
			DisableReqLogs:            true,
			ReadTimeout:               5 * time.Second,
			WriteTimeout:              5 * time.Second,
			ShutdownTimeout:           5 * time.Second,
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: core.DatabaseConfig{Engine: database.EngineSQLite, Name: ":memory:"},
		Media:    core.MediaConfig{Folder: "test", LocalBaseURL: "/media"},
		Scoring:  core.ScoringConfig{Lookahead: 4, MaxWPM: 300},
	}
}

// OpenDB opens a migrated in-memory sqlite database, closed at the end of the test.
func OpenDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("OpenDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC().Truncate(time.Second)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateClass creates a class owned by teacher with the given students enrolled.
func CreateClass(t *testing.T, repo class.Repository, name string, teacher user.User, students ...user.User) class.Class {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)
	c, err := repo.CreateClass(ctx, class.Class{
		ID:        uuid.NewString(),
		Name:      name,
		TeacherID: teacher.ID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	if len(students) > 0 {
		ids := make([]string, 0, len(students))
		for _, s := range students {
			ids = append(ids, s.ID)
		}
		if err = repo.AddStudents(ctx, c.ID, ids, now); err != nil {
			t.Fatalf("CreateClass() failed: %v", err)
		}
		if c, err = repo.GetClass(ctx, c.ID); err != nil {
			t.Fatalf("CreateClass() failed: %v", err)
		}
	}
	return c
}

func CreateAssignment(
	t *testing.T,
	repo assignment.Repository,
	c class.Class,
	title, correctText string,
	isActive bool,
	deadline ...time.Time,
) assignment.Assignment {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	a := assignment.Assignment{
		ID:          uuid.NewString(),
		ClassID:     c.ID,
		TeacherID:   c.TeacherID,
		Title:       title,
		CorrectText: correctText,
		IsActive:    isActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if len(deadline) > 0 {
		a.Deadline = null.TimeFrom(deadline[0].UTC())
	}
	a, err := repo.CreateAssignment(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}
