package sqlxrepos_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/scoring"
	"github.com/stenolearn/backend/core/user"
	"github.com/stenolearn/backend/storage/database/sqlx"
	"github.com/stenolearn/backend/tests"
)

func userIDs(users []user.User) []string {
	ids := make([]string, 0, len(users))
	for _, usr := range users {
		ids = append(ids, usr.ID)
	}
	return ids
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	repo := sqlxrepos.NewUserRepository(db)

	now := time.Now().UTC().Truncate(time.Second)
	teacher := testutil.CreateUser(t, repo, "Teacher", "teach", "teach@test.cd", "", []string{user.RoleTeacher}, true, now)
	student := testutil.CreateUser(t, repo, "Student", "", "stud@test.cd", "", []string{user.RoleStudent}, true, now.Add(time.Minute))
	inactive := testutil.CreateUser(t, repo, "Naughty", "ndog", "", "", []string{user.RoleStudent}, false, now.Add(2*time.Minute))

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetUser(ctx, user.GetFilter{ID: teacher.ID})
		require.NoError(t, err)
		assert.Equal(t, teacher, got)
		assert.Equal(t, []string{user.RoleTeacher}, got.Roles)
		assert.True(t, got.CreatedAt.Equal(now))

		got, err = repo.GetUser(ctx, user.GetFilter{Email: "stud@test.cd"})
		require.NoError(t, err)
		assert.Equal(t, student.ID, got.ID)
		assert.Equal(t, "", got.Username)

		got, err = repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: []string{"ndog"}})
		require.NoError(t, err)
		assert.Equal(t, inactive.ID, got.ID)

		_, err = repo.GetUser(ctx, user.GetFilter{ID: uuid.NewString()})
		assert.True(t, core.IsNotFound(err))
		_, err = repo.GetUser(ctx, user.GetFilter{})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("uniqueness", func(t *testing.T) {
		assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "teach", "other@test.cd"))
		assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "other", "stud@test.cd"))
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "teach", "teach@test.cd", teacher))
		// empty usernames are stored as NULL, they never collide
		assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "", "new@test.cd"))
		testutil.CreateUser(t, repo, "No Username", "", "nouname@test.cd", "", nil, true, now.Add(3*time.Minute))
	})

	t.Run("query", func(t *testing.T) {
		bPtr := func(b bool) *bool { return &b }
		tests := []struct {
			name     string
			filter   *user.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "role", filter: &user.QueryFilter{Roles: []string{user.RoleStudent}}, want: []string{student.ID, inactive.ID}},
			{name: "roles", filter: &user.QueryFilter{Roles: []string{user.RoleStudent, user.RoleTeacher}}, want: []string{teacher.ID, student.ID, inactive.ID}},
			{name: "inactive", filter: &user.QueryFilter{IsActive: bPtr(false)}, want: []string{inactive.ID}},
			{name: "search", filter: &user.QueryFilter{Search: "STUD"}, want: []string{student.ID}},
			{name: "search (escaped)", filter: &user.QueryFilter{Search: "%"}, want: []string{}},
			{name: "ids", filter: &user.QueryFilter{IDs: []string{inactive.ID, teacher.ID}}, want: []string{teacher.ID, inactive.ID}},
			{name: "ids (empty)", filter: &user.QueryFilter{IDs: []string{}}, want: []string{}},
			{
				name:     "ordering",
				filter:   &user.QueryFilter{Roles: []string{user.RoleStudent, user.RoleTeacher}},
				ordering: []core.DBOrdering{{Field: "name", Ascending: true}},
				want:     []string{inactive.ID, student.ID, teacher.ID},
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.QueryUsers(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				assert.Equal(t, tt.want, userIDs(got))
			})
		}
	})

	t.Run("update", func(t *testing.T) {
		usr := student
		usr.Name = "Student X"
		usr.Username = "studx"
		usr.LastLogin = null.TimeFrom(now.Add(time.Hour))
		got, err := repo.UpdateUser(ctx, usr)
		require.NoError(t, err)
		assert.Equal(t, "Student X", got.Name)
		assert.Equal(t, "studx", got.Username)
		assert.True(t, got.LastLogin.Valid)
		assert.True(t, got.LastLogin.Time.Equal(now.Add(time.Hour)))

		_, err = repo.UpdateUser(ctx, user.User{ID: uuid.NewString(), Roles: []string{}, CreatedAt: now, UpdatedAt: now})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteUsers(ctx, inactive.ID))
		_, err := repo.GetUser(ctx, user.GetFilter{ID: inactive.ID})
		assert.True(t, core.IsNotFound(err))
		assert.NoError(t, repo.DeleteUsers(ctx))
	})
}

func TestClassRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	repo := sqlxrepos.NewClassRepository(db)

	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach", "", "", []string{user.RoleTeacher}, true)
	stud1 := testutil.CreateUser(t, usrRepo, "Stud 1", "stud1", "", "", []string{user.RoleStudent}, true)
	stud2 := testutil.CreateUser(t, usrRepo, "Stud 2", "stud2", "", "", []string{user.RoleStudent}, true)

	maths := testutil.CreateClass(t, repo, "Maths", teacher, stud1)
	bio := testutil.CreateClass(t, repo, "Biology", teacher)
	assert.Equal(t, []string{stud1.ID}, maths.StudentIDs)
	assert.Equal(t, []string{}, bio.StudentIDs)

	t.Run("add students", func(t *testing.T) {
		later := time.Now().UTC().Add(time.Hour)
		require.NoError(t, repo.AddStudents(ctx, maths.ID, []string{stud1.ID, stud2.ID, stud2.ID}, later))
		got, err := repo.GetClass(ctx, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{stud1.ID, stud2.ID}, got.StudentIDs)

		assert.Error(t, repo.AddStudents(ctx, uuid.NewString(), []string{stud1.ID}, later))
	})

	t.Run("query", func(t *testing.T) {
		got, err := repo.QueryClasses(ctx, &class.QueryFilter{TeacherID: teacher.ID}, []core.DBOrdering{{Field: "name", Ascending: true}})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, bio.ID, got[0].ID)
		assert.Equal(t, maths.ID, got[1].ID)

		got, err = repo.QueryClasses(ctx, &class.QueryFilter{StudentID: stud2.ID}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, maths.ID, got[0].ID)
		assert.Equal(t, []string{stud1.ID, stud2.ID}, got[0].StudentIDs)

		got, err = repo.QueryClasses(ctx, &class.QueryFilter{Search: "bio"}, nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, bio.ID, got[0].ID)
	})

	t.Run("remove students", func(t *testing.T) {
		require.NoError(t, repo.RemoveStudents(ctx, maths.ID, []string{stud1.ID}))
		got, err := repo.GetClass(ctx, maths.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{stud2.ID}, got.StudentIDs)
	})

	t.Run("update", func(t *testing.T) {
		c := bio
		c.Name = "Bio"
		c.Description = "Cells"
		got, err := repo.UpdateClass(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, "Bio", got.Name)
		assert.Equal(t, "Cells", got.Description)

		_, err = repo.UpdateClass(ctx, class.Class{ID: uuid.NewString()})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("delete cascades", func(t *testing.T) {
		asgRepo := sqlxrepos.NewAssignmentRepository(db)
		a := testutil.CreateAssignment(t, asgRepo, maths, "Lesson 1", "the cat", true)

		require.NoError(t, repo.DeleteClass(ctx, maths.ID))
		_, err := repo.GetClass(ctx, maths.ID)
		assert.True(t, core.IsNotFound(err))
		_, err = asgRepo.GetAssignment(ctx, a.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestAssignmentRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	clsRepo := sqlxrepos.NewClassRepository(db)
	repo := sqlxrepos.NewAssignmentRepository(db)

	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach", "", "", []string{user.RoleTeacher}, true)
	maths := testutil.CreateClass(t, clsRepo, "Maths", teacher)
	bio := testutil.CreateClass(t, clsRepo, "Biology", teacher)

	deadline := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	a1 := testutil.CreateAssignment(t, repo, maths, "B lesson", "the cat sat", true, deadline)
	a2 := testutil.CreateAssignment(t, repo, maths, "A lesson", "the dog ran", false)
	a3 := testutil.CreateAssignment(t, repo, bio, "C lesson", "cells", true)

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetAssignment(ctx, a1.ID)
		require.NoError(t, err)
		assert.Equal(t, teacher.ID, got.TeacherID)
		assert.True(t, got.Deadline.Valid)
		assert.True(t, got.Deadline.Time.Equal(deadline))
		assert.False(t, got.ImageURL.Valid)

		got, err = repo.GetAssignment(ctx, a2.ID)
		require.NoError(t, err)
		assert.False(t, got.Deadline.Valid)

		_, err = repo.GetAssignment(ctx, uuid.NewString())
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("query", func(t *testing.T) {
		ids := func(as []assignment.Assignment) []string {
			res := make([]string, 0, len(as))
			for _, a := range as {
				res = append(res, a.ID)
			}
			return res
		}
		active := true

		got, err := repo.QueryAssignments(ctx, &assignment.QueryFilter{ClassIDs: []string{maths.ID}}, []core.DBOrdering{{Field: "title", Ascending: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{a2.ID, a1.ID}, ids(got))

		got, err = repo.QueryAssignments(ctx, &assignment.QueryFilter{IsActive: &active}, []core.DBOrdering{{Field: "title", Ascending: true}})
		require.NoError(t, err)
		assert.Equal(t, []string{a1.ID, a3.ID}, ids(got))

		got, err = repo.QueryAssignments(ctx, &assignment.QueryFilter{ClassIDs: []string{}}, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("update", func(t *testing.T) {
		a := a1
		a.Title = "Lesson X"
		a.ImageURL = null.StringFrom("http://localhost/media/x.png")
		a.Deadline = null.Time{}
		got, err := repo.UpdateAssignment(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "Lesson X", got.Title)
		assert.Equal(t, "http://localhost/media/x.png", got.ImageURL.String)
		assert.False(t, got.Deadline.Valid)

		_, err = repo.UpdateAssignment(ctx, assignment.Assignment{ID: uuid.NewString()})
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, repo.DeleteAssignment(ctx, a3.ID))
		_, err := repo.GetAssignment(ctx, a3.ID)
		assert.True(t, core.IsNotFound(err))
	})
}

func TestScoreRepository(t *testing.T) {
	ctx := context.Background()
	db := testutil.OpenDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	repo := sqlxrepos.NewScoreRepository(db)

	stud1 := testutil.CreateUser(t, usrRepo, "Stud 1", "stud1", "", "", []string{user.RoleStudent}, true)
	stud2 := testutil.CreateUser(t, usrRepo, "Stud 2", "stud2", "", "", []string{user.RoleStudent}, true)

	now := time.Now().UTC().Truncate(time.Second)
	newScore := func(studentID, assignmentID, classID string, accuracy int, completedAt time.Time, mistakes []scoring.Mistake) score.Score {
		s, err := repo.CreateScore(ctx, score.Score{
			ID:           uuid.NewString(),
			StudentID:    studentID,
			AssignmentID: assignmentID,
			ClassID:      classID,
			TypedText:    "the cat",
			Accuracy:     accuracy,
			WordAccuracy: accuracy,
			Progress:     100,
			WPM:          42,
			Mistakes:     mistakes,
			TimeElapsed:  12.5,
			CompletedAt:  completedAt,
		})
		require.NoError(t, err)
		return s
	}
	mistakes := []scoring.Mistake{{Expected: "sat", Actual: "sit", Position: 2}}
	s1 := newScore(stud1.ID, "asg-1", "cls-1", 80, now, mistakes)
	s2 := newScore(stud1.ID, score.TypingTestID, "", 95, now.Add(time.Minute), nil)
	s3 := newScore(stud2.ID, "asg-1", "cls-1", 60, now.Add(2*time.Minute), nil)

	t.Run("get", func(t *testing.T) {
		got, err := repo.GetScore(ctx, s1.ID)
		require.NoError(t, err)
		assert.Equal(t, mistakes, got.Mistakes)
		assert.Equal(t, 12.5, got.TimeElapsed)
		assert.True(t, got.CompletedAt.Equal(now))

		got, err = repo.GetScore(ctx, s2.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Mistakes)
		assert.Empty(t, got.Mistakes)
		assert.True(t, got.IsTypingTest())

		_, err = repo.GetScore(ctx, uuid.NewString())
		assert.True(t, core.IsNotFound(err))
	})

	t.Run("query", func(t *testing.T) {
		ids := func(scores []score.Score) []string {
			res := make([]string, 0, len(scores))
			for _, s := range scores {
				res = append(res, s.ID)
			}
			return res
		}
		tests := []struct {
			name     string
			filter   *score.QueryFilter
			ordering []core.DBOrdering
			want     []string
		}{
			{name: "all (latest first)", want: []string{s3.ID, s2.ID, s1.ID}},
			{name: "student", filter: &score.QueryFilter{StudentID: stud1.ID}, want: []string{s2.ID, s1.ID}},
			{name: "assignment", filter: &score.QueryFilter{AssignmentID: "asg-1"}, want: []string{s3.ID, s1.ID}},
			{name: "classes", filter: &score.QueryFilter{ClassIDs: []string{"cls-1"}}, want: []string{s3.ID, s1.ID}},
			{name: "classes (empty)", filter: &score.QueryFilter{ClassIDs: []string{}}, want: []string{}},
			{name: "by accuracy", ordering: []core.DBOrdering{{Field: "accuracy"}}, want: []string{s2.ID, s1.ID, s3.ID}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := repo.QueryScores(ctx, tt.filter, tt.ordering)
				require.NoError(t, err)
				assert.Equal(t, tt.want, ids(got))
			})
		}
	})

	t.Run("deleting the student deletes the scores", func(t *testing.T) {
		require.NoError(t, usrRepo.DeleteUsers(ctx, stud2.ID))
		_, err := repo.GetScore(ctx, s3.ID)
		assert.True(t, core.IsNotFound(err))
	})
}
