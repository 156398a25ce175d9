package score_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/scoring"
	"github.com/stenolearn/backend/core/user"
	emailsvc "github.com/stenolearn/backend/services/email"
	logsvc "github.com/stenolearn/backend/services/logger"
	inmemdb "github.com/stenolearn/backend/storage/database/inmem"
	"github.com/stenolearn/backend/tests"
)

type fixture struct {
	svc            score.Service
	usrRepo        user.Repository
	classRepo      class.Repository
	assignmentRepo assignment.Repository
	scoreRepo      score.Repository
}

func setup(t *testing.T) fixture {
	conf := testutil.Config()
	lgr := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, lgr)

	db := inmemdb.Open()
	f := fixture{
		usrRepo:        inmemdb.NewUserRepository(db),
		classRepo:      inmemdb.NewClassRepository(db),
		assignmentRepo: inmemdb.NewAssignmentRepository(db),
		scoreRepo:      inmemdb.NewScoreRepository(db),
	}
	tokens := user.NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta)
	usrSvc := user.NewServiceMock(f.usrRepo, mailSvc, tokens, lgr)
	classSvc := class.NewService(f.classRepo, usrSvc, mailSvc)
	assignmentSvc := assignment.NewService(f.assignmentRepo, classSvc, nil)
	f.svc = score.NewService(f.scoreRepo, assignmentSvc, classSvc, conf.Scoring)
	return f
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func TestService_Submit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	teacher := testutil.CreateUser(t, f.usrRepo, "Teacher", "teacher", "", "", []string{user.RoleTeacher}, true)
	student := testutil.CreateUser(t, f.usrRepo, "Student", "student", "", "", []string{user.RoleStudent}, true)
	loner := testutil.CreateUser(t, f.usrRepo, "Loner", "loner", "", "", []string{user.RoleStudent}, true)
	c := testutil.CreateClass(t, f.classRepo, "Steno 101", teacher, student)

	const text = "the quick brown fox"
	active := testutil.CreateAssignment(t, f.assignmentRepo, c, "Lesson 1", text, true)
	inactive := testutil.CreateAssignment(t, f.assignmentRepo, c, "Lesson 2", text, false)
	late := testutil.CreateAssignment(t, f.assignmentRepo, c, "Lesson 3", text, true, time.Now().Add(-time.Minute))
	onTime := testutil.CreateAssignment(t, f.assignmentRepo, c, "Lesson 4", text, true, time.Now().Add(time.Hour))

	t.Run("errors", func(t *testing.T) {
		_, err := f.svc.Submit(ctx, student, score.NewScore{AssignmentID: "lol", TypedText: "lol"})
		var verr *core.ValidationError
		require.True(t, errors.As(err, &verr), "got %v", err)

		_, err = f.svc.Submit(ctx, student, score.NewScore{AssignmentID: inactive.ID, TypedText: "lol"})
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, score.ErrInactive, verr.Err)

		_, err = f.svc.Submit(ctx, loner, score.NewScore{AssignmentID: active.ID, TypedText: "lol"})
		assert.Equal(t, score.ErrNotEnrolled, err)

		scores, err := f.scoreRepo.QueryScores(ctx, nil, nil)
		require.NoError(t, err)
		assert.Empty(t, scores, "failed submissions are not saved")
	})

	tests := []struct {
		name string
		ns   score.NewScore
		want score.Score
	}{
		{
			name: "computed metrics",
			ns:   score.NewScore{AssignmentID: active.ID, TypedText: "the quick", TimeElapsed: floatPtr(30), WPM: intPtr(99)},
			want: score.Score{
				AssignmentID: active.ID, ClassID: c.ID, TypedText: "the quick",
				Accuracy: 100, WordAccuracy: 50, Progress: 47, WPM: 4, TimeElapsed: 30, Mistakes: []scoring.Mistake{},
			},
		},
		{
			name: "estimated elapsed time",
			ns:   score.NewScore{AssignmentID: active.ID, TypedText: text, WPM: intPtr(20)},
			want: score.Score{
				AssignmentID: active.ID, ClassID: c.ID, TypedText: text,
				Accuracy: 100, WordAccuracy: 100, Progress: 100, WPM: 20, TimeElapsed: 12, Mistakes: []scoring.Mistake{},
			},
		},
		{
			name: "no timing at all",
			ns:   score.NewScore{AssignmentID: active.ID, TypedText: text},
			want: score.Score{
				AssignmentID: active.ID, ClassID: c.ID, TypedText: text,
				Accuracy: 100, WordAccuracy: 100, Progress: 100, WPM: 4, TimeElapsed: scoring.FallbackElapsedSeconds, Mistakes: []scoring.Mistake{},
			},
		},
		{
			name: "late",
			ns:   score.NewScore{AssignmentID: late.ID, TypedText: "the quick brown dog", TimeElapsed: floatPtr(60)},
			want: score.Score{
				AssignmentID: late.ID, ClassID: c.ID, TypedText: "the quick brown dog", IsLate: true,
				Accuracy: 89, WordAccuracy: 75, Progress: 100, WPM: 4, TimeElapsed: 60,
				Mistakes: []scoring.Mistake{{Expected: "fox", Actual: "dog", Position: 3}},
			},
		},
		{
			name: "before the deadline",
			ns:   score.NewScore{AssignmentID: onTime.ID, TypedText: text, TimeElapsed: floatPtr(60)},
			want: score.Score{
				AssignmentID: onTime.ID, ClassID: c.ID, TypedText: text,
				Accuracy: 100, WordAccuracy: 100, Progress: 100, WPM: 4, TimeElapsed: 60, Mistakes: []scoring.Mistake{},
			},
		},
		{
			name: "typing test",
			ns:   score.NewScore{AssignmentID: score.TypingTestID, ReferenceText: "jumps over", TypedText: "jumps over", TimeElapsed: floatPtr(6)},
			want: score.Score{
				AssignmentID: score.TypingTestID, TypedText: "jumps over",
				Accuracy: 100, WordAccuracy: 100, Progress: 100, WPM: 20, TimeElapsed: 6, Mistakes: []scoring.Mistake{},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Submit(ctx, student, tt.ns)
			require.NoError(t, err)
			assert.NotEmpty(t, got.ID)
			assert.WithinDuration(t, time.Now(), got.CompletedAt, time.Minute)

			tt.want.ID = got.ID
			tt.want.StudentID = student.ID
			tt.want.CompletedAt = got.CompletedAt
			assert.Equal(t, tt.want, got)

			saved, err := f.svc.Get(ctx, got.ID)
			require.NoError(t, err)
			assert.Equal(t, got, saved)
		})
	}
}

func TestService_Report(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	teacher := testutil.CreateUser(t, f.usrRepo, "Teacher", "teacher", "", "", []string{user.RoleTeacher}, true)
	s1 := testutil.CreateUser(t, f.usrRepo, "Student 1", "student1", "", "", []string{user.RoleStudent}, true)
	s2 := testutil.CreateUser(t, f.usrRepo, "Student 2", "student2", "", "", []string{user.RoleStudent}, true)
	c := testutil.CreateClass(t, f.classRepo, "Steno 101", teacher, s1, s2)
	a := testutil.CreateAssignment(t, f.assignmentRepo, c, "Lesson 1", "the quick brown fox", true)

	for _, sub := range []struct {
		student user.User
		typed   string
	}{
		{s1, "the quick brown fox"},
		{s1, "the quick brown dog"},
		{s2, "the quick"},
	} {
		_, err := f.svc.Submit(ctx, sub.student, score.NewScore{AssignmentID: a.ID, TypedText: sub.typed, TimeElapsed: floatPtr(60)})
		require.NoError(t, err)
	}

	t.Run("empty", func(t *testing.T) {
		report, err := f.svc.Report(ctx, &score.QueryFilter{AssignmentID: "lol"})
		require.NoError(t, err)
		assert.Equal(t, scoring.Summary{}, report.Summary)
		assert.NotNil(t, report.Students)
		assert.Empty(t, report.Students)
	})

	t.Run("assignment", func(t *testing.T) {
		report, err := f.svc.Report(ctx, &score.QueryFilter{AssignmentID: a.ID})
		require.NoError(t, err)
		assert.Equal(t, scoring.Summary{
			Attempts:        3,
			AverageAccuracy: 96.33, // (100 + 89 + 100) / 3
			BestAccuracy:    100,
			AverageWPM:      3.33,
			BestWPM:         4,
			AverageProgress: 82.33,
			TotalMistakes:   1,
		}, report.Summary)

		require.Len(t, report.Students, 2)
		byStudent := map[string]scoring.Summary{}
		for i, sr := range report.Students {
			if i > 0 {
				assert.Less(t, report.Students[i-1].StudentID, sr.StudentID, "sorted by student")
			}
			byStudent[sr.StudentID] = sr.Summary
		}
		assert.Equal(t, 2, byStudent[s1.ID].Attempts)
		assert.Equal(t, 94.5, byStudent[s1.ID].AverageAccuracy)
		assert.Equal(t, 1, byStudent[s1.ID].TotalMistakes)
		assert.Equal(t, 1, byStudent[s2.ID].Attempts)
		assert.Equal(t, 47.0, byStudent[s2.ID].AverageProgress)
	})

	t.Run("student", func(t *testing.T) {
		report, err := f.svc.Report(ctx, &score.QueryFilter{StudentID: s2.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Attempts)
		assert.Equal(t, 2.0, report.AverageWPM) // 2 words in 60s
	})
}

func TestService_Preview(t *testing.T) {
	f := setup(t)
	res := f.svc.Preview("the quick brown fox", "the quikc", 60)
	assert.Equal(t, scoring.Evaluate("the quick brown fox", "the quikc", 60, scoring.DefaultLookahead), res)

	scores, err := f.scoreRepo.QueryScores(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}
