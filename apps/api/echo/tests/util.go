package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/stenolearn/backend/apps/api/echo"
	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/scoring"
	"github.com/stenolearn/backend/core/user"
	"github.com/stenolearn/backend/services/email"
	"github.com/stenolearn/backend/services/logger"
	"github.com/stenolearn/backend/services/media"
	"github.com/stenolearn/backend/storage/database/inmem"
	"github.com/stenolearn/backend/tests"
)

const testPassword = "K9#mPq2!zLw"

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// env is a server running over in-memory repositories.
type env struct {
	conf           *core.Config
	app            Server
	mailSvc        *emailsvc.ConsoleServiceMock
	tokens         *user.TokenGenerator
	usrRepo        user.Repository
	classRepo      class.Repository
	assignmentRepo assignment.Repository
	scoreRepo      score.Repository
}

func setup(t *testing.T) *env {
	t.Helper()
	conf := testutil.Config()
	conf.Media.LocalDir = t.TempDir()
	lgr := logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), conf)

	// set up DB & repos
	db := inmemdb.Open()
	e := &env{
		conf:           conf,
		mailSvc:        emailsvc.NewConsoleServiceMock(conf, lgr),
		tokens:         user.NewTokenGenerator(conf.SecretKey, conf.PasswordResetTimeoutDelta),
		usrRepo:        inmemdb.NewUserRepository(db),
		classRepo:      inmemdb.NewClassRepository(db),
		assignmentRepo: inmemdb.NewAssignmentRepository(db),
		scoreRepo:      inmemdb.NewScoreRepository(db),
	}

	// set up services
	mediaSvc, err := mediasvc.NewLocalService(conf.Media.LocalDir, conf.Media.LocalBaseURL)
	require.NoError(t, err)
	usrSvc := user.NewServiceMock(e.usrRepo, e.mailSvc, e.tokens, lgr)
	classSvc := class.NewService(e.classRepo, usrSvc, e.mailSvc)
	assignmentSvc := assignment.NewService(e.assignmentRepo, classSvc, mediaSvc)
	scoreSvc := score.NewService(e.scoreRepo, assignmentSvc, classSvc, conf.Scoring)
	validate, translator := core.NewValidator(user.InitValidators)

	// set up server
	e.app = NewServer(ServerDeps{
		Conf:          conf,
		Logger:        lgr,
		UserSvc:       usrSvc,
		ClassSvc:      classSvc,
		AssignmentSvc: assignmentSvc,
		ScoreSvc:      scoreSvc,
		Validate:      validate,
		Translator:    translator,
	})
	t.Cleanup(func() { _ = e.app.Close() })
	return e
}

// users creates an admin, a teacher and a student, all active and with testPassword.
func (e *env) users(t *testing.T) (admin, teacher, student user.User) {
	admin = testutil.CreateUser(t, e.usrRepo, "Admin", "admin", "admin@test.cd", testPassword, []string{user.RoleAdmin}, true)
	teacher = testutil.CreateUser(t, e.usrRepo, "Teacher", "teacher", "teacher@test.cd", testPassword, []string{user.RoleTeacher}, true)
	student = testutil.CreateUser(t, e.usrRepo, "Student", "student", "student@test.cd", testPassword, []string{user.RoleStudent}, true)
	return
}

// score saves a score of student on a, bypassing the scoring.
func (e *env) score(t *testing.T, student user.User, a assignment.Assignment, accuracy, wpm int, completedAt time.Time) score.Score {
	t.Helper()
	s, err := e.scoreRepo.CreateScore(context.Background(), score.Score{
		ID:           uuid.NewString(),
		StudentID:    student.ID,
		AssignmentID: a.ID,
		ClassID:      a.ClassID,
		TypedText:    a.CorrectText,
		Accuracy:     accuracy,
		WordAccuracy: accuracy,
		Progress:     100,
		WPM:          wpm,
		Mistakes:     []scoring.Mistake{},
		TimeElapsed:  60,
		CompletedAt:  completedAt.UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
	return s
}

func (e *env) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := GenerateToken(e.conf, GetUserClaims(e.conf, usr, time.Now()))
	require.NoError(t, err)
	return token
}

// upload posts a multipart form with one file.
func (e *env) upload(t *testing.T, path, token, field, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if field != "" {
		fw, err := w.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

// serve runs a JSON request through the server.
func (e *env) serve(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	e.app.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (e *env) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			wantCode := tt.wantCode
			if wantCode == 0 {
				wantCode = http.StatusOK
			}
			rec := e.serve(method, tt.path, tt.token, tt.body)
			tt.wantCode = wantCode
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

// jsonBytesEqual compares lists regardless of their order.
func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if !ok1 || !ok2 {
		return false, nil
	}
	return assert.ElementsMatch(t, l1, l2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
