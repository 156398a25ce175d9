package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/user"
	"github.com/stenolearn/backend/tests"
)

type actionResult struct {
	Action string          `json:"action"`
	Result json.RawMessage `json:"result"`
}

// runAction posts an action and decodes its result into res, when not nil.
func (e *env) runAction(t *testing.T, token, body string, res interface{}) {
	t.Helper()
	rec := e.serve(http.MethodPost, "/v1/actions", token, []byte(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got actionResult
	unmarshal(t, rec, &got)
	if res != nil {
		require.NoError(t, json.Unmarshal(got.Result, res))
	}
}

func Test_actionApi_validation(t *testing.T) {
	e := setup(t)
	_, teacher, student := e.users(t)
	teacherToken := e.token(t, teacher)

	reqMsg := "this field is required"
	e.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/actions", wantCode: http.StatusUnauthorized},
		{name: "staff required", method: http.MethodPost, path: "/v1/actions", token: e.token(t, student), body: []byte(`{"action": "create_class"}`), wantCode: http.StatusForbidden},
		{
			name: "unknown action", method: http.MethodPost, path: "/v1/actions", token: teacherToken, body: []byte(`{"action": "drop_tables"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"action": `unknown action "drop_tables"`}),
		},
		{
			name: "payload required", method: http.MethodPost, path: "/v1/actions", token: teacherToken, body: []byte(`{"action": "create_class"}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"payload": reqMsg}),
		},
		{
			name: "unknown payload field", method: http.MethodPost, path: "/v1/actions", token: teacherToken,
			body:     []byte(`{"action": "create_class", "payload": {"name": "Steno", "lol": 1}}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"payload": `invalid payload: json: unknown field "lol"`}),
		},
		{
			name: "invalid payload", method: http.MethodPost, path: "/v1/actions", token: teacherToken,
			body:     []byte(`{"action": "create_class", "payload": {"name": 42}}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "payload validation", method: http.MethodPost, path: "/v1/actions", token: teacherToken,
			body:     []byte(`{"action": "create_class", "payload": {"description": "lol"}}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"name": reqMsg}),
		},
		{
			name: "id required", method: http.MethodPost, path: "/v1/actions", token: teacherToken,
			body:     []byte(`{"action": "delete_class", "payload": {"id": "  "}}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"id": reqMsg}),
		},
		{
			name: "unknown class", method: http.MethodPost, path: "/v1/actions", token: teacherToken,
			body:     []byte(`{"action": "delete_class", "payload": {"id": "lol"}}`),
			wantCode: http.StatusNotFound,
		},
		{
			name: "list", path: "/v1/actions", token: teacherToken,
			wantData: marchallList(t,
				"add_students", "create_assignment", "create_class", "delete_assignment", "delete_class",
				"register_student", "remove_students", "update_assignment", "update_class",
			),
		},
	})
}

func Test_actionApi_classes(t *testing.T) {
	e := setup(t)
	_, teacher, student := e.users(t)
	teacher2 := testutil.CreateUser(t, e.usrRepo, "Teacher 2", "teacher2", "teacher2@test.cd", "", []string{user.RoleTeacher}, true)
	teacherToken := e.token(t, teacher)

	var c class.Class
	e.runAction(t, teacherToken, `{"action": "create_class", "payload": {"name": " Steno 101 ", "teacher_id": "`+teacher2.ID+`"}}`, &c)
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, "Steno 101", c.Name)
	assert.Equal(t, teacher.ID, c.TeacherID, "teachers own the classes they create")

	e.runAction(t, teacherToken, `{"action": "update_class", "payload": {"id": "`+c.ID+`", "description": "Shorthand"}}`, &c)
	assert.Equal(t, "Steno 101", c.Name)
	assert.Equal(t, "Shorthand", c.Description)

	e.runAction(t, teacherToken, `{"action": "add_students", "payload": {"id": "`+c.ID+`", "student_ids": ["`+student.ID+`"]}}`, &c)
	assert.Equal(t, []string{student.ID}, c.StudentIDs)

	// teacher2 can see nothing of it
	rec := e.serve(http.MethodPost, "/v1/actions", e.token(t, teacher2), []byte(`{"action": "remove_students", "payload": {"id": "`+c.ID+`", "student_ids": ["`+student.ID+`"]}}`))
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	e.runAction(t, teacherToken, `{"action": "remove_students", "payload": {"id": "`+c.ID+`", "student_ids": ["`+student.ID+`"]}}`, &c)
	assert.Empty(t, c.StudentIDs)

	e.runAction(t, teacherToken, `{"action": "delete_class", "payload": {"id": "`+c.ID+`"}}`, nil)
	_, err := e.classRepo.GetClass(context.Background(), c.ID)
	assert.True(t, core.IsNotFound(err))
}

func Test_actionApi_assignments(t *testing.T) {
	e := setup(t)
	_, teacher, student := e.users(t)
	c := testutil.CreateClass(t, e.classRepo, "Steno 101", teacher, student)
	teacherToken := e.token(t, teacher)

	// validation runs before the class lookup
	rec := e.serve(http.MethodPost, "/v1/actions", teacherToken, []byte(`{"action": "create_assignment", "payload": {"class_id": "lol"}}`))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{
			"title":        "this field is required",
			"correct_text": "this field is required",
		}),
	}, rec)

	var a struct {
		ID          string `json:"id"`
		ClassID     string `json:"class_id"`
		Title       string `json:"title"`
		CorrectText string `json:"correct_text"`
		IsActive    bool   `json:"is_active"`
	}
	e.runAction(t, teacherToken, `{"action": "create_assignment", "payload": {"class_id": "`+c.ID+`", "title": "Lesson 1", "correct_text": "the quick brown fox"}}`, &a)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, c.ID, a.ClassID)
	assert.Equal(t, "Lesson 1", a.Title)
	assert.True(t, a.IsActive)

	e.runAction(t, teacherToken, `{"action": "update_assignment", "payload": {"id": "`+a.ID+`", "title": "Lesson 2"}}`, &a)
	assert.Equal(t, "Lesson 2", a.Title)
	assert.Equal(t, "the quick brown fox", a.CorrectText)

	e.runAction(t, teacherToken, `{"action": "delete_assignment", "payload": {"id": "`+a.ID+`"}}`, nil)
	_, err := e.assignmentRepo.GetAssignment(context.Background(), a.ID)
	assert.True(t, core.IsNotFound(err))
}

func Test_actionApi_registerStudent(t *testing.T) {
	e := setup(t)
	admin, teacher, _ := e.users(t)

	for name, token := range map[string]string{"teacher": e.token(t, teacher), "admin": e.token(t, admin)} {
		t.Run(name, func(t *testing.T) {
			var usr user.User
			e.runAction(t, token, `{"action": "register_student", "payload": {
				"name": "New `+name+`", "username": "new_`+name+`", "password": "`+testPassword+`",
				"password_confirm": "`+testPassword+`", "roles": ["admin"]}}`, &usr)
			assert.NotEmpty(t, usr.ID)
			assert.Equal(t, "new_"+name, usr.Username)
			assert.Equal(t, []string{user.RoleStudent}, usr.Roles)
		})
	}
}
