package tests

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/stenolearn/backend/apps/api/echo"
	"github.com/stenolearn/backend/core/user"
	"github.com/stenolearn/backend/tests"
)

func Test_server_home(t *testing.T) {
	e := setup(t)

	rec := e.serve(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to StenoLearn API!", rec.Body.String())

	e.run(t, []httpTest{
		{name: "health", path: "/health", wantData: marchallObj(t, HealthResponse{Status: "ok", Build: "test"})},
		{name: "unknown route", path: "/lol", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "Not Found"})},
	})
}

func Test_userApi_login(t *testing.T) {
	e := setup(t)
	_, teacher, _ := e.users(t)
	testutil.CreateUser(t, e.usrRepo, "N Dog", "ndog", "ndog@test.cd", testPassword, []string{user.RoleStudent}, false)

	reqMsg := "this field is required"
	e.run(t, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: "/v1/users/login", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, LoginRequest{Username: reqMsg, Password: reqMsg}),
		},
		{
			name: "unknown user", method: http.MethodPost, path: "/v1/users/login", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: "lol", Password: testPassword}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", method: http.MethodPost, path: "/v1/users/login", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, LoginRequest{Username: teacher.Username, Password: "lol"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive user", method: http.MethodPost, path: "/v1/users/login", wantCode: http.StatusForbidden,
			body:     marchallObj(t, LoginRequest{Username: "ndog", Password: testPassword}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
	})

	for _, uname := range []string{" TEACHER ", teacher.Email} {
		t.Run("logged in with "+uname, func(t *testing.T) {
			rec := e.serve(http.MethodPost, "/v1/users/login", "", marchallObj(t, LoginRequest{Username: uname, Password: testPassword}))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			var resp LoginResponse
			unmarshal(t, rec, &resp)
			require.NotEmpty(t, resp.Token)

			// the token authenticates the user
			rec = e.serve(http.MethodGet, "/v1/users/me", resp.Token)
			require.Equal(t, http.StatusOK, rec.Code)
			var me user.User
			unmarshal(t, rec, &me)
			assert.Equal(t, teacher.ID, me.ID)
			assert.True(t, me.LastLogin.Valid)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	e := setup(t)
	_, _, student := e.users(t)
	naughty := testutil.CreateUser(t, e.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)
	ghost := user.User{ID: "ghost", Roles: []string{user.RoleAdmin}}

	e.run(t, []httpTest{
		{name: "auth required", path: "/v1/users/me", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "invalid token", path: "/v1/users/me", token: "lol", wantCode: http.StatusUnauthorized},
		{name: "deleted user", path: "/v1/users/me", token: e.token(t, ghost), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "user not authenticated"})},
		{name: "inactive user", path: "/v1/users/me", token: e.token(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "me", path: "/v1/users/me", token: e.token(t, student), wantData: marchallObj(t, student)},
	})
}

func Test_userApi_query(t *testing.T) {
	e := setup(t)
	admin, teacher, student := e.users(t)
	other := testutil.CreateUser(t, e.usrRepo, "Other Student", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	naughty := testutil.CreateUser(t, e.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	path := func(params ...string) string {
		v := make(url.Values)
		for i := 0; i+1 < len(params); i += 2 {
			v.Add(params[i], params[i+1])
		}
		return "/v1/users?" + v.Encode()
	}
	adminToken := e.token(t, admin)
	teacherToken := e.token(t, teacher)

	e.run(t, []httpTest{
		{name: "auth required", path: "/v1/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "staff required", path: "/v1/users", token: e.token(t, student), wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{name: "all", path: "/v1/users", token: adminToken, wantData: marchallList(t, admin, teacher, student, other, naughty)},
		{name: "teachers only see students", path: "/v1/users", token: teacherToken, wantData: marchallList(t, student, other, naughty)},
		{name: "teachers cannot see other roles", path: path("role", user.RoleAdmin), token: teacherToken, wantData: marchallList(t, student, other, naughty)},
		{name: "search (unknown)", path: path("search", "lol"), token: adminToken, wantData: marchallList(t)},
		{name: "search", path: path("search", "STUD"), token: adminToken, wantData: marchallList(t, student, other)},
		{name: "role", path: path("role", user.RoleTeacher+","+user.RoleAdmin), token: adminToken, wantData: marchallList(t, admin, teacher)},
		{name: "is_active", path: path("is_active", "false"), token: adminToken, wantData: marchallList(t, naughty)},
		{
			name: "invalid is_active", path: path("is_active", "lol"), token: adminToken, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"is_active": "must be a boolean"}),
		},
		{name: "ids", path: path("id", student.ID, "id", teacher.ID), token: adminToken, wantData: marchallList(t, student, teacher)},
		{name: "ordering", path: path("ordering", "-name"), token: adminToken, wantData: marchallList(t, teacher, student, other, naughty, admin)},
	})
}

func Test_userApi_register(t *testing.T) {
	e := setup(t)
	admin, teacher, student := e.users(t)

	newUser := func(uname string, roles ...string) user.NewUser {
		return user.NewUser{
			Name:            "New " + uname,
			Username:        uname,
			Password:        testPassword,
			PasswordConfirm: testPassword,
			Roles:           roles,
		}
	}

	e.run(t, []httpTest{
		{
			name: "staff required", method: http.MethodPost, path: "/v1/users/register", token: e.token(t, student),
			body: marchallObj(t, newUser("kid")), wantCode: http.StatusForbidden,
		},
		{
			name: "required fields", method: http.MethodPost, path: "/v1/users/register", token: e.token(t, admin),
			body: []byte(`{}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"name":             "this field is required",
				"username":         "one of username or email is required",
				"email":            "one of username or email is required",
				"password":         "this field is required",
				"password_confirm": "this field is required",
			}),
		},
		{
			name: "username taken", method: http.MethodPost, path: "/v1/users/register", token: e.token(t, admin),
			body: marchallObj(t, newUser("teacher")), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": user.ErrUsernameExists.Error()}),
		},
		{
			name: "no rights to set roles", method: http.MethodPost, path: "/v1/users/register", token: e.token(t, admin),
			body: marchallObj(t, newUser("boss", user.RoleAdminOwner)), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
	})

	tests := []struct {
		name      string
		token     string
		data      user.NewUser
		wantRoles []string
	}{
		{name: "teacher registers a student", token: e.token(t, teacher), data: newUser("kid"), wantRoles: []string{user.RoleStudent}},
		{name: "teachers only register students", token: e.token(t, teacher), data: newUser("sneaky", user.RoleAdmin), wantRoles: []string{user.RoleStudent}},
		{name: "admin registers a teacher", token: e.token(t, admin), data: newUser("prof", user.RoleTeacher), wantRoles: []string{user.RoleTeacher}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.serve(http.MethodPost, "/v1/users/register", tt.token, marchallObj(t, tt.data))
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var usr user.User
			unmarshal(t, rec, &usr)
			assert.NotEmpty(t, usr.ID)
			assert.Equal(t, tt.data.Username, usr.Username)
			assert.Equal(t, tt.wantRoles, usr.Roles)
			assert.True(t, usr.IsActive)

			saved, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, saved.CheckPassword(testPassword))
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	e := setup(t)
	admin, teacher, student := e.users(t)
	studentToken := e.token(t, student)
	detail := func(usr user.User) string { return "/v1/users/" + usr.ID }

	e.run(t, []httpTest{
		{name: "auth required", path: detail(student), wantCode: http.StatusUnauthorized},
		{name: "unknown user", path: "/v1/users/lol", token: e.token(t, admin), wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "students see themselves", path: detail(student), token: studentToken, wantData: marchallObj(t, student)},
		{name: "students do not see others", path: detail(teacher), token: studentToken, wantCode: http.StatusNotFound},
		{name: "teachers see students", path: detail(student), token: e.token(t, teacher), wantData: marchallObj(t, student)},
		{name: "teachers do not see admins", path: detail(admin), token: e.token(t, teacher), wantCode: http.StatusNotFound},
		{name: "admins see everybody", path: detail(teacher), token: e.token(t, admin), wantData: marchallObj(t, teacher)},
	})
}

func Test_userApi_update(t *testing.T) {
	e := setup(t)
	admin, teacher, student := e.users(t)
	studentToken := e.token(t, student)
	path := "/v1/users/" + student.ID

	e.run(t, []httpTest{
		{name: "teachers cannot update students", method: http.MethodPut, path: path, token: e.token(t, teacher), body: []byte(`{"name": "Lol"}`), wantCode: http.StatusForbidden},
		{name: "students cannot activate themselves", method: http.MethodPut, path: path, token: studentToken, body: []byte(`{"is_active": true}`), wantCode: http.StatusForbidden},
		{name: "students cannot change their roles", method: http.MethodPut, path: path, token: studentToken, body: []byte(`{"roles": ["admin:"]}`), wantCode: http.StatusForbidden},
		{name: "students cannot change their username", method: http.MethodPut, path: path, token: studentToken, body: []byte(`{"username": "lol"}`), wantCode: http.StatusForbidden},
		{
			name: "invalid roles", method: http.MethodPut, path: path, token: e.token(t, admin), body: []byte(`{"roles": ["janitor:"]}`),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"roles": "invalid roles"}),
		},
	})

	t.Run("students update their name", func(t *testing.T) {
		rec := e.serve(http.MethodPut, path, studentToken, []byte(`{"name": " Renamed Student "}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var usr user.User
		unmarshal(t, rec, &usr)
		assert.Equal(t, "Renamed Student", usr.Name)
		assert.Equal(t, student.Username, usr.Username)
		assert.Equal(t, student.Roles, usr.Roles)
	})

	t.Run("admins deactivate users", func(t *testing.T) {
		rec := e.serve(http.MethodPut, path, e.token(t, admin), []byte(`{"is_active": false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = e.serve(http.MethodGet, "/v1/users/me", studentToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_userApi_destroy(t *testing.T) {
	e := setup(t)
	admin, teacher, student := e.users(t)
	owner := testutil.CreateUser(t, e.usrRepo, "Owner", "owner", "owner@test.cd", "", []string{user.RoleAdminOwner}, true)
	adminToken := e.token(t, admin)

	e.run(t, []httpTest{
		{name: "admin required", method: http.MethodDelete, path: "/v1/users/" + student.ID, token: e.token(t, teacher), wantCode: http.StatusForbidden},
		{name: "cannot delete themselves", method: http.MethodDelete, path: "/v1/users/" + admin.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete higher roles", method: http.MethodDelete, path: "/v1/users/" + owner.ID, token: adminToken, wantCode: http.StatusForbidden},
		{name: "cannot delete multiple with higher roles", method: http.MethodDelete, path: fmt.Sprintf("/v1/users?id=%s,%s", student.ID, owner.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "deleted", method: http.MethodDelete, path: "/v1/users/" + student.ID, token: adminToken, wantCode: http.StatusNoContent},
		{name: "already deleted", method: http.MethodDelete, path: "/v1/users/" + student.ID, token: adminToken, wantCode: http.StatusNotFound},
		{name: "nothing to delete", method: http.MethodDelete, path: "/v1/users", token: adminToken, wantCode: http.StatusNoContent},
		{name: "deleted multiple", method: http.MethodDelete, path: "/v1/users?id=" + teacher.ID, token: adminToken, wantCode: http.StatusNoContent},
	})

	_, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: teacher.ID})
	assert.ErrorIs(t, err, user.ErrNotFound)
}

func Test_userApi_queryRoles(t *testing.T) {
	e := setup(t)
	admin, teacher, _ := e.users(t)

	e.run(t, []httpTest{
		{name: "admin required", path: "/v1/users/roles", token: e.token(t, teacher), wantCode: http.StatusForbidden},
		{name: "roles", path: "/v1/users/roles", token: e.token(t, admin), wantData: marchallObj(t, user.Roles)},
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	e := setup(t)
	_, _, student := e.users(t)
	naughty := testutil.CreateUser(t, e.usrRepo, "N Dog", "ndog", "ndog@test.cd", "", []string{user.RoleStudent}, false)

	now := time.Now()
	oldIat := now.Add(-2 * e.conf.Server.JWTRefreshExpirationDelta).Unix() // older than threshold
	unrefreshableToken, err := GenerateToken(e.conf, GetUserClaims(e.conf, student, now, oldIat))
	require.NoError(t, err)

	path := "/v1/users/token-refresh"
	e.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "inactive user", method: http.MethodPost, path: path, token: e.token(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "refresh expired", method: http.MethodPost, path: path, token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
	})

	t.Run("token refreshed", func(t *testing.T) {
		rec := e.serve(http.MethodPost, path, e.token(t, student))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		// cannot guess new token.. just check that it's not empty
		var resp LoginResponse
		unmarshal(t, rec, &resp)
		assert.NotEmpty(t, resp.Token)
	})
}

func Test_userApi_resetPassword(t *testing.T) {
	e := setup(t)
	_, _, student := e.users(t)
	successData := marchallObj(t, SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})
	pathRegex := regexp.MustCompile("/password-reset/.+/.+")

	path := "/v1/users/password-reset"
	e.run(t, []httpTest{
		{name: "required fields", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest, wantData: marchallObj(t, PasswordResetRequest{Email: "this field is required"})},
		{
			name: "invalid email", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest, body: marchallObj(t, PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{name: "unknown email", method: http.MethodPost, path: path, body: marchallObj(t, PasswordResetRequest{Email: "lol@test.com"}), wantData: successData},
	})
	assert.Empty(t, e.mailSvc.SentMessages())

	rec := e.serve(http.MethodPost, path, "", marchallObj(t, PasswordResetRequest{Email: strings.ToUpper(student.Email)}))
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)

	sent := e.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	msg := sent[0]
	assert.Equal(t, mail.Address{Name: student.Name, Address: student.Email}, msg.To[0])
	assert.Contains(t, msg.TextContent, student.Name)
	assert.Contains(t, msg.HTMLContent, student.Name)
	assert.Regexp(t, pathRegex, msg.TextContent)
	assert.Regexp(t, pathRegex, msg.HTMLContent)
}

func Test_userApi_confirmPasswordReset(t *testing.T) {
	e := setup(t)
	_, _, student := e.users(t)
	validUID := user.EncodeUID(student)
	validToken, err := e.tokens.MakeToken(student)
	require.NoError(t, err)

	const newPwd = "LolC@t123"
	reqMsg := "this field is required"
	path := "/v1/users/password-reset-confirm"
	e.run(t, []httpTest{
		{
			name: "required fields", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, user.ResetUserPassword{Token: reqMsg, UID: reqMsg, Password: reqMsg, PasswordConfirm: reqMsg}),
		},
		{
			name: "invalid pwd: min len", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "lol", PasswordConfirm: "lol"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password must contain at least 8 characters"}),
		},
		{
			name: "invalid pwd: too common", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "P@$$w0rd", PasswordConfirm: "P@$$w0rd"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password is too common"}),
		},
		{
			name: "invalid uid", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, user.ResetUserPassword{UID: user.ErrInvalidUID.Error()}),
		},
		{
			name: "invalid token", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig", UID: validUID, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, user.ResetUserPassword{Token: "invalid token"}),
		},
		{
			name: "valid token", method: http.MethodPost, path: path,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name: "token used", method: http.MethodPost, path: path, wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, user.ResetUserPassword{Token: "invalid token"}),
		},
	})

	saved, err := e.usrRepo.GetUser(context.Background(), user.GetFilter{ID: student.ID})
	require.NoError(t, err)
	assert.NoError(t, saved.CheckPassword(newPwd))
}
