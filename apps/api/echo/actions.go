package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/user"
)

// ActionRequest is the body of `POST /v1/actions`. Action selects the type Payload decodes into.
type ActionRequest struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

type ActionResponse struct {
	Action string      `json:"action"`
	Result interface{} `json:"result"`
}

// action is one of the typed requests of the actions endpoint. validate runs before any
// lookup, so that malformed requests are rejected without touching the database.
type action interface {
	validate(validate *validator.Validate) error
	run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error)
}

var actions = map[string]func() action{
	"create_class":      func() action { return new(createClassAction) },
	"update_class":      func() action { return new(updateClassAction) },
	"delete_class":      func() action { return new(deleteClassAction) },
	"add_students":      func() action { return &studentsAction{adding: true} },
	"remove_students":   func() action { return &studentsAction{adding: false} },
	"create_assignment": func() action { return new(createAssignmentAction) },
	"update_assignment": func() action { return new(updateAssignmentAction) },
	"delete_assignment": func() action { return new(deleteAssignmentAction) },
	"register_student":  func() action { return new(registerStudentAction) },
}

// actionNames returns the sorted tags of the actions endpoint.
func actionNames() []string {
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type actionApi struct {
	classes     *classApi
	assignments *assignmentApi
	users       *userApi
	auth        *authenticator
	validate    *validator.Validate
}

func registerActionAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := &actionApi{
		classes:     newClassApi(auth, deps),
		assignments: newAssignmentApi(auth, deps),
		users:       newUserApi(auth, deps),
		auth:        auth,
		validate:    deps.Validate,
	}

	ag := g.Group("/actions", jwt, activeUserMiddleware(auth), staffMiddleware(auth))
	ag.POST("", api.dispatch)
	ag.GET("", api.list)
}

func (api *actionApi) list(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, actionNames())
}

// decodeAction returns the validated action of req.
func (api *actionApi) decodeAction(req ActionRequest) (action, error) {
	newAction, ok := actions[req.Action]
	if !ok {
		err := errors.Errorf("unknown action %q", req.Action)
		return nil, core.NewValidationError(err, core.FieldError{Field: "action", Error: err.Error()})
	}

	act := newAction()
	if len(req.Payload) == 0 {
		err := errors.New("this field is required")
		return nil, core.NewValidationError(err, core.FieldError{Field: "payload", Error: err.Error()})
	}
	dec := json.NewDecoder(bytes.NewReader(req.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(act); err != nil {
		return nil, core.NewValidationError(err, core.FieldError{Field: "payload", Error: "invalid payload: " + err.Error()})
	}
	if err := act.validate(api.validate); err != nil {
		return nil, err
	}
	return act, nil
}

func (api *actionApi) dispatch(ctx echo.Context) error {
	var req ActionRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to ActionRequest")
	}
	act, err := api.decodeAction(req)
	if err != nil {
		return err
	}

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	res, err := act.run(ctx, ctxUsr, api)
	if err != nil {
		return errors.Wrapf(err, "running action %s", req.Action)
	}
	return ctx.JSON(http.StatusOK, ActionResponse{Action: req.Action, Result: res})
}

// requireID cleans id and fails when it is empty.
func requireID(id *string) error {
	*id = core.CleanString(*id)
	if *id == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "id", Error: "this field is required"})
	}
	return nil
}

type createClassAction struct {
	class.NewClass
}

func (a *createClassAction) validate(validate *validator.Validate) error {
	return a.NewClass.Validate(validate)
}

func (a *createClassAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	return api.classes.createClass(ctx, ctxUsr, a.NewClass)
}

type updateClassAction struct {
	ID string `json:"id"`
	class.UpdateClass
}

func (a *updateClassAction) validate(*validator.Validate) error {
	return requireID(&a.ID)
}

func (a *updateClassAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	c, err := api.classes.managedClass(ctx, ctxUsr, a.ID)
	if err != nil {
		return nil, err
	}
	return api.classes.updateClass(ctx, c, a.UpdateClass)
}

type deleteClassAction struct {
	ID string `json:"id"`
}

func (a *deleteClassAction) validate(*validator.Validate) error {
	return requireID(&a.ID)
}

func (a *deleteClassAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	c, err := api.classes.managedClass(ctx, ctxUsr, a.ID)
	if err != nil {
		return nil, err
	}
	return nil, api.classes.deleteClass(ctx, c)
}

type studentsAction struct {
	ID string `json:"id"`
	class.Students
	adding bool
}

func (a *studentsAction) validate(validate *validator.Validate) error {
	if err := requireID(&a.ID); err != nil {
		return err
	}
	return a.Students.Validate(validate)
}

func (a *studentsAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	c, err := api.classes.managedClass(ctx, ctxUsr, a.ID)
	if err != nil {
		return nil, err
	}
	return api.classes.enrol(ctx, c, a.Students, a.adding)
}

type createAssignmentAction struct {
	assignment.NewAssignment
}

func (a *createAssignmentAction) validate(validate *validator.Validate) error {
	return a.NewAssignment.Validate(validate)
}

func (a *createAssignmentAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	return api.assignments.createAssignment(ctx, ctxUsr, a.NewAssignment)
}

type updateAssignmentAction struct {
	ID string `json:"id"`
	assignment.UpdateAssignment
}

func (a *updateAssignmentAction) validate(*validator.Validate) error {
	return requireID(&a.ID)
}

func (a *updateAssignmentAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	asgmt, err := api.assignments.managedAssignment(ctx, ctxUsr, a.ID)
	if err != nil {
		return nil, err
	}
	return api.assignments.updateAssignment(ctx, asgmt, a.UpdateAssignment)
}

type deleteAssignmentAction struct {
	ID string `json:"id"`
}

func (a *deleteAssignmentAction) validate(*validator.Validate) error {
	return requireID(&a.ID)
}

func (a *deleteAssignmentAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	asgmt, err := api.assignments.managedAssignment(ctx, ctxUsr, a.ID)
	if err != nil {
		return nil, err
	}
	return nil, api.assignments.deleteAssignment(ctx, asgmt)
}

// registerStudentAction always creates a student, whatever the roles of the payload.
type registerStudentAction struct {
	user.NewUser
}

func (a *registerStudentAction) validate(validate *validator.Validate) error {
	a.Roles = []string{user.RoleStudent}
	return validate.Struct(a.NewUser)
}

func (a *registerStudentAction) run(ctx echo.Context, ctxUsr user.User, api *actionApi) (interface{}, error) {
	return api.users.registerUser(ctx, ctxUsr, a.NewUser)
}
