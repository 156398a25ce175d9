package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/assignment"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/user"
)

const imageFormField = "image"

type assignmentApi struct {
	svc      assignment.Service
	classSvc class.Service
	scoreSvc score.Service
	auth     *authenticator
	validate *validator.Validate
}

func newAssignmentApi(auth *authenticator, deps ServerDeps) *assignmentApi {
	return &assignmentApi{
		svc:      deps.AssignmentSvc,
		classSvc: deps.ClassSvc,
		scoreSvc: deps.ScoreSvc,
		auth:     auth,
		validate: deps.Validate,
	}
}

func registerAssignmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := newAssignmentApi(auth, deps)

	ag := g.Group("/assignments", jwt, activeUserMiddleware(auth))
	ag.POST("", api.create, staffMiddleware(auth))
	ag.GET("", api.query)

	// detail endpoints
	dg := ag.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, api.ownerMiddleware)
	dg.DELETE("", api.destroy, api.ownerMiddleware)
	dg.POST("/image", api.attachImage, api.ownerMiddleware)
	dg.GET("/scores", api.scores, api.ownerMiddleware)
}

func canManageAssignment(usr user.User, a assignment.Assignment) bool {
	return usr.IsAdmin() || (usr.IsTeacher() && a.TeacherID == usr.ID)
}

func (api *assignmentApi) createAssignment(ctx echo.Context, ctxUsr user.User, data assignment.NewAssignment) (assignment.Assignment, error) {
	if err := data.Validate(api.validate); err != nil {
		return assignment.Assignment{}, err
	}

	reqCtx := ctx.Request().Context()
	c, err := api.classSvc.Get(reqCtx, data.ClassID)
	if err != nil {
		if core.IsNotFound(err) {
			return assignment.Assignment{}, core.NewValidationError(err, core.FieldError{Field: "class_id", Error: err.Error()})
		}
		return assignment.Assignment{}, errors.Wrap(err, "getting class")
	}
	if !canManageClass(ctxUsr, c) {
		return assignment.Assignment{}, errHttpForbidden
	}

	a, err := api.svc.Create(reqCtx, data)
	return a, errors.Wrap(err, "creating assignment")
}

func (api *assignmentApi) create(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	a, err := api.createAssignment(ctx, ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, a)
}

// query lists the assignments of a teacher, the active assignments of the classes of a student
// or any assignment for admins.
func (api *assignmentApi) query(ctx echo.Context) error {
	params := ctx.QueryParams()
	isActive, err := queryBool(params, "is_active")
	if err != nil {
		return err
	}
	filter := &assignment.QueryFilter{
		ClassIDs: queryStrings(params, "class_id"),
		IsActive: isActive,
	}
	filter.Clean()

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	switch {
	case ctxUsr.IsAdmin():
		filter.TeacherID = core.CleanString(params.Get("teacher_id"))
	case ctxUsr.IsTeacher():
		filter.TeacherID = ctxUsr.ID
	default:
		classes, err := api.classSvc.Query(reqCtx, &class.QueryFilter{StudentID: ctxUsr.ID}, nil)
		if err != nil {
			return errors.Wrap(err, "querying student classes")
		}
		filter.ClassIDs = intersect(filter.ClassIDs, classIDs(classes))
		active := true
		filter.IsActive = &active
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	assignments, err := api.svc.Query(reqCtx, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if assignments == nil {
		assignments = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, assignments)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(assignment.Assignment)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving assignment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) updateAssignment(ctx echo.Context, a assignment.Assignment, data assignment.UpdateAssignment) (assignment.Assignment, error) {
	if err := data.Validate(a, api.validate); err != nil {
		return assignment.Assignment{}, err
	}
	a, err := api.svc.Update(ctx.Request().Context(), a.ID, data)
	return a, errors.Wrap(err, "updating assignment")
}

func (api *assignmentApi) update(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(assignment.Assignment)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving assignment")
	}
	var data assignment.UpdateAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	a, err := api.updateAssignment(ctx, a, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) deleteAssignment(ctx echo.Context, a assignment.Assignment) error {
	return errors.Wrap(api.svc.Delete(ctx.Request().Context(), a.ID), "deleting assignment")
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(assignment.Assignment)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving assignment")
	}
	if err := api.deleteAssignment(ctx, a); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) attachImage(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(assignment.Assignment)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving assignment")
	}

	invalid := func(err error) error {
		return core.NewValidationError(err, core.FieldError{Field: imageFormField, Error: err.Error()})
	}
	fh, err := ctx.FormFile(imageFormField)
	if err != nil {
		return invalid(errors.New("an image file is required"))
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded image")
	}
	defer func() { _ = f.Close() }()

	a, err = api.svc.AttachImage(ctx.Request().Context(), a.ID, f, fh.Filename)
	if err != nil {
		if errors.Cause(err) == core.ErrUnsupportedMediaType {
			return invalid(errors.Cause(err))
		}
		return errors.Wrap(err, "attaching image")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assignmentApi) scores(ctx echo.Context) error {
	a, ok := ctx.Get(contextObjectKey).(assignment.Assignment)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving assignment")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	filter := &score.QueryFilter{AssignmentID: a.ID, StudentID: ctx.QueryParam("student_id")}
	filter.Clean()
	scores, err := api.scoreSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignment scores")
	}
	return ctx.JSON(http.StatusOK, scores)
}

// managedAssignment returns the assignment identified by id when usr can manage it.
func (api *assignmentApi) managedAssignment(ctx echo.Context, usr user.User, id string) (assignment.Assignment, error) {
	a, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			return assignment.Assignment{}, errHttpNotFound
		}
		return assignment.Assignment{}, errors.Wrap(err, "finding assignment by ID")
	}
	if !canManageAssignment(usr, a) {
		return assignment.Assignment{}, errHttpNotFound
	}
	return a, nil
}

// objectMiddleware sets the Assignment of the `:id` param as context object, if the user can see it.
// Students only see the active assignments of their classes.
func (api *assignmentApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := api.auth.contextUser(ctx)
		if err != nil {
			return err
		}
		reqCtx := ctx.Request().Context()
		a, err := api.svc.Get(reqCtx, ctx.Param("id"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding assignment by ID")
		}

		if !canManageAssignment(ctxUsr, a) {
			if !a.IsActive {
				return errHttpNotFound
			}
			enrolled, err := api.classSvc.HasStudent(reqCtx, a.ClassID, ctxUsr.ID)
			if err != nil && !core.IsNotFound(err) {
				return errors.Wrap(err, "checking class enrollment")
			}
			if !enrolled {
				return errHttpNotFound
			}
		}
		ctx.Set(contextObjectKey, a)
		return next(ctx)
	}
}

// ownerMiddleware must run after objectMiddleware.
func (api *assignmentApi) ownerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := api.auth.contextUser(ctx)
		if err != nil {
			return err
		}
		a, ok := ctx.Get(contextObjectKey).(assignment.Assignment)
		if !ok {
			return errors.Wrap(errObjectNotFoundInCtx, "retrieving assignment")
		}
		if !canManageAssignment(ctxUsr, a) {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

func classIDs(classes []class.Class) []string {
	ids := make([]string, 0, len(classes))
	for _, c := range classes {
		ids = append(ids, c.ID)
	}
	return ids
}

// intersect returns the items of allowed that are in wanted; all of allowed when wanted is nil.
func intersect(wanted, allowed []string) []string {
	if wanted == nil {
		return allowed
	}
	set := make(map[string]struct{}, len(allowed))
	for _, id := range allowed {
		set[id] = struct{}{}
	}
	res := make([]string, 0, len(wanted))
	for _, id := range wanted {
		if _, ok := set[id]; ok {
			res = append(res, id)
		}
	}
	return res
}
