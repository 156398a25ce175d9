package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/stenolearn/backend/core"
	"github.com/stenolearn/backend/core/class"
	"github.com/stenolearn/backend/core/score"
	"github.com/stenolearn/backend/core/user"
)

var errNotATeacher = errors.New("not a teacher")

type classApi struct {
	svc      class.Service
	usrSvc   user.Service
	scoreSvc score.Service
	auth     *authenticator
	validate *validator.Validate
}

func newClassApi(auth *authenticator, deps ServerDeps) *classApi {
	return &classApi{
		svc:      deps.ClassSvc,
		usrSvc:   deps.UserSvc,
		scoreSvc: deps.ScoreSvc,
		auth:     auth,
		validate: deps.Validate,
	}
}

func registerClassAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := newClassApi(auth, deps)

	cg := g.Group("/classes", jwt, activeUserMiddleware(auth))
	cg.POST("", api.create, staffMiddleware(auth))
	cg.GET("", api.query)

	// detail endpoints
	dg := cg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, api.ownerMiddleware)
	dg.DELETE("", api.destroy, api.ownerMiddleware)
	dg.GET("/students", api.students, api.ownerMiddleware)
	dg.POST("/students", api.addStudents, api.ownerMiddleware)
	dg.DELETE("/students", api.removeStudents, api.ownerMiddleware)
	dg.GET("/scores", api.scores, api.ownerMiddleware)
}

// canManageClass reports whether usr may modify c and see its students and scores.
func canManageClass(usr user.User, c class.Class) bool {
	return usr.IsAdmin() || (usr.IsTeacher() && c.TeacherID == usr.ID)
}

// canViewClass reports whether usr may read c.
func canViewClass(usr user.User, c class.Class) bool {
	return canManageClass(usr, c) || c.HasStudent(usr.ID)
}

// classTeacher returns the owner of a new class: the authenticated teacher, or the teacher
// chosen by an admin.
func (api *classApi) classTeacher(ctx echo.Context, ctxUsr user.User, teacherID string) (user.User, error) {
	if !ctxUsr.IsAdmin() || teacherID == "" || teacherID == ctxUsr.ID {
		if !ctxUsr.IsTeacher() {
			return user.User{}, core.NewValidationError(errNotATeacher, core.FieldError{Field: "teacher_id", Error: "this field is required"})
		}
		return ctxUsr, nil
	}

	teacher, err := api.usrSvc.GetByID(ctx.Request().Context(), teacherID)
	if err != nil && !core.IsNotFound(err) {
		return user.User{}, errors.Wrap(err, "finding teacher")
	}
	if err != nil || !teacher.IsActive || !teacher.IsTeacher() {
		return user.User{}, core.NewValidationError(errNotATeacher, core.FieldError{Field: "teacher_id", Error: "not an active teacher"})
	}
	return teacher, nil
}

func (api *classApi) createClass(ctx echo.Context, ctxUsr user.User, data class.NewClass) (class.Class, error) {
	if err := data.Validate(api.validate); err != nil {
		return class.Class{}, err
	}
	teacher, err := api.classTeacher(ctx, ctxUsr, data.TeacherID)
	if err != nil {
		return class.Class{}, err
	}
	c, err := api.svc.Create(ctx.Request().Context(), teacher, data)
	return c, errors.Wrap(err, "creating class")
}

func (api *classApi) create(ctx echo.Context) error {
	var data class.NewClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	c, err := api.createClass(ctx, ctxUsr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

// query lists the classes taught by teachers, attended by students or any class for admins.
func (api *classApi) query(ctx echo.Context) error {
	params := ctx.QueryParams()
	filter := &class.QueryFilter{
		TeacherID: params.Get("teacher_id"),
		StudentID: params.Get("student_id"),
		Search:    params.Get("search"),
	}
	filter.Clean()

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsTeacher():
		filter.TeacherID = ctxUsr.ID
	default:
		filter.StudentID = ctxUsr.ID
	}

	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	c, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving class")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classApi) updateClass(ctx echo.Context, c class.Class, data class.UpdateClass) (class.Class, error) {
	if err := data.Validate(c, api.validate); err != nil {
		return class.Class{}, err
	}
	c, err := api.svc.Update(ctx.Request().Context(), c.ID, data)
	return c, errors.Wrap(err, "updating class")
}

func (api *classApi) update(ctx echo.Context) error {
	c, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving class")
	}
	var data class.UpdateClass
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClass")
	}
	c, err := api.updateClass(ctx, c, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classApi) deleteClass(ctx echo.Context, c class.Class) error {
	return errors.Wrap(api.svc.Delete(ctx.Request().Context(), c.ID), "deleting class")
}

func (api *classApi) destroy(ctx echo.Context) error {
	c, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving class")
	}
	if err := api.deleteClass(ctx, c); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *classApi) students(ctx echo.Context) error {
	c, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving class")
	}
	students, err := api.svc.Students(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying class students")
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *classApi) changeStudents(ctx echo.Context, adding bool) error {
	c, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving class")
	}
	var data class.Students
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Students")
	}
	c, err := api.enrol(ctx, c, data, adding)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *classApi) enrol(ctx echo.Context, c class.Class, data class.Students, adding bool) (class.Class, error) {
	if err := data.Validate(api.validate); err != nil {
		return class.Class{}, err
	}
	if adding {
		c, err := api.svc.AddStudents(ctx.Request().Context(), c.ID, data.StudentIDs)
		return c, errors.Wrap(err, "adding students")
	}
	c, err := api.svc.RemoveStudents(ctx.Request().Context(), c.ID, data.StudentIDs)
	return c, errors.Wrap(err, "removing students")
}

func (api *classApi) addStudents(ctx echo.Context) error {
	return api.changeStudents(ctx, true)
}

func (api *classApi) removeStudents(ctx echo.Context) error {
	return api.changeStudents(ctx, false)
}

func (api *classApi) scores(ctx echo.Context) error {
	c, ok := ctx.Get(contextObjectKey).(class.Class)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving class")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	filter := &score.QueryFilter{
		ClassIDs:     []string{c.ID},
		StudentID:    ctx.QueryParam("student_id"),
		AssignmentID: ctx.QueryParam("assignment_id"),
	}
	filter.Clean()
	scores, err := api.scoreSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying class scores")
	}
	return ctx.JSON(http.StatusOK, scores)
}

// managedClass returns the class identified by id when usr can manage it.
func (api *classApi) managedClass(ctx echo.Context, usr user.User, id string) (class.Class, error) {
	c, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		if core.IsNotFound(err) {
			return class.Class{}, errHttpNotFound
		}
		return class.Class{}, errors.Wrap(err, "finding class by ID")
	}
	if !canManageClass(usr, c) {
		if canViewClass(usr, c) {
			return class.Class{}, errHttpForbidden
		}
		return class.Class{}, errHttpNotFound
	}
	return c, nil
}

// objectMiddleware sets the Class of the `:id` param as context object, if the user can see it.
func (api *classApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := api.auth.contextUser(ctx)
		if err != nil {
			return err
		}
		c, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if core.IsNotFound(err) {
				return errHttpNotFound
			}
			return errors.Wrap(err, "finding class by ID")
		}
		if !canViewClass(ctxUsr, c) {
			return errHttpNotFound
		}
		ctx.Set(contextObjectKey, c)
		return next(ctx)
	}
}

// ownerMiddleware must run after objectMiddleware.
func (api *classApi) ownerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		ctxUsr, err := api.auth.contextUser(ctx)
		if err != nil {
			return err
		}
		c, ok := ctx.Get(contextObjectKey).(class.Class)
		if !ok {
			return errors.Wrap(errObjectNotFoundInCtx, "retrieving class")
		}
		if !canManageClass(ctxUsr, c) {
			return errHttpForbidden
		}
		return next(ctx)
	}
}
