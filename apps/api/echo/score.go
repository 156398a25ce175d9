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

type scoreApi struct {
	svc      score.Service
	classSvc class.Service
	auth     *authenticator
	validate *validator.Validate
	maxWPM   int
}

func registerScoreAPI(g *echo.Group, jwt echo.MiddlewareFunc, auth *authenticator, deps ServerDeps) {
	api := scoreApi{
		svc:      deps.ScoreSvc,
		classSvc: deps.ClassSvc,
		auth:     auth,
		validate: deps.Validate,
		maxWPM:   deps.Conf.Scoring.MaxWPM,
	}

	sg := g.Group("/scores", jwt, activeUserMiddleware(auth))
	sg.POST("", api.submit, studentMiddleware(auth))
	sg.GET("", api.query)
	sg.GET("/report", api.report)
	sg.POST("/preview", api.preview)
	sg.GET("/:id", api.retrieve)
}

func (api *scoreApi) submit(ctx echo.Context) error {
	var data score.NewScore
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewScore")
	}
	if err := data.Validate(api.validate, api.maxWPM); err != nil {
		return err
	}
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.Submit(ctx.Request().Context(), ctxUsr, data)
	if err != nil {
		return errors.Wrap(err, "submitting score")
	}
	return ctx.JSON(http.StatusCreated, s)
}

// scopedFilter binds the query filter and restricts it to the scores the user can see:
// their own for students, those of their classes for teachers.
func (api *scoreApi) scopedFilter(ctx echo.Context) (*score.QueryFilter, error) {
	params := ctx.QueryParams()
	filter := &score.QueryFilter{
		StudentID:    params.Get("student_id"),
		AssignmentID: params.Get("assignment_id"),
		ClassIDs:     queryStrings(params, "class_id"),
	}
	filter.Clean()

	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case ctxUsr.IsAdmin():
	case ctxUsr.IsTeacher():
		classes, err := api.classSvc.Query(ctx.Request().Context(), &class.QueryFilter{TeacherID: ctxUsr.ID}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "querying teacher classes")
		}
		filter.ClassIDs = intersect(filter.ClassIDs, classIDs(classes))
	default:
		filter.StudentID = ctxUsr.ID
	}
	return filter, nil
}

func (api *scoreApi) query(ctx echo.Context) error {
	filter, err := api.scopedFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	scores, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying scores")
	}
	if scores == nil {
		scores = []score.Score{}
	}
	return ctx.JSON(http.StatusOK, scores)
}

func (api *scoreApi) report(ctx echo.Context) error {
	filter, err := api.scopedFilter(ctx)
	if err != nil {
		return err
	}
	report, err := api.svc.Report(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "building score report")
	}
	return ctx.JSON(http.StatusOK, report)
}

// preview scores an attempt without saving it, for live feedback while typing.
func (api *scoreApi) preview(ctx echo.Context) error {
	var data score.Preview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Preview")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var elapsed float64
	if data.TimeElapsed != nil {
		elapsed = *data.TimeElapsed
	}
	return ctx.JSON(http.StatusOK, api.svc.Preview(data.ReferenceText, data.TypedText, elapsed))
}

func (api *scoreApi) retrieve(ctx echo.Context) error {
	ctxUsr, err := api.auth.contextUser(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	s, err := api.svc.Get(reqCtx, ctx.Param("id"))
	if err != nil {
		if core.IsNotFound(err) {
			return errHttpNotFound
		}
		return errors.Wrap(err, "finding score by ID")
	}

	ok, err := api.canViewScore(ctx, ctxUsr, s)
	if err != nil {
		return err
	}
	if !ok {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *scoreApi) canViewScore(ctx echo.Context, usr user.User, s score.Score) (bool, error) {
	if usr.IsAdmin() || s.StudentID == usr.ID {
		return true, nil
	}
	if !usr.IsTeacher() || s.IsTypingTest() {
		return false, nil
	}
	c, err := api.classSvc.Get(ctx.Request().Context(), s.ClassID)
	if err != nil {
		if core.IsNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "finding score class")
	}
	return c.TeacherID == usr.ID, nil
}
