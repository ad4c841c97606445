package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
)

type progressApi struct {
	svc        progress.ServiceInterface
	journeySvc journey.ServiceInterface
	validate   *validator.Validate
	translator ut.Translator
}

func registerProgressAPI(
	g *echo.Group,
	svc progress.ServiceInterface,
	journeySvc journey.ServiceInterface,
	validate *validator.Validate,
	translator ut.Translator,
) {
	api := progressApi{
		svc:        svc,
		journeySvc: journeySvc,
		validate:   validate,
		translator: translator,
	}

	jg := g.Group("/journeys/:id")
	jg.GET("", api.retrieveJourney)
	jg.GET("/progress", api.retrieveProgress)
	jg.POST("/steps/:stepID/completions", api.submitCompletion)
}

// Handlers

func (api *progressApi) submitCompletion(ctx echo.Context) error {
	var data progress.SubmitStepCompletion
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubmitStepCompletion")
	}
	data.JourneyID = ctx.Param("id")
	data.StepID = ctx.Param("stepID")
	if err := data.Validate(api.validate, api.translator); err != nil {
		return err
	}

	res, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return err
	}

	code := http.StatusCreated
	if res.Duplicate {
		// retried submission resolved into the originally recorded outcome
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}

func (api *progressApi) retrieveProgress(ctx echo.Context) error {
	userID := core.CleanString(ctx.QueryParam("user_id"))
	if userID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "this field is required"})
	}

	snap, err := api.svc.GetSnapshot(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting progress snapshot")
	}
	return ctx.JSON(http.StatusOK, snap)
}

func (api *progressApi) retrieveJourney(ctx echo.Context) error {
	jny, err := api.journeySvc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	steps, err := api.journeySvc.QuerySteps(ctx.Request().Context(), jny.ID)
	if err != nil {
		return errors.Wrap(err, "querying steps")
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"journey": jny,
		"steps":   steps,
	})
}
