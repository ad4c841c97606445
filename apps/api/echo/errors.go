package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/wayquest/backend/core"
	"github.com/wayquest/backend/core/journey"
	"github.com/wayquest/backend/core/progress"
)

type outOfRangePayload struct {
	Error     string  `json:"error"`
	DistanceM float64 `json:"distance_m"`
	RadiusM   float64 `json:"radius_m"`
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// Only validation and quiz-format errors reach the caller with detail; consistency
// errors never do (the repair service owns those). signalShutdown is called to
// gracefully shut the Server down whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *progress.OutOfRangeError:
			// carry the distance so the client can give corrective feedback
			_ = ctx.JSON(http.StatusUnprocessableEntity, outOfRangePayload{
				Error:     origErr.Error(),
				DistanceM: origErr.DistanceM,
				RadiusM:   origErr.RadiusM,
			})
			return
		case *progress.ResponseFormatError:
			code = http.StatusBadRequest
			message = origErr.Error()
		default:
			switch origErr {
			case progress.ErrStaleEvidence:
				code = http.StatusUnprocessableEntity
				message = origErr.Error()
			case progress.ErrInvalidStep, journey.ErrNotFound, journey.ErrStepNotFound:
				code = http.StatusNotFound
				message = origErr.Error()
			default: // any other error is a server error
				code = http.StatusInternalServerError
				msg := http.StatusText(http.StatusInternalServerError)
				message = msg

				logger.Error(msg, errors.Wrap(err, msg))

				// shutting down...
				if core.IsShutdown(err) {
					signalShutdown()
				}
			}
		}

		if !ctx.Response().Committed {
			_ = ctx.JSON(code, map[string]interface{}{"error": message})
		}
	}
}
