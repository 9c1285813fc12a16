package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"projectflow/backend/internal/logging"
	"projectflow/backend/internal/services"
	"projectflow/backend/pkg/models"

	"github.com/labstack/echo/v4"
)

const problemContentType = "application/problem+json"

var kindStatus = map[services.ErrorKind]int{
	services.KindNotFound:   http.StatusNotFound,
	services.KindValidation: http.StatusBadRequest,
	services.KindConflict:   http.StatusConflict,
}

// problemFor converts any handler error into an RFC 7807 Problem Details
// body. Unclassified errors become an opaque 500.
func problemFor(err error) models.ProblemDetails {
	var se *services.Error
	if errors.As(err, &se) {
		status := kindStatus[se.Kind]
		return models.ProblemDetails{
			Type:   "about:blank",
			Title:  http.StatusText(status),
			Status: status,
			Detail: se.Message,
			Kind:   string(se.Kind),
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		detail := http.StatusText(he.Code)
		if msg, ok := he.Message.(string); ok {
			detail = msg
		}
		p := models.ProblemDetails{
			Type:   "about:blank",
			Title:  http.StatusText(he.Code),
			Status: he.Code,
			Detail: detail,
		}
		switch he.Code {
		case http.StatusBadRequest:
			p.Kind = string(services.KindValidation)
		case http.StatusNotFound:
			p.Kind = string(services.KindNotFound)
		}
		return p
	}

	return models.ProblemDetails{
		Type:   "about:blank",
		Title:  http.StatusText(http.StatusInternalServerError),
		Status: http.StatusInternalServerError,
		Detail: "internal server error",
	}
}

// ErrorHandler writes every error returned by a handler as
// application/problem+json.
func ErrorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		problem := problemFor(err)
		problem.Instance = c.Request().URL.Path
		if problem.Status >= http.StatusInternalServerError {
			logger.Error("request failed",
				"method", c.Request().Method,
				"uri", c.Request().RequestURI,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"error", err,
			)
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(problem.Status)
			return
		}
		writeProblem(c, problem)
	}
}

func writeProblem(c echo.Context, problem models.ProblemDetails) {
	body, err := json.Marshal(problem)
	if err != nil {
		_ = c.NoContent(problem.Status)
		return
	}
	_ = c.Blob(problem.Status, problemContentType, body)
}
