package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthguard/healthguard/internal/platform/apperr"
)

var kindStatus = map[apperr.Kind]int{
	apperr.KindUnauthenticated:       http.StatusUnauthorized,
	apperr.KindForbidden:             http.StatusForbidden,
	apperr.KindNotFound:              http.StatusNotFound,
	apperr.KindValidationFailed:      http.StatusUnprocessableEntity,
	apperr.KindPredictionUnavailable: http.StatusServiceUnavailable,
	apperr.KindConflict:              http.StatusConflict,
	apperr.KindInternal:              http.StatusInternalServerError,
}

// ErrorDetail is the JSON error envelope returned for every failed request.
type ErrorDetail struct {
	Kind      apperr.Kind `json:"kind"`
	Message   string      `json:"message"`
	RequestID string      `json:"request_id,omitempty"`
}

type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// StatusFor maps err to the HTTP status written by ErrorHandler.
func StatusFor(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return kindStatus[apperr.KindOf(err)]
}

func kindForStatus(status int) apperr.Kind {
	for k, s := range kindStatus {
		if s == status {
			return k
		}
	}
	if status >= 500 {
		return apperr.KindInternal
	}
	return apperr.KindValidationFailed
}

// ErrorHandler is the echo.HTTPErrorHandler for the API. Typed errors are
// mapped by kind; framework errors keep their status. Internal causes are
// logged and never returned to the client.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		rid, _ := c.Get("request_id").(string)

		var (
			status int
			detail ErrorDetail
			he     *echo.HTTPError
		)
		if errors.As(err, &he) {
			status = he.Code
			detail = ErrorDetail{Kind: kindForStatus(status), Message: fmt.Sprint(he.Message)}
			if status >= 500 {
				detail.Message = http.StatusText(status)
			}
		} else {
			detail = ErrorDetail{Kind: apperr.KindOf(err), Message: apperr.MessageOf(err)}
			status = kindStatus[detail.Kind]
		}
		detail.RequestID = rid

		if detail.Kind == apperr.KindInternal {
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("internal error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, ErrorBody{Error: detail})
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Str("request_id", rid).Msg("write error response")
		}
	}
}
