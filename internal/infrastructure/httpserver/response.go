package httpserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/claimservice/internal/domain/errs"
)

// Response is the envelope of every API response.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is the error part of the envelope.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondJSON sends a successful JSON response.
func RespondJSON(c echo.Context, code int, data any) error {
	return c.JSON(code, Response{
		Success: true,
		Data:    data,
	})
}

// RespondOK sends a 200 OK response with data.
func RespondOK(c echo.Context, data any) error {
	return RespondJSON(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data.
func RespondCreated(c echo.Context, data any) error {
	return RespondJSON(c, http.StatusCreated, data)
}

// RespondNoContent sends a 204 No Content response.
func RespondNoContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// RespondError maps err onto a status code and error envelope. Internal
// errors are logged with the request's method and path and their details are
// not sent to the client.
func RespondError(c echo.Context, err error) error {
	status, apiError := mapError(err)
	if status >= http.StatusInternalServerError {
		slog.Default().ErrorContext(c.Request().Context(), "request failed",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.String("error", err.Error()),
		)
	}
	return c.JSON(status, Response{
		Success: false,
		Error:   apiError,
	})
}

// RespondErrorWithCode sends an error response with an explicit status and code.
func RespondErrorWithCode(c echo.Context, status int, code, message string) error {
	return c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

func mapError(err error) (int, *Error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, &Error{
			Code:    "NOT_FOUND",
			Message: "The requested resource was not found",
		}

	case errors.Is(err, errs.ErrInvalidInput):
		return http.StatusBadRequest, &Error{
			Code: "INVALID_INPUT",
			// Input errors describe the offending field or parameter.
			Message: err.Error(),
		}

	case errors.Is(err, errs.ErrConcurrentModification):
		return http.StatusConflict, &Error{
			Code:    "CONFLICT",
			Message: "The record was modified by another request",
		}

	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, &Error{
			Code:    "ALREADY_EXISTS",
			Message: "The resource already exists",
		}

	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized, &Error{
			Code:    "UNAUTHORIZED",
			Message: "Authentication required",
		}

	case errors.Is(err, errs.ErrForbidden):
		return http.StatusForbidden, &Error{
			Code:    "FORBIDDEN",
			Message: "Access denied",
		}
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError {
		return httpErr.Code, &Error{
			Code:    statusCode(httpErr.Code),
			Message: http.StatusText(httpErr.Code),
		}
	}

	return http.StatusInternalServerError, &Error{
		Code:    "INTERNAL_ERROR",
		Message: "An internal error occurred",
	}
}

// statusCode turns a status into an envelope code, e.g. 413 becomes PAYLOAD_TOO_LARGE.
func statusCode(status int) string {
	if status == http.StatusRequestEntityTooLarge {
		return "PAYLOAD_TOO_LARGE"
	}
	return strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
}
