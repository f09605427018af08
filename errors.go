package siteapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorResponse is the uniform JSON error envelope returned by every
// endpoint: {error, message?, details?}.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details string `json:"details,omitempty"`
}

// JSONError writes the uniform error envelope with the given status code.
func JSONError(c echo.Context, code int, errMsg string, rest ...string) error {
	resp := ErrorResponse{Error: errMsg}
	if len(rest) > 0 {
		resp.Message = rest[0]
	}
	if len(rest) > 1 {
		resp.Details = rest[1]
	}
	return c.JSON(code, resp)
}

// httpErrorHandler is the catch-all: unmatched routes get a 404 envelope
// and everything unexpected a generic 500, with details surfaced only in
// debug mode.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	if he, ok := err.(*echo.HTTPError); ok {
		switch he.Code {
		case http.StatusNotFound:
			_ = JSONError(c, http.StatusNotFound, "Route not found")
		case http.StatusMethodNotAllowed:
			_ = JSONError(c, http.StatusMethodNotAllowed, "Method not allowed")
		case http.StatusRequestEntityTooLarge:
			_ = JSONError(c, http.StatusRequestEntityTooLarge, "Request body too large")
		default:
			msg, _ := he.Message.(string)
			if msg == "" {
				msg = http.StatusText(he.Code)
			}
			_ = JSONError(c, he.Code, msg)
		}
		return
	}
	a.Logger.Error("unhandled error",
		zap.String("method", c.Request().Method),
		zap.String("uri", c.Request().RequestURI),
		zap.Error(err),
	)
	if a.Config.Debug {
		_ = JSONError(c, http.StatusInternalServerError, "Something went wrong!", err.Error())
		return
	}
	_ = JSONError(c, http.StatusInternalServerError, "Something went wrong!", "Internal server error")
}
