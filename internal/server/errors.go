package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/matsen/firstrecord/internal/apperr"
	"github.com/matsen/firstrecord/internal/intake"
	"github.com/matsen/firstrecord/internal/literature"
	"github.com/matsen/firstrecord/internal/quota"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error  string            `json:"error"`
	Kind   apperr.Kind       `json:"kind"`
	Fields map[string]string `json:"fields,omitempty"`
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, intake.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, quota.ErrResetDisabled):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	}
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindSecurity:
		return http.StatusBadRequest
	case apperr.KindQuota:
		return http.StatusTooManyRequests
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders err. echo.HTTPErrors (routing, binding) keep their
// status; everything else goes through the error taxonomy.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok {
			msg = m
		}
		kind := apperr.KindValidation
		if he.Code >= 500 {
			kind = apperr.KindInternal
		}
		_ = c.JSON(he.Code, errorResponse{Error: msg, Kind: kind})
		return
	}

	status := statusFor(err)
	resp := errorResponse{Error: apperr.PublicMessage(err), Kind: apperr.KindOf(err)}
	var verr *literature.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if status >= 500 {
		s.log.Error("request_error",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()))
	}
	_ = c.JSON(status, resp)
}
