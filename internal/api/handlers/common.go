package handlers

import (
	"errors"
	"net/http"

	"github.com/baechuer/real-time-ressys/services/composite-service/internal/domain"
	"github.com/baechuer/real-time-ressys/services/composite-service/internal/logger"
	"github.com/go-chi/render"
)

// sendError writes the {timestamp, path, httpStatus, message} body.
func sendError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, domain.NewHTTPErrorInfo(status, r.URL.Path, message))
}

// writeError maps a domain error to its HTTP status. Messages of
// infrastructure failures are logged, not returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	var message string

	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		status, message = http.StatusUnprocessableEntity, errMessage(err)
	case domain.KindNotFound:
		status, message = http.StatusNotFound, errMessage(err)
	case domain.KindUnavailable:
		status, message = http.StatusServiceUnavailable, "Service temporarily unavailable"
	default:
		status, message = http.StatusBadGateway, "Unexpected downstream failure"
	}

	ev := logger.Ctx(r.Context()).Warn()
	if status >= 500 {
		ev = logger.Ctx(r.Context()).Error()
	}
	ev.Err(err).Int("status", status).Str("path", r.URL.Path).Msg("request failed")

	sendError(w, r, status, message)
}

func errMessage(err error) string {
	var de *domain.Error
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
