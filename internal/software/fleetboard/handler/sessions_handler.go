package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"fieldnav/internal/domain/navigation"

	"github.com/jackc/pgx/v5/pgconn"
)

// --- Handler: GET /dispatch/sessions/active?page=X&page_size=Y ---

func (handler *FleetHTTPHandler) handleOpenSessions(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	query := r.URL.Query()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	sessions, err := handler.svc.GetOpenSessions(ctxWithTimeout, query.Get("page"), query.Get("page_size"))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "failed to fetch open sessions", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, sessions)
}

// --- Handler: GET /dispatch/technicians/{technician_id}/session ---

func (handler *FleetHTTPHandler) handleTechnicianSession(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	technicianID := strings.TrimSpace(r.PathValue("technician_id"))
	if technicianID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing technician_id in path", nil)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row, err := handler.svc.GetTechnicianSession(ctxWithTimeout, technicianID)
	if err != nil {
		if errors.Is(err, navigation.ErrNoSession) {
			handler.httpError(ctx, w, http.StatusNotFound, "technician has no open session", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "failed to fetch technician session", err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, row)
}
