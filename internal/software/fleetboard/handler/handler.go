package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/ports"

	"github.com/google/uuid"
)

// FleetHTTPHandler adapts HTTP requests to the FleetService.
type FleetHTTPHandler struct {
	svc    ports.FleetService
	logger *logger.Logger
	authz  *jwt.Authorizer
}

// NewFleetHTTPHandler wires an HTTP handler around the FleetService.
func NewFleetHTTPHandler(svc ports.FleetService, logger *logger.Logger, authz *jwt.Authorizer) *FleetHTTPHandler {
	return &FleetHTTPHandler{svc: svc, logger: logger, authz: authz}
}

// RegisterRoutes mounts dispatch endpoints on the provided mux.
func (handler *FleetHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	dispatch := handler.authz.Middleware(user.RoleDispatcher, user.RoleAdmin)

	mux.HandleFunc("GET /dispatch/overview", dispatch(handler.handleOverview))
	mux.HandleFunc("GET /dispatch/sessions/active", dispatch(handler.handleOpenSessions))
	mux.HandleFunc("GET /dispatch/technicians/{technician_id}/session", dispatch(handler.handleTechnicianSession))
}

// ----- general helpers -----

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *FleetHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	buf, err := json.Marshal(data)
	if err != nil {
		handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *FleetHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	}
	handler.logger.Error(ctx, action, msg, err, map[string]any{"status": status})

	type errBody struct {
		Error string `json:"error"`
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *FleetHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}
