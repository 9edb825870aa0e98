package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"fieldnav/internal/domain/navigation"
	"fieldnav/internal/domain/user"
	"fieldnav/internal/general/jwt"
	"fieldnav/internal/general/logger"
	"fieldnav/internal/ports"

	"github.com/google/uuid"
)

// requestTimeout bounds every service call made from an HTTP request.
const requestTimeout = 5 * time.Second

// Sockets are the websocket endpoints mounted next to the REST routes.
type Sockets struct {
	Technician http.HandlerFunc
	Dispatch   http.HandlerFunc
}

// NavigationHTTPHandler adapts HTTP requests to the NavigationService.
type NavigationHTTPHandler struct {
	svc     ports.NavigationService
	logger  *logger.Logger
	auth    *jwt.Manager
	authz   *jwt.Authorizer
	sockets Sockets
	ready   func() bool
	tokens  bool
}

// Option tweaks a NavigationHTTPHandler.
type Option func(*NavigationHTTPHandler)

// WithReadiness makes GET /navigation/health report 503 while ready returns false.
func WithReadiness(ready func() bool) Option {
	return func(h *NavigationHTTPHandler) { h.ready = ready }
}

// WithTokenIssuer mounts POST /tokens for local testing.
func WithTokenIssuer() Option {
	return func(h *NavigationHTTPHandler) { h.tokens = true }
}

// NewNavigationHTTPHandler wires an HTTP handler around the NavigationService.
func NewNavigationHTTPHandler(
	svc ports.NavigationService,
	logger *logger.Logger,
	auth *jwt.Manager,
	authz *jwt.Authorizer,
	sockets Sockets,
	opts ...Option,
) *NavigationHTTPHandler {
	h := &NavigationHTTPHandler{svc: svc, logger: logger, auth: auth, authz: authz, sockets: sockets}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts navigation endpoints on the provided mux.
func (handler *NavigationHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	anyone := handler.authz.Middleware(user.RoleTechnician, user.RoleDispatcher, user.RoleAdmin)
	field := handler.authz.Middleware(user.RoleTechnician, user.RoleAdmin)

	mux.HandleFunc("POST /technicians/{technician_id}/navigation", field(handler.handleStart))
	mux.HandleFunc("DELETE /technicians/{technician_id}/navigation", anyone(handler.handleCancel))
	mux.HandleFunc("GET /technicians/{technician_id}/navigation", anyone(handler.handleSnapshot))
	mux.HandleFunc("POST /technicians/{technician_id}/navigation/recalculate", field(handler.handleRecalculate))
	mux.HandleFunc("POST /technicians/{technician_id}/navigation/steps/next", field(handler.handleStepNext))
	mux.HandleFunc("POST /technicians/{technician_id}/navigation/steps/previous", field(handler.handleStepPrevious))
	mux.HandleFunc("POST /technicians/{technician_id}/location", field(handler.handleUpdateLocation))

	// websockets authenticate on their first frame
	if handler.sockets.Technician != nil {
		mux.HandleFunc("GET /ws/technicians/{technician_id}", handler.sockets.Technician)
	}
	if handler.sockets.Dispatch != nil {
		mux.HandleFunc("GET /ws/dispatch", handler.sockets.Dispatch)
	}

	mux.HandleFunc("GET /navigation/health", handler.handleHealth)
	if handler.tokens {
		mux.HandleFunc("POST /tokens", handler.handleCreateToken)
	}
}

// ----- general helpers -----

// technicianFromPath reads {technician_id} and checks the caller may act for it.
// It writes the error response itself and returns ok=false on failure.
func (handler *NavigationHTTPHandler) technicianFromPath(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	technicianID := strings.TrimSpace(r.PathValue("technician_id"))
	if technicianID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing technician_id in path", nil)
		return "", false
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return "", false
	}
	if !claims.CanActFor(technicianID) {
		handler.httpError(ctx, w, http.StatusForbidden, "technician_id does not match token subject", errors.New("technician/token mismatch"))
		return "", false
	}
	return technicianID, true
}

// serviceError maps a navigation error onto an HTTP status and a client-facing code.
func (handler *NavigationHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, navigation.ErrInvalidInput), errors.Is(err, navigation.ErrNoDestination):
		status = http.StatusBadRequest
	case errors.Is(err, navigation.ErrNoSession):
		status = http.StatusNotFound
	case errors.Is(err, navigation.ErrInvalidTransition),
		errors.Is(err, navigation.ErrAlreadyStarted),
		errors.Is(err, navigation.ErrNotStarted),
		errors.Is(err, navigation.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	handler.logFailure(ctx, status, msg, err)
	handler.jsonResponse(ctx, w, status, errBody{Error: msg, Code: navigation.Code(err)})
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// decodeJSON decodes a bounded, strict JSON body into dst.
func (handler *NavigationHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
			return false
		}
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON body", err)
		return false
	}
	return true
}

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *NavigationHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	buf := []byte("{}")
	if data != nil {
		var err error
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *NavigationHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	handler.logFailure(ctx, status, msg, err)
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

func (handler *NavigationHTTPHandler) logFailure(ctx context.Context, status int, msg string, err error) {
	action := "request_failed"
	switch {
	case status >= 500:
		action = "http_internal_error"
	case status == http.StatusBadRequest:
		action = "validation_failed"
	case status == http.StatusUnsupportedMediaType:
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, map[string]any{"status": status})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *NavigationHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if reqID == "" {
		reqID = uuid.NewString()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}
