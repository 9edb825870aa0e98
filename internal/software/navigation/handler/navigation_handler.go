package handler

import (
	"context"
	"net/http"

	"fieldnav/internal/ports"
)

// startNavigationRequest is the body of POST /technicians/{technician_id}/navigation.
type startNavigationRequest struct {
	JobID               string          `json:"job_id"`
	DestinationAddress  string          `json:"destination_address"`
	Destination         *ports.GeoPoint `json:"destination,omitempty"`
	FallbackDestination *ports.GeoPoint `json:"fallback_destination,omitempty"`
	Origin              *ports.GeoPoint `json:"origin,omitempty"`
}

// ----- Handler: POST /technicians/{technician_id}/navigation -----

func (handler *NavigationHTTPHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	technicianID, ok := handler.technicianFromPath(ctx, w, r)
	if !ok {
		return
	}

	var req startNavigationRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	ctx = handler.logger.WithTechnicianID(ctx, technicianID)
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	view, err := handler.svc.StartNavigation(callCtx, ports.StartNavigationInput{
		TechnicianID:        technicianID,
		JobID:               req.JobID,
		DestinationAddress:  req.DestinationAddress,
		Destination:         req.Destination,
		FallbackDestination: req.FallbackDestination,
		Origin:              req.Origin,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.logger.Info(ctx, "navigation_start_accepted", "Navigation start accepted", map[string]any{
		"session_id": view.SessionID,
		"state":      view.State,
	})
	handler.jsonResponse(ctx, w, http.StatusAccepted, view)
}

// ----- Handler: DELETE /technicians/{technician_id}/navigation -----

func (handler *NavigationHTTPHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	handler.runCommand(w, r, handler.svc.CancelNavigation)
}

// ----- Handler: GET /technicians/{technician_id}/navigation -----

func (handler *NavigationHTTPHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	handler.runCommand(w, r, handler.svc.GetSnapshot)
}

// ----- Handler: POST /technicians/{technician_id}/navigation/recalculate -----

func (handler *NavigationHTTPHandler) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	handler.runCommand(w, r, handler.svc.Recalculate)
}

// ----- Handler: POST /technicians/{technician_id}/navigation/steps/{next,previous} -----

func (handler *NavigationHTTPHandler) handleStepNext(w http.ResponseWriter, r *http.Request) {
	handler.runCommand(w, r, handler.svc.StepNext)
}

func (handler *NavigationHTTPHandler) handleStepPrevious(w http.ResponseWriter, r *http.Request) {
	handler.runCommand(w, r, handler.svc.StepPrevious)
}

// runCommand resolves the technician, runs op and renders the resulting snapshot.
func (handler *NavigationHTTPHandler) runCommand(
	w http.ResponseWriter,
	r *http.Request,
	op func(context.Context, string) (ports.NavigationView, error),
) {
	ctx := handler.withReqID(r.Context(), r)

	technicianID, ok := handler.technicianFromPath(ctx, w, r)
	if !ok {
		return
	}

	ctx = handler.logger.WithTechnicianID(ctx, technicianID)
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	view, err := op(callCtx, technicianID)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	handler.jsonResponse(ctx, w, http.StatusOK, view)
}
