package handler

import (
	"context"
	"net/http"
	"time"

	"fieldnav/internal/ports"
)

// updateLocationRequest is the body of POST /technicians/{technician_id}/location.
type updateLocationRequest struct {
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	AccuracyMeters float64    `json:"accuracy_meters"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

type updateLocationResponse struct {
	TechnicianID string `json:"technician_id"`
	Accepted     bool   `json:"accepted"`
}

// ----- Handler: POST /technicians/{technician_id}/location -----

func (handler *NavigationHTTPHandler) handleUpdateLocation(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	technicianID, ok := handler.technicianFromPath(ctx, w, r)
	if !ok {
		return
	}

	var req updateLocationRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	in := ports.UpdatePositionInput{
		TechnicianID:   technicianID,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		AccuracyMeters: req.AccuracyMeters,
	}
	if req.Timestamp != nil {
		in.Timestamp = req.Timestamp.UTC()
	}

	ctx = handler.logger.WithTechnicianID(ctx, technicianID)
	callCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := handler.svc.UpdatePosition(callCtx, in); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusAccepted, updateLocationResponse{TechnicianID: technicianID, Accepted: true})
}
