package adaptor

import (
	"encoding/json"
	"fmt"
	"net/http"

	"smarter-store/internal/broadcast"
	"smarter-store/internal/dto/request"
	"smarter-store/internal/usecase"
	"smarter-store/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SeatHandler struct {
	service usecase.SeatService
	hub     *broadcast.Hub
	log     *zap.Logger
}

func NewSeatHandler(service usecase.SeatService, hub *broadcast.Hub, log *zap.Logger) *SeatHandler {
	return &SeatHandler{
		service: service,
		hub:     hub,
		log:     log.With(zap.String("handler", "seat")),
	}
}

// GetSeatStatus handles GET /api/schedules/{id}/seats
func (h *SeatHandler) GetSeatStatus(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetSeatStatus(r.Context(), scheduleID)
	if err != nil {
		handleServiceError(w, h.log, err, "get seat status")
		return
	}

	utils.ResponseSuccess(w, "success", status)
}

// StreamSeatEvents handles GET /api/schedules/{id}/seats/events as a
// Server-Sent Events stream. Events missed while disconnected are not
// replayed; clients re-fetch the seat status after reconnecting.
func (h *SeatHandler) StreamSeatEvents(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.ResponseInternalError(w, "Streaming unsupported")
		return
	}

	ctx := r.Context()
	sub := h.hub.Subscribe(ctx, scheduleID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// comment line so proxies and clients see the stream open immediately
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	h.log.Debug("Seat event stream opened", zap.String("schedule_id", scheduleID.String()))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-sub.C():
			if !open {
				return
			}
			if err := writeSSE(w, msg); err != nil {
				h.log.Debug("Seat event stream closed",
					zap.Error(err),
					zap.String("schedule_id", scheduleID.String()),
					zap.Uint64("dropped", sub.Dropped()),
				)
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, msg broadcast.Message) error {
	if msg.KeepAlive || msg.Event == nil {
		_, err := fmt.Fprint(w, ": keep-alive\n\n")
		return err
	}

	payload, err := json.Marshal(msg.Event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event.Type, payload)
	return err
}

// GetLayout handles GET /api/schedules/{id}/layout
func (h *SeatHandler) GetLayout(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}

	layout, err := h.service.GetLayout(r.Context(), scheduleID)
	if err != nil {
		handleServiceError(w, h.log, err, "get layout")
		return
	}

	utils.ResponseSuccess(w, "success", layout)
}

// UpdateLayout handles PUT /api/admin/schedules/{id}/layout (admin only)
func (h *SeatHandler) UpdateLayout(w http.ResponseWriter, r *http.Request) {
	scheduleID, ok := scheduleIDParam(w, r)
	if !ok {
		return
	}

	var req request.UpdateLayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.ResponseBadRequest(w, "Invalid request body", nil)
		return
	}

	if validationErrors := utils.ValidateStruct(req); len(validationErrors) > 0 {
		utils.ResponseBadRequest(w, "Validation failed", validationErrors)
		return
	}

	layout, err := h.service.UpdateLayout(r.Context(), scheduleID, &req)
	if err != nil {
		handleServiceError(w, h.log, err, "update layout")
		return
	}

	utils.ResponseSuccess(w, "Layout updated", layout)
}

func scheduleIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := utils.ParseUUID(chi.URLParam(r, "id"))
	if err != nil {
		utils.ResponseBadRequest(w, "Invalid schedule ID", nil)
		return uuid.Nil, false
	}
	return id, true
}
