package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Priya8975/minutes-live-sync/internal/auth"
	"github.com/Priya8975/minutes-live-sync/internal/domain"
	"github.com/Priya8975/minutes-live-sync/internal/livebus"
	ws "github.com/Priya8975/minutes-live-sync/internal/websocket"
	"github.com/go-chi/chi/v5"
)

type LiveHandler struct {
	bus     *livebus.Bus
	limiter ws.Limiter
}

func NewLiveHandler(bus *livebus.Bus, limiter ws.Limiter) *LiveHandler {
	return &LiveHandler{bus: bus, limiter: limiter}
}

type emitResponse struct {
	Topic  domain.Topic `json:"topic"`
	Status string       `json:"status"`
}

// Emit announces a change on the topic in the path. The body, when present,
// must be a JSON object and is forwarded to listeners verbatim.
func (h *LiveHandler) Emit(w http.ResponseWriter, r *http.Request) {
	topic, ok := domain.ParseTopic(chi.URLParam(r, "topic"))
	if !ok {
		respondError(w, http.StatusBadRequest, "unknown topic")
		return
	}

	payload := map[string]any{}
	body := http.MaxBytesReader(w, r.Body, ws.MaxFrameBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil && err != io.EOF {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "payload must be a JSON object")
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}

	actor := auth.ActorFromContext(r.Context(), r.RemoteAddr)
	if h.limiter != nil && !h.limiter.Allow(r.Context(), actor) {
		respondError(w, http.StatusTooManyRequests, "too many live updates")
		return
	}

	h.bus.Emit(r.Context(), topic, payload)

	respondJSON(w, http.StatusAccepted, emitResponse{Topic: topic, Status: "accepted"})
}
