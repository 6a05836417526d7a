package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"commuterbliss/internal/device"
)

// SSEDevice streams appmessage events to a connected watch companion.
// Devices with customised days or times get their settings pushed first.
func (h *Handler) SSEDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	session, done := h.hub.Subscribe(id)
	defer done()

	writeEvent(w, flusher, "ready", fmt.Sprintf(`{"session":%q}`, session.ID))

	if _, err := h.pipeline.Handshake(ctx, id, h.preferencesFor(ctx, id)); err != nil {
		h.logger.Warn("connect handshake", "device", id, "error", err)
	}

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case env := <-session.Messages():
			h.sendEnvelope(w, flusher, env)
		case <-ticker.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) sendEnvelope(w http.ResponseWriter, flusher http.Flusher, env device.Envelope) {
	data, err := json.Marshal(env.Message)
	if err != nil {
		h.logger.Error("encoding appmessage", "cycle", env.CycleID, "error", err)
		return
	}
	writeEvent(w, flusher, "appmessage", string(data))
}

// writeEvent writes one SSE event, prefixing every line of data.
func writeEvent(w http.ResponseWriter, flusher http.Flusher, name, data string) {
	fmt.Fprintf(w, "event: %s\n", name)
	for _, line := range bytes.Split([]byte(data), []byte("\n")) {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
	flusher.Flush()
}
