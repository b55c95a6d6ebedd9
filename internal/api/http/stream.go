package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/canal-compras/disputa/internal/domain/notification"
)

const streamKeepAlive = 15 * time.Second

// streamTender is the per-viewer change feed. The first event carries the
// caller's current view so a client can resync after reconnecting.
func (s *Server) streamTender(w http.ResponseWriter, r *http.Request) {
	caller := mustCaller(r)
	tenderID := tenderParam(r)
	view, err := s.sessions.View(caller, tenderID)
	if err != nil {
		s.respondFailure(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}

	clientID := r.URL.Query().Get("client_id")
	if clientID == "" {
		clientID = uuid.NewString()
	}
	client := notification.NewSSEClient(clientID, tenderID, caller)
	s.sseHub.Register(client)
	defer s.sseHub.Unregister(clientID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snapshot, _ := json.Marshal(view)
	writeEvent(w, notification.NewSSEMessage(fmt.Sprintf("%d", view.Seq), "SESSION_VIEW", snapshot, time.Now()))
	flusher.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()
	ctx := r.Context()
	for {
		select {
		case msg, ok := <-client.MessageChan:
			if !ok || msg == nil {
				return
			}
			writeEvent(w, msg)
			flusher.Flush()
		case <-keepAlive.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, msg *notification.SSEMessage) {
	if msg.ID != "" {
		_, _ = fmt.Fprintf(w, "id: %s\n", msg.ID)
	}
	if msg.Event != "" {
		_, _ = fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	if msg.Retry != nil {
		_, _ = fmt.Fprintf(w, "retry: %d\n", *msg.Retry)
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(msg.Data)
	_, _ = w.Write([]byte("\n\n"))
}
