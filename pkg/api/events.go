package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dataroomhq/dataroom/pkg/apierror"
	"github.com/dataroomhq/dataroom/pkg/httputil"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// subscribe streams change notifications for one resource as server-sent
// events. The stream stays open until the client disconnects.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.WriteError(w, s.logger, apierror.Internalf("streaming unsupported by connection"))
		return
	}

	ch, cancel, err := s.engine.Subscribe(r.Context(), vars["resourceType"], vars["id"], s.actor(r))
	if err != nil {
		httputil.WriteError(w, s.logger, err)
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case notification, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(notification)
			if err != nil {
				s.logger.WithError(err).Warn("failed to encode notification")
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", notification.Operation, data)
			flusher.Flush()
		}
	}
}
