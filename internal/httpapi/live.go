package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/switchboard/internal/transcript"
)

const (
	ssePollInterval      = 600 * time.Millisecond
	sseKeepaliveInterval = 15 * time.Second
)

// handleLiveStream tails a call transcript over server-sent events. The
// key is the call id, falling back to the stream id for calls that never
// reported one.
func (s *Server) handleLiveStream(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "transcript key is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming_unsupported", "response writer does not support flushing")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	poll := time.NewTicker(ssePollInterval)
	defer poll.Stop()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	cursor := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case <-poll.C:
			entries, next, err := s.transcripts.Range(ctx, key, cursor)
			if err != nil {
				s.log.Warn("transcript range failed", "error", err, "key", key)
				continue
			}
			cursor = next
			if len(entries) == 0 {
				continue
			}
			for _, entry := range entries {
				data, err := json.Marshal(entry)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "event: line\ndata: %s\n\n", data)
			}
			flusher.Flush()
		}
	}
}

type livePushRequest struct {
	Kind string `json:"kind"`
	Text string `json:"text"`
}

// handleLivePush appends one transcript line, for external publishers
// feeding the same live view the bridge writes to.
func (s *Server) handleLivePush(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "transcript key is required")
		return
	}
	var req livePushRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if req.Kind == "" {
		req.Kind = transcript.KindTextDelta
	}

	entry := transcript.Entry{Kind: req.Kind, Text: req.Text, At: time.Now().UnixMilli()}
	if err := s.transcripts.Append(r.Context(), key, entry); err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
