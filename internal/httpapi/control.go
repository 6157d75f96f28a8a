package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/antoniostano/switchboard/internal/control"
)

const (
	timestampHeader = "X-Timestamp"
	signatureHeader = "X-Signature"

	controlBodyLimit = 1 << 20
)

// handleControl serves the model's mid-call configuration pulls. The
// response is a list of events so the envelope can grow without breaking
// consumers.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, controlBodyLimit))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
		return
	}
	r.Body.Close()

	if err := s.authorizeControl(r, body); err != nil {
		code := "unauthorized"
		if errors.Is(err, control.ErrStaleTimestamp) {
			code = "stale_timestamp"
		}
		respondError(w, http.StatusUnauthorized, code, err.Error())
		return
	}

	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, s.state.UpdateEvent())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"events": []any{s.state.UpdateEvent()},
	})
}

// authorizeControl accepts either the shared bearer token or a signed
// request envelope. With neither secret configured the endpoint fails
// closed.
func (s *Server) authorizeControl(r *http.Request, body []byte) error {
	if control.VerifyBearer(r.Header.Get("Authorization"), s.cfg.ControlSecret) {
		return nil
	}
	if s.cfg.ControlSigningSecret != "" {
		tolerance := time.Duration(s.cfg.ControlToleranceSecs) * time.Second
		return control.VerifySignature(
			s.cfg.ControlSigningSecret,
			r.Header.Get(timestampHeader),
			r.Header.Get(signatureHeader),
			body,
			tolerance,
			s.now(),
		)
	}
	return control.ErrAuthFailed
}

// handleControlSettings reads or replaces the runtime override layer.
func (s *Server) handleControlSettings(w http.ResponseWriter, r *http.Request) {
	if err := control.VerifyAdminBearer(r.Header.Get("Authorization"), s.cfg.ControlAdminSecret); err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return
	}

	if r.Method == http.MethodGet {
		respondJSON(w, http.StatusOK, map[string]any{"overrides": s.state.Overrides()})
		return
	}

	var raw map[string]any
	if err := decodeJSON(r, &raw); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if len(raw) == 0 {
		s.state.ClearOverrides()
		respondJSON(w, http.StatusOK, map[string]any{"overrides": nil})
		return
	}
	applied := s.state.SetOverrides(raw)
	respondJSON(w, http.StatusOK, map[string]any{"overrides": applied})
}
