package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/antoniostano/switchboard/internal/control"
	"github.com/antoniostano/switchboard/internal/realtime"
)

type mintTokenRequest struct {
	ExpiresAfter *struct {
		Seconds int `json:"seconds"`
	} `json:"expires_after"`
	Session map[string]any       `json:"session"`
	Webhook *realtime.WebhookRef `json:"webhook"`
}

// handleMintToken mints an ephemeral credential for an external caller,
// typically a browser client or a separate dialer. The session payload is
// sanitized the same way as bridge-initiated mints.
func (s *Server) handleMintToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TokenServerSecret != "" &&
		!control.VerifyBearer(r.Header.Get("Authorization"), s.cfg.TokenServerSecret) {
		respondError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing bearer token")
		return
	}

	var req mintTokenRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	seconds := 0
	if req.ExpiresAfter != nil {
		seconds = req.ExpiresAfter.Seconds
	}

	mintStart := time.Now()
	cred, err := s.minter.MintRaw(r.Context(), seconds, req.Session, req.Webhook)
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		} else {
			s.metrics.Stages.Observe("mint", time.Since(mintStart))
		}
		s.metrics.MintOutcomes.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		var mintErr *realtime.MintError
		if errors.As(err, &mintErr) {
			// Forward client-caused upstream rejections verbatim; everything
			// else is a gateway failure.
			status := http.StatusBadGateway
			if mintErr.Status >= 400 && mintErr.Status < 500 {
				status = mintErr.Status
			}
			if len(mintErr.Body) > 0 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(status)
				_, _ = w.Write(mintErr.Body)
				return
			}
			respondError(w, status, "mint_failed", mintErr.Error())
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, cred)
}
