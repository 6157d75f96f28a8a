package httpapi

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/switchboard/internal/calls"
	"github.com/antoniostano/switchboard/internal/twilio"
)

type createCallRequest struct {
	To     string `json:"to"`
	From   string `json:"from"`
	Record bool   `json:"record"`
	Mode   string `json:"mode"`
}

// handleCreateCall places an outbound carrier call that fetches our
// control document on answer.
func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TwilioAccountSid == "" || s.cfg.TwilioAuthToken == "" {
		respondError(w, http.StatusServiceUnavailable, "carrier_not_configured", "carrier account credentials are not set")
		return
	}
	if s.cfg.PublicBaseURL == "" {
		respondError(w, http.StatusServiceUnavailable, "no_public_url", "PUBLIC_BASE_URL is required for outbound calls")
		return
	}

	var req createCallRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if req.From == "" {
		req.From = s.cfg.TwilioFromNumber
	}

	docURL := s.cfg.PublicBaseURL + "/twiml"
	if mode := strings.TrimSpace(req.Mode); mode != "" {
		docURL += "?mode=" + url.QueryEscape(mode)
	}

	callSid, err := s.dispatcher.Place(r.Context(), twilio.PlaceRequest{
		To:                req.To,
		From:              req.From,
		ControlDocURL:     docURL,
		Record:            req.Record,
		StatusCallbackURL: s.cfg.PublicBaseURL + "/calls/status",
	})
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		s.metrics.OutboundCalls.WithLabelValues(outcome).Inc()
	}
	if err != nil {
		var apiErr *twilio.APIError
		switch {
		case errors.Is(err, twilio.ErrInvalidNumber), errors.Is(err, twilio.ErrMissingDocument):
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
			respondError(w, http.StatusBadRequest, "carrier_rejected", apiErr.Error())
		default:
			respondError(w, http.StatusBadGateway, "carrier_unavailable", err.Error())
		}
		return
	}

	rec := calls.Record{
		CallSid:   callSid,
		To:        req.To,
		From:      req.From,
		Status:    "queued",
		Record:    req.Record,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.callStore.Save(r.Context(), rec); err != nil {
		// The call is already placed; the record is best effort.
		s.log.Warn("call record save failed", "error", err, "call_sid", callSid)
	}

	respondJSON(w, http.StatusCreated, map[string]any{"call_sid": callSid})
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	records, err := s.callStore.List(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"calls": records})
}

// handleCallStatus ingests the carrier's lifecycle callbacks.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if !s.verifyCarrierRequest(r) {
		respondError(w, http.StatusForbidden, "forbidden", "signature verification failed")
		return
	}
	_ = r.ParseForm()
	callSid := strings.TrimSpace(r.PostFormValue("CallSid"))
	status := strings.TrimSpace(r.PostFormValue("CallStatus"))
	if callSid == "" || status == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "CallSid and CallStatus are required")
		return
	}

	if err := s.callStore.UpdateStatus(r.Context(), callSid, status); err != nil {
		// Callbacks for calls we never placed are expected when the number
		// handles inbound traffic too.
		s.log.Debug("status callback for unknown call", "call_sid", callSid, "status", status)
	}
	w.WriteHeader(http.StatusNoContent)
}
