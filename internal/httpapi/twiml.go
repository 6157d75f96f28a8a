package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/switchboard/internal/realtime"
	"github.com/antoniostano/switchboard/internal/twiml"
)

const carrierSignatureHeader = "X-Twilio-Signature"

// fallbackInstructions keeps the mint identity invariant satisfiable when
// neither instructions nor a prompt reference is configured anywhere.
const fallbackInstructions = "You are a helpful voice assistant answering a phone call. Greet the caller and keep responses brief."

// handleTwiML serves the call-control document. The carrier fetches it on
// call setup; the mode query parameter picks the document shape, the
// environment picks the default mode.
func (s *Server) handleTwiML(w http.ResponseWriter, r *http.Request) {
	if !s.verifyCarrierRequest(r) {
		respondXML(w, http.StatusForbidden, twiml.Forbidden())
		return
	}

	q := r.URL.Query()
	mode := twiml.ParseMode(q.Get("mode"), twiml.Mode(s.cfg.DefaultTwimlMode))

	if mode == twiml.ModeSimple {
		respondXML(w, http.StatusOK, s.builder.SimpleDocument())
		return
	}

	credential := strings.TrimSpace(q.Get("token"))
	if credential == "" {
		cred, err := s.mintForCall(r)
		if err != nil {
			s.log.Error("control document mint failed", "error", err, "mode", mode)
			respondXML(w, http.StatusOK, twiml.SpokenError())
			return
		}
		credential = cred.Token
	}

	switch mode {
	case twiml.ModeStream:
		builder := s.builder
		if builder.BridgeURL == "" {
			// No configured public URL; derive from the request host.
			builder = &twiml.Builder{
				BridgeURL:  "wss://" + r.Host + "/stream/twilio",
				SIPGateway: s.cfg.SIPGateway,
			}
		}
		respondXML(w, http.StatusOK, builder.StreamDocument(credential))
	default:
		port, _ := strconv.Atoi(q.Get("port"))
		respondXML(w, http.StatusOK, s.builder.SIPDocument(credential, twiml.SIPOptions{
			Scheme:    q.Get("scheme"),
			Transport: q.Get("transport"),
			Port:      port,
		}))
	}
}

// handleTwiMLAction is the post-dial continuation. A failed SIP dial falls
// back to the stream document so the call still reaches the bridge;
// anything else ends the call.
func (s *Server) handleTwiMLAction(w http.ResponseWriter, r *http.Request) {
	if !s.verifyCarrierRequest(r) {
		respondXML(w, http.StatusForbidden, twiml.Forbidden())
		return
	}
	_ = r.ParseForm()
	status := strings.ToLower(r.PostFormValue("DialCallStatus"))

	switch status {
	case "completed", "answered", "":
		respondXML(w, http.StatusOK, twiml.HangupDocument(""))
		return
	}

	s.log.Info("sip dial failed, falling back to stream", "dial_status", status)
	cred, err := s.mintForCall(r)
	if err != nil {
		s.log.Error("stream fallback mint failed", "error", err)
		respondXML(w, http.StatusOK, twiml.SpokenError())
		return
	}
	respondXML(w, http.StatusOK, s.builder.StreamDocument(cred.Token))
}

// mintForCall mints an ephemeral credential for one call, applying
// identity overrides from the request query on top of environment
// defaults.
func (s *Server) mintForCall(r *http.Request) (*realtime.Credential, error) {
	q := r.URL.Query()
	session := s.cfg.SessionDefaults()

	if instructions := strings.TrimSpace(q.Get("instructions")); instructions != "" {
		session.Instructions = instructions
		session.Prompt = nil
	} else if promptID := strings.TrimSpace(q.Get("prompt_id")); promptID != "" {
		session.Prompt = &realtime.PromptRef{ID: promptID, Version: strings.TrimSpace(q.Get("prompt_version"))}
		session.Instructions = ""
	}
	if session.Instructions == "" && (session.Prompt == nil || session.Prompt.ID == "") {
		session.Instructions = fallbackInstructions
	}

	mintStart := time.Now()
	cred, err := s.minter.Mint(r.Context(), realtime.MintRequest{
		ExpiresAfterSeconds: s.cfg.TokenExpirySeconds,
		Session:             session,
	})
	if s.metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		} else {
			s.metrics.Stages.Observe("mint", time.Since(mintStart))
		}
		s.metrics.MintOutcomes.WithLabelValues(outcome).Inc()
	}
	return cred, err
}

// verifyCarrierRequest enforces the carrier's request signature when both
// the shared auth token and the signature header are present. Either side
// missing leaves the endpoint open, matching unsigned-webhook deployments.
func (s *Server) verifyCarrierRequest(r *http.Request) bool {
	signature := r.Header.Get(carrierSignatureHeader)
	if s.cfg.TwilioAuthToken == "" || signature == "" {
		return true
	}

	if r.Method == http.MethodPost {
		_ = r.ParseForm()
	}
	fullURL := s.requestURL(r)
	return twiml.VerifyCarrierSignature(s.cfg.TwilioAuthToken, fullURL, r.PostForm, signature)
}

// requestURL reconstructs the externally visible URL the carrier signed.
// The configured public base wins over the Host header, which may be an
// internal address behind a proxy.
func (s *Server) requestURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL + r.URL.RequestURI()
	}
	scheme := "https"
	if r.TLS == nil && !strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
