// Package httpapi is the HTTP surface of the voice bridge: the carrier
// call-control document, the media-stream WebSocket, credential minting,
// the control webhook, outbound call placement, and live transcript
// streaming.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/switchboard/internal/bridge"
	"github.com/antoniostano/switchboard/internal/calls"
	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/control"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/realtime"
	"github.com/antoniostano/switchboard/internal/transcript"
	"github.com/antoniostano/switchboard/internal/twilio"
	"github.com/antoniostano/switchboard/internal/twiml"
)

type Server struct {
	cfg         config.Config
	log         *slog.Logger
	metrics     *observability.Metrics
	state       *control.State
	transcripts transcript.Store
	minter      *realtime.Minter
	bridge      *bridge.Handler
	dispatcher  *twilio.Dispatcher
	callStore   calls.Store
	builder     *twiml.Builder

	// now is swappable for signed-request tests.
	now func() time.Time
}

func New(
	cfg config.Config,
	state *control.State,
	transcripts transcript.Store,
	minter *realtime.Minter,
	bridgeHandler *bridge.Handler,
	dispatcher *twilio.Dispatcher,
	callStore calls.Store,
	metrics *observability.Metrics,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:         cfg,
		log:         log,
		metrics:     metrics,
		state:       state,
		transcripts: transcripts,
		minter:      minter,
		bridge:      bridgeHandler,
		dispatcher:  dispatcher,
		callStore:   callStore,
		builder: &twiml.Builder{
			BridgeURL:     cfg.BridgeURL(),
			SIPGateway:    cfg.SIPGateway,
			SimpleMessage: cfg.SimpleMessage,
		},
		now: time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/env-check", s.handleEnvCheck)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/perf/latency", s.handlePerfLatency)

	r.Get("/twiml", s.handleTwiML)
	r.Post("/twiml", s.handleTwiML)
	r.Post("/twiml/action", s.handleTwiMLAction)

	r.Get("/stream/twilio", func(w http.ResponseWriter, r *http.Request) {
		s.bridge.ServeStream(w, r, "")
	})
	r.Get("/stream/twilio/{credential}", func(w http.ResponseWriter, r *http.Request) {
		s.bridge.ServeStream(w, r, chi.URLParam(r, "credential"))
	})

	r.Post("/realtime-token", s.handleMintToken)

	r.Post("/calls", s.handleCreateCall)
	r.Get("/calls", s.handleListCalls)
	r.Post("/calls/status", s.handleCallStatus)

	r.Get("/control", s.handleControl)
	r.Post("/control", s.handleControl)
	r.Get("/control/settings", s.handleControlSettings)
	r.Post("/control/settings", s.handleControlSettings)

	r.Get("/live/{key}", s.handleLiveStream)
	r.Post("/live/{key}/push", s.handleLivePush)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleEnvCheck(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"env": s.cfg.EnvCheck()})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	var stages []observability.StageStats
	if s.metrics != nil {
		stages = s.metrics.Stages.Snapshot()
	}
	if stages == nil {
		stages = []observability.StageStats{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"stages": stages})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func respondXML(w http.ResponseWriter, status int, doc string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(doc))
}
