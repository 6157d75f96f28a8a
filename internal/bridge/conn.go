package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/switchboard/internal/control"
	"github.com/antoniostano/switchboard/internal/observability"
	"github.com/antoniostano/switchboard/internal/protocol"
	"github.com/antoniostano/switchboard/internal/transcript"
)

const (
	// heartbeatInterval keeps proxies from dropping idle sockets during
	// long silences.
	heartbeatInterval = 25 * time.Second
	writeTimeout      = 10 * time.Second
	readLimit         = 2 << 20
	outboundQueueSize = 256
)

// Handler terminates carrier media-stream WebSockets and runs one bridge
// session per connection.
type Handler struct {
	log          *slog.Logger
	metrics      *observability.Metrics
	controlState *control.State
	transcripts  transcript.Store
	dialer       *ModelDialer
	model        string
	upgrader     websocket.Upgrader
}

func NewHandler(
	controlState *control.State,
	transcripts transcript.Store,
	dialer *ModelDialer,
	model string,
	metrics *observability.Metrics,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:          log,
		metrics:      metrics,
		controlState: controlState,
		transcripts:  transcripts,
		dialer:       dialer,
		model:        model,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The carrier is not a browser; Origin checks do not apply.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ExtractCredential pulls the ephemeral credential from the request. The
// path segment wins because some carriers strip query strings; then the
// secret query parameter; then a form-encoded fallback.
func ExtractCredential(r *http.Request, pathSegment string) string {
	if seg := strings.TrimSpace(pathSegment); seg != "" {
		if decoded, err := url.PathUnescape(seg); err == nil {
			return decoded
		}
		return seg
	}
	if secret := strings.TrimSpace(r.URL.Query().Get("secret")); secret != "" {
		return secret
	}
	if err := r.ParseForm(); err == nil {
		if secret := strings.TrimSpace(r.PostForm.Get("secret")); secret != "" {
			return secret
		}
	}
	return ""
}

// ServeStream handles GET /stream/twilio and /stream/twilio/{credential}.
// pathSegment is the raw credential path segment, empty when absent.
func (h *Handler) ServeStream(w http.ResponseWriter, r *http.Request, pathSegment string) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	credential := ExtractCredential(r, pathSegment)

	// Echo the first requested subprotocol; the carrier expects its own
	// offer back in the 101.
	respHeader := http.Header{}
	if proto := firstSubprotocol(r); proto != "" {
		respHeader.Set("Sec-WebSocket-Protocol", proto)
	}

	conn, err := h.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		h.log.Warn("carrier upgrade failed", "error", err)
		return
	}

	if credential == "" {
		// Policy violation: no credential in path, query, or form.
		deadline := time.Now().Add(writeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "missing credential"), deadline)
		conn.Close()
		if h.metrics != nil {
			h.metrics.CallEvents.WithLabelValues("rejected_no_credential").Inc()
		}
		return
	}

	h.run(r.Context(), conn, credential)
}

func firstSubprotocol(r *http.Request) string {
	for _, header := range r.Header["Sec-Websocket-Protocol"] {
		for _, proto := range strings.Split(header, ",") {
			if p := strings.TrimSpace(proto); p != "" {
				return p
			}
		}
	}
	return ""
}

// run owns the whole call: both sockets, the pacer, and the heartbeat.
// Closure of either socket cascades through ctx into a single closing
// transition.
func (h *Handler) run(parent context.Context, carrierConn *websocket.Conn, credential string) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if h.metrics != nil {
		h.metrics.ActiveCalls.Inc()
		h.metrics.CallEvents.WithLabelValues("started").Inc()
		defer func() {
			h.metrics.ActiveCalls.Dec()
			h.metrics.CallEvents.WithLabelValues("ended").Inc()
		}()
	}

	toModel := make(chan any, outboundQueueSize)
	toCarrier := make(chan protocol.CarrierMessage, outboundQueueSize)
	sess := NewSession(h.controlState, h.transcripts, h.metrics, h.log, toModel, toCarrier)
	defer sess.Shutdown()

	var modelConn *websocket.Conn
	var closeOnce sync.Once
	closeAll := func(code int, reason string) {
		closeOnce.Do(func() {
			cancel()
			// Unblocks any read loop parked on a session channel send.
			sess.Shutdown()
			deadline := time.Now().Add(writeTimeout)
			msg := websocket.FormatCloseMessage(code, reason)
			_ = carrierConn.WriteControl(websocket.CloseMessage, msg, deadline)
			carrierConn.Close()
			if modelConn != nil {
				_ = modelConn.WriteControl(websocket.CloseMessage, msg, deadline)
				modelConn.Close()
			}
		})
	}
	defer closeAll(websocket.CloseNormalClosure, "")

	// Carrier writer: the single goroutine that touches the carrier socket
	// for data frames.
	var writers sync.WaitGroup
	writers.Add(1)
	go func() {
		defer writers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-toCarrier:
				_ = carrierConn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := carrierConn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if h.metrics != nil {
					h.metrics.CarrierMessages.WithLabelValues("outbound", string(msg.Event)).Inc()
				}
			}
		}
	}()

	carrierConn.SetReadLimit(readLimit)

	// Carrier read loop, inline: this goroutine is the call's anchor.
	for {
		msgType, data, err := carrierConn.ReadMessage()
		if err != nil {
			h.log.Info("carrier socket closed", "error", err)
			closeAll(websocket.CloseNormalClosure, "")
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseCarrierMessage(data)
		if err != nil {
			// One malformed frame never ends the call.
			h.log.Warn("malformed carrier frame dropped", "error", err)
			continue
		}
		if h.metrics != nil {
			h.metrics.CarrierMessages.WithLabelValues("inbound", string(msg.Event)).Inc()
		}

		if msg.Event == protocol.CarrierStart {
			sess.HandleStart(msg.Start)
			dialStart := time.Now()
			modelConn, err = h.dialer.Dial(ctx, credential, h.model)
			if err == nil && h.metrics != nil {
				h.metrics.Stages.Observe("model_dial", time.Since(dialStart))
			}
			if err != nil {
				h.log.Error("model handshake failed", "error", err, "call_sid", sess.CallSid())
				closeAll(websocket.CloseInternalServerErr, "model connection failed")
				break
			}
			h.startModelSide(ctx, closeAll, modelConn, sess, toModel, &writers)
			h.startHeartbeat(ctx, carrierConn, modelConn, &writers)
			continue
		}

		if !sess.HandleCarrierMessage(msg) {
			closeAll(websocket.CloseNormalClosure, "carrier stop")
			break
		}
	}

	cancel()
	writers.Wait()
}

// startModelSide launches the model writer and read loop. Either side
// failing must cascade through closeAll: the carrier read loop does not
// watch ctx, so cancel alone leaves the carrier socket open and the call
// wedged.
func (h *Handler) startModelSide(
	ctx context.Context,
	closeAll func(code int, reason string),
	modelConn *websocket.Conn,
	sess *Session,
	toModel <-chan any,
	writers *sync.WaitGroup,
) {
	writers.Add(1)
	go func() {
		defer writers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-toModel:
				_ = modelConn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := modelConn.WriteJSON(evt); err != nil {
					closeAll(websocket.CloseInternalServerErr, "model connection failed")
					return
				}
				if h.metrics != nil {
					h.metrics.ModelEvents.WithLabelValues("outbound", eventType(evt)).Inc()
				}
			}
		}
	}()

	writers.Add(1)
	go func() {
		defer writers.Done()
		modelConn.SetReadLimit(readLimit)
		for {
			msgType, data, err := modelConn.ReadMessage()
			if err != nil {
				h.log.Info("model socket closed", "error", err, "call_sid", sess.CallSid())
				closeAll(websocket.CloseInternalServerErr, "model connection closed")
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			evt, err := protocol.ParseModelEvent(data)
			if err != nil {
				h.log.Warn("malformed model event dropped", "error", err)
				continue
			}
			if h.metrics != nil {
				h.metrics.ModelEvents.WithLabelValues("inbound", evt.Type).Inc()
			}
			sess.HandleModelEvent(evt)
		}
	}()
}

// startHeartbeat pings both sockets so intermediaries keep them open.
func (h *Handler) startHeartbeat(ctx context.Context, carrierConn, modelConn *websocket.Conn, writers *sync.WaitGroup) {
	writers.Add(1)
	go func() {
		defer writers.Done()
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deadline := time.Now().Add(writeTimeout)
				_ = carrierConn.WriteControl(websocket.PingMessage, nil, deadline)
				_ = modelConn.WriteControl(websocket.PingMessage, nil, deadline)
			}
		}
	}()
}

func eventType(v any) string {
	type typed interface{ EventType() string }
	if t, ok := v.(typed); ok {
		return t.EventType()
	}
	return "client_event"
}
