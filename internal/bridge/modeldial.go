package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultModelWSBase = "wss://api.openai.com/v1/realtime"
	// modelHandshakeTimeout bounds the model WebSocket handshake.
	modelHandshakeTimeout = 15 * time.Second
)

// ModelDialer opens the model-side WebSocket for one call.
type ModelDialer struct {
	wsBase string
}

func NewModelDialer(wsBase string) *ModelDialer {
	if strings.TrimSpace(wsBase) == "" {
		wsBase = defaultModelWSBase
	}
	return &ModelDialer{wsBase: strings.TrimSuffix(wsBase, "/")}
}

// Dial connects to wss://…?model=<model> authenticating with the
// ephemeral credential as a bearer token. If the bearer handshake is
// refused, it retries once with the subprotocol-pair scheme some gateways
// require. Compression stays off: the payload is already-compressed-ish
// μ-law and the extra latency hurts.
func (d *ModelDialer) Dial(ctx context.Context, credential, model string) (*websocket.Conn, error) {
	u, err := url.Parse(d.wsBase)
	if err != nil {
		return nil, fmt.Errorf("parse model url: %w", err)
	}
	q := u.Query()
	if model != "" {
		q.Set("model", model)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout:  modelHandshakeTimeout,
		EnableCompression: false,
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+credential)
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err == nil {
		return conn, nil
	}
	if resp != nil {
		resp.Body.Close()
	}

	fallback := websocket.Dialer{
		HandshakeTimeout:  modelHandshakeTimeout,
		EnableCompression: false,
		Subprotocols:      []string{"realtime", "openai-insecure-api-key." + credential},
	}
	conn, resp, err2 := fallback.DialContext(ctx, u.String(), nil)
	if err2 != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dial model websocket: bearer: %w; subprotocol fallback: %w", err, err2)
	}
	return conn, nil
}
