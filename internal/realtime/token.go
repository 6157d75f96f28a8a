package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultMintURL   = "https://api.openai.com/v1/realtime/client_secrets"
	mintTimeout      = 15 * time.Second
	DefaultExpirySec = 600
)

// Credential is a single-use ephemeral token for one model WebSocket
// connection, discarded after the connection opens or on expiry.
type Credential struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// MintError carries the upstream status and body so handlers can forward
// the failure without inventing detail.
type MintError struct {
	Status int
	Body   []byte
	Msg    string
}

func (e *MintError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("mint credential: %s (upstream status %d)", e.Msg, e.Status)
	}
	return fmt.Sprintf("mint credential: upstream status %d", e.Status)
}

// WebhookRef optionally points the credential at a control webhook the
// model pulls session updates from mid-call. Whether the credential
// endpoint accepts it is account-dependent; it is forwarded only when
// supplied.
type WebhookRef struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// MintRequest is the caller-facing mint input before sanitization.
type MintRequest struct {
	ExpiresAfterSeconds int
	Session             *SessionConfig
	Webhook             *WebhookRef
}

// Minter issues ephemeral credentials against the model's credential
// endpoint.
type Minter struct {
	apiKey    string
	orgID     string
	projectID string
	mintURL   string
	client    *http.Client
}

// MinterOption configures a Minter.
type MinterOption func(*Minter)

// WithMintURL overrides the credential endpoint, primarily for tests.
func WithMintURL(url string) MinterOption {
	return func(m *Minter) { m.mintURL = url }
}

// WithOrg sets the optional organization and project headers.
func WithOrg(orgID, projectID string) MinterOption {
	return func(m *Minter) {
		m.orgID = orgID
		m.projectID = projectID
	}
}

func NewMinter(apiKey string, opts ...MinterOption) *Minter {
	m := &Minter{
		apiKey:  apiKey,
		mintURL: defaultMintURL,
		client:  &http.Client{Timeout: mintTimeout},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// sanitizeSession restricts the session payload to the fields the
// credential endpoint accepts: type, model, instructions, prompt. The rest
// of the configuration is applied later via session.update over the
// WebSocket. A numeric prompt version is coerced to string.
func sanitizeSession(cfg *SessionConfig) map[string]any {
	session := map[string]any{"type": "realtime"}
	if cfg == nil {
		return session
	}
	if cfg.Model != "" {
		session["model"] = cfg.Model
	}
	if strings.TrimSpace(cfg.Instructions) != "" {
		session["instructions"] = cfg.Instructions
	} else if cfg.Prompt != nil && cfg.Prompt.ID != "" {
		prompt := map[string]any{"id": cfg.Prompt.ID}
		if v := strings.TrimSpace(cfg.Prompt.Version); v != "" {
			prompt["version"] = v
		}
		session["prompt"] = prompt
	}
	return session
}

// SanitizeSessionMap applies the same restriction to an untyped session
// object, used when the mint request arrives as raw JSON.
func SanitizeSessionMap(raw map[string]any) map[string]any {
	session := map[string]any{"type": "realtime"}
	for _, key := range []string{"model", "instructions", "prompt"} {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		if key == "prompt" {
			if p, ok := v.(map[string]any); ok {
				v = coercePromptVersion(p)
			}
		}
		session[key] = v
	}
	return session
}

// coercePromptVersion stringifies a numeric prompt.version. JSON numbers
// decode as float64; the upstream wants a string.
func coercePromptVersion(prompt map[string]any) map[string]any {
	out := make(map[string]any, len(prompt))
	for k, v := range prompt {
		out[k] = v
	}
	switch v := out["version"].(type) {
	case float64:
		out["version"] = strings.TrimSuffix(fmt.Sprintf("%.0f", v), ".")
	case int:
		out["version"] = fmt.Sprintf("%d", v)
	}
	return out
}

type mintPayload struct {
	ExpiresAfter mintExpires    `json:"expires_after"`
	Session      map[string]any `json:"session"`
	Server       *WebhookRef    `json:"server,omitempty"`
}

type mintExpires struct {
	Anchor  string `json:"anchor"`
	Seconds int    `json:"seconds"`
}

// mintResponse covers the three accepted upstream shapes:
//
//	{client_secret: {value, expires_at}}
//	{client_secret: "...", expires_at: N}
//	{value: "...", expires_at: N}
type mintResponse struct {
	ClientSecret json.RawMessage `json:"client_secret"`
	Value        string          `json:"value"`
	ExpiresAt    int64           `json:"expires_at"`
	Error        *struct {
		Message string `json:"message"`
		Type    string `json:"type,omitempty"`
	} `json:"error"`
}

// Mint performs the credential POST. There is no retry; callers re-mint.
func (m *Minter) Mint(ctx context.Context, req MintRequest) (*Credential, error) {
	if m.apiKey == "" {
		return nil, errors.New("mint credential: api key not configured")
	}
	seconds := req.ExpiresAfterSeconds
	if seconds == 0 {
		seconds = DefaultExpirySec
	}
	if err := ValidateExpirySeconds(seconds); err != nil {
		return nil, err
	}
	if req.Session != nil {
		if err := req.Session.Validate(true); err != nil {
			return nil, err
		}
	}

	payload := mintPayload{
		ExpiresAfter: mintExpires{Anchor: "created_at", Seconds: seconds},
		Session:      sanitizeSession(req.Session),
	}
	if req.Webhook != nil && strings.TrimSpace(req.Webhook.URL) != "" {
		payload.Server = &WebhookRef{
			URL:    strings.TrimSpace(req.Webhook.URL),
			Secret: req.Webhook.Secret,
		}
	}
	return m.post(ctx, payload)
}

// MintRaw mints from an untyped session object, applying the same
// sanitization. Used by the /realtime-token endpoint where callers supply
// arbitrary session JSON.
func (m *Minter) MintRaw(ctx context.Context, seconds int, session map[string]any, webhook *WebhookRef) (*Credential, error) {
	if m.apiKey == "" {
		return nil, errors.New("mint credential: api key not configured")
	}
	if seconds == 0 {
		seconds = DefaultExpirySec
	}
	if err := ValidateExpirySeconds(seconds); err != nil {
		return nil, err
	}
	payload := mintPayload{
		ExpiresAfter: mintExpires{Anchor: "created_at", Seconds: seconds},
		Session:      SanitizeSessionMap(session),
	}
	if webhook != nil && strings.TrimSpace(webhook.URL) != "" {
		payload.Server = &WebhookRef{URL: strings.TrimSpace(webhook.URL), Secret: webhook.Secret}
	}
	return m.post(ctx, payload)
}

func (m *Minter) post(ctx context.Context, payload mintPayload) (*Credential, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mint credential: marshal: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.mintURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mint credential: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	if m.orgID != "" {
		httpReq.Header.Set("OpenAI-Organization", m.orgID)
	}
	if m.projectID != "" {
		httpReq.Header.Set("OpenAI-Project", m.projectID)
	}

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("mint credential: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("mint credential: read response: %w", err)
	}

	var parsed mintResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil && resp.StatusCode < 300 {
		return nil, &MintError{Status: resp.StatusCode, Body: respBody, Msg: "unparseable response"}
	}
	if parsed.Error != nil {
		return nil, &MintError{Status: resp.StatusCode, Body: respBody, Msg: parsed.Error.Message}
	}
	if resp.StatusCode >= 300 {
		return nil, &MintError{Status: resp.StatusCode, Body: respBody}
	}

	cred := &Credential{ExpiresAt: parsed.ExpiresAt}
	if len(parsed.ClientSecret) > 0 {
		// client_secret is either an object {value, expires_at} or a bare
		// string.
		var nested struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		}
		if err := json.Unmarshal(parsed.ClientSecret, &nested); err == nil && nested.Value != "" {
			cred.Token = nested.Value
			if nested.ExpiresAt != 0 {
				cred.ExpiresAt = nested.ExpiresAt
			}
		} else {
			var bare string
			if err := json.Unmarshal(parsed.ClientSecret, &bare); err == nil {
				cred.Token = bare
			}
		}
	}
	if cred.Token == "" {
		cred.Token = parsed.Value
	}
	if cred.Token == "" {
		return nil, &MintError{Status: resp.StatusCode, Body: respBody, Msg: "no credential value in response"}
	}
	return cred, nil
}
