package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMintSanitizesSession(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"client_secret": map[string]any{"value": "ek_abc", "expires_at": 1700000600},
		})
	}))
	defer srv.Close()

	m := NewMinter("sk-test", WithMintURL(srv.URL))
	cred, err := m.Mint(context.Background(), MintRequest{
		ExpiresAfterSeconds: 300,
		Session: &SessionConfig{
			Model:           "gpt-realtime",
			Instructions:    "be brief",
			Voice:           "marin",
			Temperature:     floatPtr(0.7),
			MaxOutputTokens: "2048",
		},
	})
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if cred.Token != "ek_abc" || cred.ExpiresAt != 1700000600 {
		t.Fatalf("credential = %+v", cred)
	}

	session, ok := captured["session"].(map[string]any)
	if !ok {
		t.Fatalf("session missing: %v", captured)
	}
	if session["type"] != "realtime" || session["model"] != "gpt-realtime" || session["instructions"] != "be brief" {
		t.Fatalf("session = %v", session)
	}
	for _, forbidden := range []string{"voice", "temperature", "max_response_output_tokens", "turn_detection"} {
		if _, present := session[forbidden]; present {
			t.Fatalf("%s leaked into mint payload", forbidden)
		}
	}
	expires, ok := captured["expires_after"].(map[string]any)
	if !ok || expires["anchor"] != "created_at" || expires["seconds"] != float64(300) {
		t.Fatalf("expires_after = %v", captured["expires_after"])
	}
}

func TestMintRawCoercesPromptVersion(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		json.NewEncoder(w).Encode(map[string]any{"value": "ek_raw", "expires_at": 42})
	}))
	defer srv.Close()

	m := NewMinter("sk-test", WithMintURL(srv.URL))
	cred, err := m.MintRaw(context.Background(), 0, map[string]any{
		"model":  "gpt-realtime",
		"prompt": map[string]any{"id": "pmpt_1", "version": float64(3)},
		"voice":  "cedar",
	}, nil)
	if err != nil {
		t.Fatalf("MintRaw() error = %v", err)
	}
	if cred.Token != "ek_raw" {
		t.Fatalf("token = %q", cred.Token)
	}

	session := captured["session"].(map[string]any)
	prompt, ok := session["prompt"].(map[string]any)
	if !ok {
		t.Fatalf("prompt missing: %v", session)
	}
	if prompt["version"] != "3" {
		t.Fatalf("prompt.version = %v (%T), want string \"3\"", prompt["version"], prompt["version"])
	}
	if _, present := session["voice"]; present {
		t.Fatalf("voice leaked into mint payload")
	}
	// Zero seconds falls back to the default lifetime.
	expires := captured["expires_after"].(map[string]any)
	if expires["seconds"] != float64(DefaultExpirySec) {
		t.Fatalf("expires_after.seconds = %v", expires["seconds"])
	}
}

func TestMintResponseShapes(t *testing.T) {
	shapes := []string{
		`{"client_secret":{"value":"ek_1","expires_at":100}}`,
		`{"client_secret":"ek_1","expires_at":100}`,
		`{"value":"ek_1","expires_at":100}`,
	}
	for _, body := range shapes {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		}))
		m := NewMinter("sk-test", WithMintURL(srv.URL))
		cred, err := m.Mint(context.Background(), MintRequest{Session: &SessionConfig{Instructions: "x"}})
		srv.Close()
		if err != nil {
			t.Fatalf("Mint() error = %v for shape %s", err, body)
		}
		if cred.Token != "ek_1" || cred.ExpiresAt != 100 {
			t.Fatalf("credential = %+v for shape %s", cred, body)
		}
	}
}

func TestMintUpstreamErrorForwarded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"unknown parameter: session.bogus","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	m := NewMinter("sk-test", WithMintURL(srv.URL))
	_, err := m.Mint(context.Background(), MintRequest{Session: &SessionConfig{Instructions: "x"}})
	var mintErr *MintError
	if !errors.As(err, &mintErr) {
		t.Fatalf("error = %v, want *MintError", err)
	}
	if mintErr.Status != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", mintErr.Status)
	}
	if mintErr.Msg != "unknown parameter: session.bogus" {
		t.Fatalf("Msg = %q", mintErr.Msg)
	}
	if len(mintErr.Body) == 0 {
		t.Fatalf("Body should carry the upstream response")
	}
}

func TestMintRejectsInvalidExpiryWithoutCalling(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	m := NewMinter("sk-test", WithMintURL(srv.URL))
	_, err := m.Mint(context.Background(), MintRequest{
		ExpiresAfterSeconds: 30,
		Session:             &SessionConfig{Instructions: "x"},
	})
	if err == nil {
		t.Fatalf("Mint() with 30s expiry should fail")
	}
	if called {
		t.Fatalf("upstream should not be called for invalid expiry")
	}
}
