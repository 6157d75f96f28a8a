package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/realtime"
)

func TestMintTokenForwardsUpstreamRejection(t *testing.T) {
	mint := newMintServer(t, 400, `{"error":{"message":"invalid model"}}`, nil)
	srv := newTestServer(t, config.Config{})
	srv.minter = realtime.NewMinter("sk-test", realtime.WithMintURL(mint.URL))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/realtime-token", "application/json",
		strings.NewReader(`{"session":{"model":"nope","instructions":"hi"}}`))
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want upstream 400 forwarded", resp.StatusCode)
	}
	if !strings.Contains(body, "invalid model") {
		t.Fatalf("body = %s, want upstream error forwarded", body)
	}
}

func TestMintTokenUpstreamOutage(t *testing.T) {
	mint := newMintServer(t, 503, `{"error":{"message":"overloaded"}}`, nil)
	srv := newTestServer(t, config.Config{})
	srv.minter = realtime.NewMinter("sk-test", realtime.WithMintURL(mint.URL))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/realtime-token", "application/json",
		strings.NewReader(`{"session":{"instructions":"hi"}}`))
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 for server-side upstream failure", resp.StatusCode)
	}
}

func TestMintTokenBearerGuard(t *testing.T) {
	mint := newMintServer(t, 200, mintOKBody, nil)
	srv := newTestServer(t, config.Config{TokenServerSecret: "server-secret"})
	srv.minter = realtime.NewMinter("sk-test", realtime.WithMintURL(mint.URL))
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/realtime-token", "application/json",
		strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no-auth status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/realtime-token",
		strings.NewReader(`{"expires_after":{"seconds":300}}`))
	req.Header.Set("Authorization", "Bearer server-secret")
	resp, err = ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	body := readAll(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authed status = %d: %s", resp.StatusCode, body)
	}
	var cred realtime.Credential
	if err := json.Unmarshal([]byte(body), &cred); err != nil {
		t.Fatalf("decode credential: %v", err)
	}
	if cred.Token != "ek_X" || cred.ExpiresAt != 1700000600 {
		t.Fatalf("credential = %+v", cred)
	}
}

func TestMintTokenRejectsBadExpiry(t *testing.T) {
	srv := newTestServer(t, config.Config{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/realtime-token", "application/json",
		strings.NewReader(`{"expires_after":{"seconds":5}}`))
	if err != nil {
		t.Fatalf("request error = %v", err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for out-of-range expiry", resp.StatusCode)
	}
}
