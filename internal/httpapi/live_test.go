package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antoniostano/switchboard/internal/config"
	"github.com/antoniostano/switchboard/internal/transcript"
)

func TestLivePush(t *testing.T) {
	srv := newTestServer(t, config.Config{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Post(ts.URL+"/live/CA1/push", "application/json",
		strings.NewReader(`{"text":"hello there"}`))
	if err != nil {
		t.Fatalf("push error = %v", err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("push status = %d", resp.StatusCode)
	}

	entries, _, err := srv.transcripts.Range(context.Background(), "CA1", 0)
	if err != nil {
		t.Fatalf("range error = %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != transcript.KindTextDelta || entries[0].Text != "hello there" {
		t.Fatalf("entries = %+v", entries)
	}

	resp, err = ts.Client().Post(ts.URL+"/live/CA1/push", "application/json",
		strings.NewReader(`{"text":""}`))
	if err != nil {
		t.Fatalf("push error = %v", err)
	}
	readAll(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty-text status = %d", resp.StatusCode)
	}
}

func TestLiveStreamEmitsLines(t *testing.T) {
	srv := newTestServer(t, config.Config{})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	seed := transcript.Entry{Kind: transcript.KindAudioTranscriptDelta, Text: "good morning", At: 42}
	if err := srv.transcripts.Append(context.Background(), "CA2", seed); err != nil {
		t.Fatalf("append error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/live/CA2", nil)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: line" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var entry transcript.Entry
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &entry); err != nil {
				t.Fatalf("decode data line: %v", err)
			}
			if entry.Kind != transcript.KindAudioTranscriptDelta || entry.Text != "good morning" {
				t.Fatalf("entry = %+v", entry)
			}
			return
		}
	}
	t.Fatalf("stream ended without an event: %v", scanner.Err())
}
