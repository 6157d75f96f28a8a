package config

import (
	"testing"

	"github.com/antoniostano/switchboard/internal/realtime"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q", cfg.BindAddr)
	}
	if cfg.Model != "gpt-realtime" {
		t.Fatalf("Model = %q", cfg.Model)
	}
	if cfg.TurnDetectionMode != realtime.TurnDetectionServerVAD {
		t.Fatalf("TurnDetectionMode = %q", cfg.TurnDetectionMode)
	}
	if cfg.TokenExpirySeconds != realtime.DefaultExpirySec {
		t.Fatalf("TokenExpirySeconds = %d", cfg.TokenExpirySeconds)
	}
	if cfg.ControlToleranceSecs != 300 {
		t.Fatalf("ControlToleranceSecs = %d", cfg.ControlToleranceSecs)
	}
}

func TestLoadValidatesRanges(t *testing.T) {
	cases := map[string]string{
		"REALTIME_TEMPERATURE":               "3.5",
		"REALTIME_VAD_THRESHOLD":             "1.5",
		"REALTIME_VAD_PREFIX_MS":             "9000",
		"REALTIME_VAD_SILENCE_MS":            "10",
		"REALTIME_TOKEN_EXPIRY_SECONDS":      "30",
		"REALTIME_CONTROL_TOLERANCE_SECONDS": "0",
	}
	for key, bad := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, bad)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%s should fail", key, bad)
			}
		})
	}
}

func TestLoadModalities(t *testing.T) {
	t.Setenv("REALTIME_MODALITIES", "audio, text")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Modalities) != 2 || cfg.Modalities[0] != "audio" || cfg.Modalities[1] != "text" {
		t.Fatalf("Modalities = %v", cfg.Modalities)
	}
}

func TestBridgeURL(t *testing.T) {
	cfg := Config{ExternalBridgeURL: "wss://edge.example.com/stream"}
	if got := cfg.BridgeURL(); got != "wss://edge.example.com/stream" {
		t.Fatalf("BridgeURL() = %q", got)
	}
	cfg = Config{PublicBaseURL: "https://app.example.com"}
	if got := cfg.BridgeURL(); got != "wss://app.example.com/stream/twilio" {
		t.Fatalf("BridgeURL() = %q", got)
	}
	if got := (Config{}).BridgeURL(); got != "" {
		t.Fatalf("BridgeURL() = %q, want empty", got)
	}
}

func TestSessionDefaultsShape(t *testing.T) {
	t.Setenv("REALTIME_INSTRUCTIONS", "be helpful")
	t.Setenv("REALTIME_TEMPERATURE", "0.7")
	t.Setenv("REALTIME_VOICE", "marin")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sc := cfg.SessionDefaults()
	if sc.Instructions != "be helpful" || sc.Voice != "marin" {
		t.Fatalf("defaults = %+v", sc)
	}
	if sc.Temperature == nil || *sc.Temperature != 0.7 {
		t.Fatalf("Temperature = %v", sc.Temperature)
	}
	if sc.TurnDetection == nil || sc.TurnDetection.Type != realtime.TurnDetectionServerVAD {
		t.Fatalf("TurnDetection = %+v", sc.TurnDetection)
	}
	if err := sc.Validate(true); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestSessionDefaultsPromptFallback(t *testing.T) {
	t.Setenv("REALTIME_PROMPT_ID", "pmpt_1")
	t.Setenv("REALTIME_PROMPT_VERSION", "3")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	sc := cfg.SessionDefaults()
	if sc.Prompt == nil || sc.Prompt.ID != "pmpt_1" || sc.Prompt.Version != "3" {
		t.Fatalf("Prompt = %+v", sc.Prompt)
	}
}

func TestEnvCheckDoesNotLeakValues(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-secret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	for _, item := range cfg.EnvCheck() {
		if item.Name == "OPENAI_API_KEY" {
			if !item.Set || !item.Required {
				t.Fatalf("OPENAI_API_KEY item = %+v", item)
			}
			return
		}
	}
	t.Fatalf("OPENAI_API_KEY missing from env check")
}
