package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/switchboard/internal/realtime"
)

// Config contains all runtime settings for the voice bridge service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string

	// Model-side credentials and endpoints.
	OpenAIAPIKey    string
	OpenAIOrgID     string
	OpenAIProjectID string
	ModelWSBaseURL  string
	MintURL         string
	SIPGateway      string

	// Carrier-side credentials.
	TwilioAccountSid string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Deployment shape.
	PublicBaseURL     string
	ExternalBridgeURL string
	DefaultTwimlMode  string
	SimpleMessage     string

	// Session defaults, layered under runtime overrides by the control
	// plane.
	Model               string
	Instructions        string
	PromptID            string
	PromptVersion       string
	Voice               string
	Modalities          []string
	Temperature         float64
	TemperatureSet      bool
	MaxOutputTokens     string
	TurnDetectionMode   string
	VADThreshold        float64
	VADPrefixMs         int
	VADSilenceMs        int
	VADCreateResponse   bool
	InputSampleRate     int
	TranscriptionModel  string
	TranscriptionLang   string
	TranscriptionPrompt string
	NoiseReduction      string
	TokenExpirySeconds  int

	// Control-webhook auth.
	ControlSecret        string
	ControlSigningSecret string
	ControlAdminSecret   string
	ControlToleranceSecs int

	// Token endpoint auth.
	TokenServerSecret string

	// Stores.
	RedisURL    string
	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "switchboard"),
		LogLevel:         envOrDefault("APP_LOG_LEVEL", "info"),
		ShutdownTimeout:  15 * time.Second,

		OpenAIAPIKey:    stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIOrgID:     stringsTrimSpace("OPENAI_ORG_ID"),
		OpenAIProjectID: stringsTrimSpace("OPENAI_PROJECT_ID"),
		ModelWSBaseURL:  envOrDefault("OPENAI_REALTIME_WS_URL", "wss://api.openai.com/v1/realtime"),
		MintURL:         stringsTrimSpace("OPENAI_CLIENT_SECRETS_URL"),
		SIPGateway:      envOrDefault("OPENAI_SIP_GATEWAY", "sip.api.openai.com"),

		TwilioAccountSid: stringsTrimSpace("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  stringsTrimSpace("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: stringsTrimSpace("TWILIO_FROM_NUMBER"),

		PublicBaseURL:     strings.TrimSuffix(stringsTrimSpace("PUBLIC_BASE_URL"), "/"),
		ExternalBridgeURL: strings.TrimSuffix(stringsTrimSpace("EXTERNAL_BRIDGE_URL"), "/"),
		DefaultTwimlMode:  envOrDefault("TWIML_DEFAULT_MODE", "sip"),
		SimpleMessage:     stringsTrimSpace("TWIML_SIMPLE_MESSAGE"),

		Model:               envOrDefault("REALTIME_MODEL", "gpt-realtime"),
		Instructions:        stringsTrimSpace("REALTIME_INSTRUCTIONS"),
		PromptID:            stringsTrimSpace("REALTIME_PROMPT_ID"),
		PromptVersion:       stringsTrimSpace("REALTIME_PROMPT_VERSION"),
		Voice:               stringsTrimSpace("REALTIME_VOICE"),
		MaxOutputTokens:     stringsTrimSpace("REALTIME_MAX_OUTPUT_TOKENS"),
		TurnDetectionMode:   envOrDefault("REALTIME_TURN_DETECTION", realtime.TurnDetectionServerVAD),
		NoiseReduction:      envOrDefault("REALTIME_NOISE_REDUCTION", realtime.NoiseReductionOff),
		TranscriptionModel:  stringsTrimSpace("REALTIME_TRANSCRIPTION_MODEL"),
		TranscriptionLang:   stringsTrimSpace("REALTIME_TRANSCRIPTION_LANGUAGE"),
		TranscriptionPrompt: stringsTrimSpace("REALTIME_TRANSCRIPTION_PROMPT"),

		ControlSecret:        stringsTrimSpace("REALTIME_CONTROL_SECRET"),
		ControlSigningSecret: stringsTrimSpace("REALTIME_CONTROL_SIGNING_SECRET"),
		ControlAdminSecret:   stringsTrimSpace("REALTIME_CONTROL_ADMIN_SECRET"),

		TokenServerSecret: stringsTrimSpace("TOKEN_SERVER_SECRET"),

		RedisURL:    stringsTrimSpace("REDIS_URL"),
		DatabaseURL: stringsTrimSpace("DATABASE_URL"),
	}

	if raw := stringsTrimSpace("REALTIME_MODALITIES"); raw != "" {
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				cfg.Modalities = append(cfg.Modalities, m)
			}
		}
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	if raw := stringsTrimSpace("REALTIME_TEMPERATURE"); raw != "" {
		cfg.Temperature, err = floatFromEnv("REALTIME_TEMPERATURE", 0)
		if err != nil {
			return Config{}, err
		}
		cfg.TemperatureSet = true
	}
	cfg.VADThreshold, err = floatFromEnv("REALTIME_VAD_THRESHOLD", 0.5)
	if err != nil {
		return Config{}, err
	}
	cfg.VADPrefixMs, err = intFromEnv("REALTIME_VAD_PREFIX_MS", 300)
	if err != nil {
		return Config{}, err
	}
	cfg.VADSilenceMs, err = intFromEnv("REALTIME_VAD_SILENCE_MS", 500)
	if err != nil {
		return Config{}, err
	}
	cfg.VADCreateResponse, err = boolFromEnv("REALTIME_VAD_CREATE_RESPONSE", true)
	if err != nil {
		return Config{}, err
	}
	cfg.InputSampleRate, err = intFromEnv("REALTIME_INPUT_SAMPLE_RATE", 0)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenExpirySeconds, err = intFromEnv("REALTIME_TOKEN_EXPIRY_SECONDS", realtime.DefaultExpirySec)
	if err != nil {
		return Config{}, err
	}
	cfg.ControlToleranceSecs, err = intFromEnv("REALTIME_CONTROL_TOLERANCE_SECONDS", 300)
	if err != nil {
		return Config{}, err
	}

	if cfg.TemperatureSet && (cfg.Temperature < 0 || cfg.Temperature > 2) {
		return Config{}, fmt.Errorf("REALTIME_TEMPERATURE must be in [0, 2]")
	}
	if cfg.VADThreshold < 0 || cfg.VADThreshold > 1 {
		return Config{}, fmt.Errorf("REALTIME_VAD_THRESHOLD must be in [0, 1]")
	}
	if cfg.VADPrefixMs < 0 || cfg.VADPrefixMs > 2000 {
		return Config{}, fmt.Errorf("REALTIME_VAD_PREFIX_MS must be in [0, 2000]")
	}
	if cfg.VADSilenceMs < 50 || cfg.VADSilenceMs > 5000 {
		return Config{}, fmt.Errorf("REALTIME_VAD_SILENCE_MS must be in [50, 5000]")
	}
	if err := realtime.ValidateExpirySeconds(cfg.TokenExpirySeconds); err != nil {
		return Config{}, fmt.Errorf("REALTIME_TOKEN_EXPIRY_SECONDS: %w", err)
	}
	if cfg.ControlToleranceSecs <= 0 {
		return Config{}, fmt.Errorf("REALTIME_CONTROL_TOLERANCE_SECONDS must be positive")
	}

	return cfg, nil
}

// BridgeURL is the externally reachable WebSocket URL of the bridge,
// preferring the explicit override, then the public base URL.
func (c Config) BridgeURL() string {
	if c.ExternalBridgeURL != "" {
		return c.ExternalBridgeURL
	}
	if c.PublicBaseURL != "" {
		base := strings.Replace(c.PublicBaseURL, "https://", "wss://", 1)
		base = strings.Replace(base, "http://", "ws://", 1)
		return base + "/stream/twilio"
	}
	return ""
}

// SessionDefaults builds the environment layer of the control-plane
// configuration.
func (c Config) SessionDefaults() *realtime.SessionConfig {
	sc := &realtime.SessionConfig{
		Model:           c.Model,
		Instructions:    c.Instructions,
		Voice:           c.Voice,
		Modalities:      c.Modalities,
		InputSampleRate: c.InputSampleRate,
		MaxOutputTokens: c.MaxOutputTokens,
		NoiseReduction:  c.NoiseReduction,
	}
	if c.Instructions == "" && c.PromptID != "" {
		sc.Prompt = &realtime.PromptRef{ID: c.PromptID, Version: c.PromptVersion}
	}
	if c.TemperatureSet {
		t := c.Temperature
		sc.Temperature = &t
	}
	switch c.TurnDetectionMode {
	case realtime.TurnDetectionOff, "off":
		sc.TurnDetection = &realtime.TurnDetection{Type: realtime.TurnDetectionOff}
	default:
		createResponse := c.VADCreateResponse
		sc.TurnDetection = &realtime.TurnDetection{
			Type:              realtime.TurnDetectionServerVAD,
			Threshold:         c.VADThreshold,
			PrefixPaddingMs:   c.VADPrefixMs,
			SilenceDurationMs: c.VADSilenceMs,
			CreateResponse:    &createResponse,
		}
	}
	if c.TranscriptionModel != "" {
		sc.Transcription = &realtime.Transcription{
			Model:    c.TranscriptionModel,
			Language: c.TranscriptionLang,
			Prompt:   c.TranscriptionPrompt,
		}
	}
	return sc
}

// EnvCheckItem is one row of the /env-check matrix.
type EnvCheckItem struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Set      bool   `json:"set"`
}

// EnvCheck reports which recognized variables are present, without
// exposing values.
func (c Config) EnvCheck() []EnvCheckItem {
	return []EnvCheckItem{
		{"OPENAI_API_KEY", true, c.OpenAIAPIKey != ""},
		{"TWILIO_ACCOUNT_SID", false, c.TwilioAccountSid != ""},
		{"TWILIO_AUTH_TOKEN", false, c.TwilioAuthToken != ""},
		{"TWILIO_FROM_NUMBER", false, c.TwilioFromNumber != ""},
		{"PUBLIC_BASE_URL", false, c.PublicBaseURL != ""},
		{"EXTERNAL_BRIDGE_URL", false, c.ExternalBridgeURL != ""},
		{"REALTIME_INSTRUCTIONS", false, c.Instructions != ""},
		{"REALTIME_PROMPT_ID", false, c.PromptID != ""},
		{"REALTIME_CONTROL_SECRET", false, c.ControlSecret != ""},
		{"REALTIME_CONTROL_SIGNING_SECRET", false, c.ControlSigningSecret != ""},
		{"REALTIME_CONTROL_ADMIN_SECRET", false, c.ControlAdminSecret != ""},
		{"TOKEN_SERVER_SECRET", false, c.TokenServerSecret != ""},
		{"REDIS_URL", false, c.RedisURL != ""},
		{"DATABASE_URL", false, c.DatabaseURL != ""},
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
