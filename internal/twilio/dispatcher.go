// Package twilio is a thin client for the carrier's REST API, used to
// place outbound calls that fetch our control document.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.twilio.com"

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

var (
	ErrInvalidNumber   = errors.New("phone number must be E.164, e.g. +15551231234")
	ErrMissingDocument = errors.New("control document url is required")
)

// ValidE164 reports whether s is a well-formed E.164 number.
func ValidE164(s string) bool {
	return e164Pattern.MatchString(s)
}

// APIError is a carrier REST failure with the upstream detail attached.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("carrier api: %s (status %d, code %d)", e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("carrier api: status %d", e.Status)
}

// StatusCallbackEvents is the lifecycle subscription requested when a
// status callback URL is configured.
var StatusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// PlaceRequest describes one outbound call.
type PlaceRequest struct {
	To                string
	From              string
	ControlDocURL     string
	Record            bool
	StatusCallbackURL string
}

// Dispatcher places calls against one carrier account.
type Dispatcher struct {
	accountSid string
	authToken  string
	apiBase    string
	client     *http.Client
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAPIBase overrides the REST base URL, primarily for tests.
func WithAPIBase(base string) DispatcherOption {
	return func(d *Dispatcher) { d.apiBase = strings.TrimSuffix(base, "/") }
}

func NewDispatcher(accountSid, authToken string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		accountSid: accountSid,
		authToken:  authToken,
		apiBase:    defaultAPIBase,
		client:     &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Place creates the call and returns the carrier's call id.
func (d *Dispatcher) Place(ctx context.Context, req PlaceRequest) (string, error) {
	if !ValidE164(req.To) {
		return "", fmt.Errorf("%w: to=%q", ErrInvalidNumber, req.To)
	}
	if !ValidE164(req.From) {
		return "", fmt.Errorf("%w: from=%q", ErrInvalidNumber, req.From)
	}
	if strings.TrimSpace(req.ControlDocURL) == "" {
		return "", ErrMissingDocument
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Url", req.ControlDocURL)
	if req.Record {
		form.Set("Record", "true")
		form.Set("RecordingChannels", "dual")
	}
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		form.Set("StatusCallbackMethod", "POST")
		for _, evt := range StatusCallbackEvents {
			form.Add("StatusCallbackEvent", evt)
		}
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", d.apiBase, d.accountSid)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("place call: %w", err)
	}
	httpReq.SetBasicAuth(d.accountSid, d.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("place call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("place call: read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var detail struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &detail) == nil {
			apiErr.Code = detail.Code
			apiErr.Message = detail.Message
		}
		return "", apiErr
	}

	var created struct {
		Sid string `json:"sid"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.Sid == "" {
		return "", fmt.Errorf("place call: response missing call sid")
	}
	return created.Sid, nil
}
