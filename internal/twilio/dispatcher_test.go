package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestValidE164(t *testing.T) {
	accept := []string{"+15551231234", "+442071838750", "+12", "+861234567890123"}
	for _, num := range accept {
		if !ValidE164(num) {
			t.Fatalf("ValidE164(%q) = false, want true", num)
		}
	}
	reject := []string{"555-123", "15551231234", "+05551231234", "+1555123123456789", "+", "", "+1 555 123 1234"}
	for _, num := range reject {
		if ValidE164(num) {
			t.Fatalf("ValidE164(%q) = true, want false", num)
		}
	}
}

func TestPlaceFormAndAuth(t *testing.T) {
	var captured url.Values
	var user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		r.ParseForm()
		captured = r.PostForm
		if r.URL.Path != "/2010-04-01/Accounts/AC123/Calls.json" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA777","status":"queued"}`))
	}))
	defer srv.Close()

	d := NewDispatcher("AC123", "tok", WithAPIBase(srv.URL))
	sid, err := d.Place(context.Background(), PlaceRequest{
		To:                "+15551231234",
		From:              "+15550001111",
		ControlDocURL:     "https://host/twiml?mode=stream",
		Record:            true,
		StatusCallbackURL: "https://host/calls/status",
	})
	if err != nil {
		t.Fatalf("Place() error = %v", err)
	}
	if sid != "CA777" {
		t.Fatalf("sid = %q", sid)
	}
	if user != "AC123" || pass != "tok" {
		t.Fatalf("basic auth = %q:%q", user, pass)
	}
	if captured.Get("To") != "+15551231234" || captured.Get("Url") != "https://host/twiml?mode=stream" {
		t.Fatalf("form = %v", captured)
	}
	if captured.Get("Record") != "true" || captured.Get("RecordingChannels") != "dual" {
		t.Fatalf("recording params = %v", captured)
	}
	events := captured["StatusCallbackEvent"]
	if len(events) != 4 || events[0] != "initiated" || events[3] != "completed" {
		t.Fatalf("StatusCallbackEvent = %v", events)
	}
}

func TestPlaceRejectsInvalidNumbersWithoutCalling(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	d := NewDispatcher("AC123", "tok", WithAPIBase(srv.URL))
	_, err := d.Place(context.Background(), PlaceRequest{
		To:            "555-123",
		From:          "+15550001111",
		ControlDocURL: "https://host/twiml",
	})
	if !errors.Is(err, ErrInvalidNumber) {
		t.Fatalf("Place() error = %v, want ErrInvalidNumber", err)
	}
	if called {
		t.Fatalf("api should not be called for invalid input")
	}

	_, err = d.Place(context.Background(), PlaceRequest{To: "+15551231234", From: "+15550001111"})
	if !errors.Is(err, ErrMissingDocument) {
		t.Fatalf("Place() error = %v, want ErrMissingDocument", err)
	}
}

func TestPlaceSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"Invalid 'To' Phone Number"}`))
	}))
	defer srv.Close()

	d := NewDispatcher("AC123", "tok", WithAPIBase(srv.URL))
	_, err := d.Place(context.Background(), PlaceRequest{
		To:            "+15551231234",
		From:          "+15550001111",
		ControlDocURL: "https://host/twiml",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != 400 || apiErr.Code != 21211 {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}
