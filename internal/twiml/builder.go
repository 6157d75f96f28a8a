// Package twiml builds the call-control XML document the carrier fetches
// on call setup, and verifies the carrier's request signatures.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
)

// Mode selects the document shape.
type Mode string

const (
	ModeSIP    Mode = "sip"
	ModeStream Mode = "stream"
	ModeSimple Mode = "simple"
)

const xmlPrologue = `<?xml version="1.0" encoding="UTF-8"?>`

// ParseMode normalizes a user-supplied mode string, falling back to def
// and finally to sip.
func ParseMode(raw string, def Mode) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeSIP:
		return ModeSIP
	case ModeStream:
		return ModeStream
	case ModeSimple:
		return ModeSimple
	}
	switch def {
	case ModeSIP, ModeStream, ModeSimple:
		return def
	}
	return ModeSIP
}

// Builder renders control documents against fixed deployment endpoints.
type Builder struct {
	// BridgeURL is the public WebSocket URL of the bridge, without a
	// trailing slash, e.g. wss://host/stream/twilio.
	BridgeURL string
	// SIPGateway is the model's SIP host, e.g. sip.api.openai.com.
	SIPGateway string
	// SimpleMessage is spoken in simple mode.
	SimpleMessage string
}

// SIPOptions tune the sip-mode dial target. Zero values mean defaults:
// sip scheme, tls transport, port 5061.
type SIPOptions struct {
	Scheme    string
	Transport string
	Port      int
}

// esc XML-escapes user-supplied text for both attribute and element use.
func esc(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	// EscapeText leaves double quotes alone; attributes need them escaped.
	return strings.ReplaceAll(buf.String(), `"`, "&#34;")
}

// StreamDocument directs the carrier to open the bridge WebSocket. The
// credential rides in a path segment; some carriers strip query strings.
// The Pause keeps the call leg alive while the stream runs.
func (b *Builder) StreamDocument(credential string) string {
	streamURL := strings.TrimSuffix(b.BridgeURL, "/")
	if credential != "" {
		streamURL += "/" + url.PathEscape(credential)
	}
	return fmt.Sprintf(
		`%s<Response><Start><Stream url="%s"/></Start><Pause length="60"/></Response>`,
		xmlPrologue, esc(streamURL),
	)
}

// SIPDocument directs the carrier to bridge the call to the model's SIP
// gateway, authenticating with the credential in the user part.
func (b *Builder) SIPDocument(credential string, opts SIPOptions) string {
	scheme := strings.ToLower(opts.Scheme)
	if scheme != "sips" {
		scheme = "sip"
	}
	transport := strings.ToLower(opts.Transport)
	switch transport {
	case "tls", "tcp", "udp":
	default:
		transport = "tls"
	}
	port := opts.Port
	if port < 1 || port > 65535 {
		port = 5061
	}

	uri := fmt.Sprintf("%s:%s@%s:%d", scheme, credential, b.SIPGateway, port)
	// sips implies TLS; adding the parameter is redundant and some
	// gateways reject it.
	if scheme != "sips" {
		uri += ";transport=" + transport
	}
	return fmt.Sprintf(`%s<Response><Dial><Sip>%s</Sip></Dial></Response>`, xmlPrologue, esc(uri))
}

// SimpleDocument speaks a static message without bridging anywhere.
func (b *Builder) SimpleDocument() string {
	msg := b.SimpleMessage
	if msg == "" {
		msg = "Hello. This line is configured but the voice bridge is not reachable."
	}
	return SpokenMessage(msg)
}

// SpokenMessage wraps text in a Say response, used for simple mode and
// spoken error paths.
func SpokenMessage(text string) string {
	return fmt.Sprintf(`%s<Response><Say>%s</Say></Response>`, xmlPrologue, esc(text))
}

// SpokenError is the fail-closed document for mint or configuration
// failures: the caller hears something instead of dead air.
func SpokenError() string {
	return SpokenMessage("We are unable to connect your call right now. Please try again later.")
}

// Forbidden is returned with a 403 when signature verification fails.
func Forbidden() string {
	return SpokenMessage("Forbidden")
}

// HangupDocument ends the call politely, used by the action callback when
// there is nothing to fall back to.
func HangupDocument(text string) string {
	if text == "" {
		return fmt.Sprintf(`%s<Response><Hangup/></Response>`, xmlPrologue)
	}
	return fmt.Sprintf(`%s<Response><Say>%s</Say><Hangup/></Response>`, xmlPrologue, esc(text))
}
