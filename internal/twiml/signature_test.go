package twiml

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"testing"
)

func carrierSign(authToken, fullURL string, form url.Values) string {
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range form[k] {
			mac.Write([]byte(k + v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyCarrierSignature(t *testing.T) {
	token := "twilio-auth-token"
	fullURL := "https://host/twiml?mode=stream"
	form := url.Values{
		"CallSid": {"CA1"},
		"From":    {"+15551231234"},
	}
	sig := carrierSign(token, fullURL, form)

	if !VerifyCarrierSignature(token, fullURL, form, sig) {
		t.Fatalf("valid signature rejected")
	}
	if VerifyCarrierSignature(token, fullURL+"&x=1", form, sig) {
		t.Fatalf("signature accepted for different URL")
	}
	tampered := url.Values{"CallSid": {"CA2"}, "From": {"+15551231234"}}
	if VerifyCarrierSignature(token, fullURL, tampered, sig) {
		t.Fatalf("signature accepted for tampered form")
	}
	if VerifyCarrierSignature("other-token", fullURL, form, sig) {
		t.Fatalf("signature accepted with wrong token")
	}
	if VerifyCarrierSignature(token, fullURL, form, "!!not-base64!!") {
		t.Fatalf("undecodable signature accepted")
	}
	if VerifyCarrierSignature("", fullURL, form, sig) {
		t.Fatalf("verification should fail closed without a token")
	}
}

func TestVerifyCarrierSignatureGETNoForm(t *testing.T) {
	token := "twilio-auth-token"
	fullURL := "https://host/twiml?mode=sip"
	sig := carrierSign(token, fullURL, nil)
	if !VerifyCarrierSignature(token, fullURL, nil, sig) {
		t.Fatalf("valid GET signature rejected")
	}
}
