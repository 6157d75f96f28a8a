package twiml

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

// VerifyCarrierSignature checks the carrier's request signature: base64 of
// HMAC-SHA1 keyed by the account auth token over the full request URL
// concatenated with the sorted form parameters (name then value, no
// separators). GET requests have no form parameters; the URL alone is
// signed.
func VerifyCarrierSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(fullURL))

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range form[k] {
			mac.Write([]byte(k))
			mac.Write([]byte(v))
		}
	}

	expected := mac.Sum(nil)
	provided, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(provided, expected)
}
