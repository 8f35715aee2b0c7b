package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
)

const SignatureHeader = "X-Twilio-Signature"

// Signature computes the X-Twilio-Signature value: base64(HMAC-SHA1(authToken, url + sorted key/value pairs)).
// Ref: https://www.twilio.com/docs/usage/security#validating-requests
func Signature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte(fullURL)
	for _, k := range keys {
		for _, v := range params[k] {
			buf = append(buf, k...)
			buf = append(buf, v...)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write(buf)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func ValidSignature(authToken, fullURL string, params url.Values, signature string) bool {
	if signature == "" {
		return false
	}
	want := Signature(authToken, fullURL, params)
	return hmac.Equal([]byte(want), []byte(signature))
}
