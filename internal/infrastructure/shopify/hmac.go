package shopify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// Verifier checks Shopify request signatures with the app secret
type Verifier struct {
	secret []byte
}

func NewVerifier(apiSecret string) *Verifier {
	return &Verifier{secret: []byte(apiSecret)}
}

// VerifyQuery checks the hmac parameter of an OAuth redirect. The message is
// every other parameter, sorted by key, joined as k=v with '&'.
func (v *Verifier) VerifyQuery(query url.Values) bool {
	received := query.Get("hmac")
	if received == "" || len(v.secret) == 0 {
		return false
	}

	expected := v.SignQuery(query)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(received)))
}

// VerifyWebhook checks the X-Shopify-Hmac-Sha256 header against the raw body
func (v *Verifier) VerifyWebhook(body []byte, signature string) bool {
	if signature == "" || len(v.secret) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignQuery returns the hmac Shopify would attach to query. Used by tests and tooling.
func (v *Verifier) SignQuery(query url.Values) string {
	q := url.Values{}
	for k, vals := range query {
		if k == "hmac" || k == "signature" {
			continue
		}
		q[k] = vals
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strings.Join(q[k], ","))
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(parts, "&")))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignWebhook returns the base64 signature for body
func (v *Verifier) SignWebhook(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
