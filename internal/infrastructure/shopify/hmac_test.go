package shopify

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyQuery(t *testing.T) {
	t.Parallel()

	v := NewVerifier("hush")
	q := url.Values{}
	q.Set("code", "0907a61c0c8d55e99db179b68161bc00")
	q.Set("shop", "demo.myshopify.com")
	q.Set("state", "abc")
	q.Set("timestamp", "1337178173")
	q.Set("hmac", v.SignQuery(q))

	assert.True(t, v.VerifyQuery(q))

	tampered := url.Values{}
	for k, vals := range q {
		tampered[k] = vals
	}
	tampered.Set("shop", "evil.myshopify.com")
	assert.False(t, v.VerifyQuery(tampered))

	q.Del("hmac")
	assert.False(t, v.VerifyQuery(q))
}

func TestVerifyWebhook(t *testing.T) {
	t.Parallel()

	v := NewVerifier("hush")
	body := []byte(`{"id":1,"domain":"demo.myshopify.com"}`)

	assert.True(t, v.VerifyWebhook(body, v.SignWebhook(body)))
	assert.False(t, v.VerifyWebhook(body, NewVerifier("other").SignWebhook(body)))
	assert.False(t, v.VerifyWebhook(body, ""))
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	rc := DefaultRetryConfig()
	assert.Equal(t, rc.InitialBackoff, rc.backoff(0))
	assert.Equal(t, 2*rc.InitialBackoff, rc.backoff(1))
	assert.Equal(t, rc.MaxBackoff, rc.backoff(10))
}
