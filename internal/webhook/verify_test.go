package webhook

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerify_AcceptsValidSignature(t *testing.T) {
	secret := []byte("shhh-shared-secret")
	body := []byte(`{"id":123,"token":"abc","line_items":[]}`)

	sig := Sign(body, secret)
	assert.True(t, Verify(body, secret, sig))
}

func TestVerify_IsDeterministic(t *testing.T) {
	secret := []byte("shhh-shared-secret")
	body := []byte(`{"id":123}`)
	sig := Sign(body, secret)

	for i := 0; i < 10; i++ {
		assert.True(t, Verify(body, secret, sig))
	}
}

func TestVerify_RejectsTamperedBody(t *testing.T) {
	secret := []byte("shhh-shared-secret")
	body := []byte(`{"id":123,"token":"abc"}`)
	sig := Sign(body, secret)

	tampered := []byte(`{"id":124,"token":"abc"}`)
	assert.False(t, Verify(tampered, secret, sig))
}

func TestVerify_WhitespaceOnlyChangeInvalidates(t *testing.T) {
	secret := []byte("shhh-shared-secret")
	body := []byte(`{"id":123,"token":"abc"}`)
	sig := Sign(body, secret)

	// Same JSON semantics, different bytes.
	respaced := []byte(`{"id": 123, "token": "abc"}`)
	assert.False(t, Verify(respaced, secret, sig))
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	body := []byte(`{"id":123}`)
	sig := Sign(body, []byte("secret-a"))
	assert.False(t, Verify(body, []byte("secret-b"), sig))
}

func TestVerify_RejectsGarbageSignature(t *testing.T) {
	assert.False(t, Verify([]byte(`{}`), []byte("secret"), "not-base64-at-all"))
	assert.False(t, Verify([]byte(`{}`), []byte("secret"), ""))
}

func TestDeliveryHeaders_AllPresent(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderSignature, "c2ln")
	h.Set(HeaderTopic, "carts/update")
	h.Set(HeaderShopDomain, "example.myshopify.com")

	d, ok := DeliveryHeaders(h)
	require.True(t, ok)
	assert.Equal(t, "c2ln", d.Signature)
	assert.Equal(t, "carts/update", d.Topic)
	assert.Equal(t, "example.myshopify.com", d.Shop)
}

func TestDeliveryHeaders_MissingAnyHeaderFails(t *testing.T) {
	full := map[string]string{
		HeaderSignature:  "c2ln",
		HeaderTopic:      "carts/update",
		HeaderShopDomain: "example.myshopify.com",
	}

	for omit := range full {
		h := http.Header{}
		for k, v := range full {
			if k != omit {
				h.Set(k, v)
			}
		}
		_, ok := DeliveryHeaders(h)
		assert.False(t, ok, "expected failure when %s is missing", omit)
	}
}
