package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
)

// Header names used by carts/update deliveries.
const (
	HeaderSignature  = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderShopDomain = "X-Shopify-Shop-Domain"
)

// Delivery is the header triple every authentic delivery must carry.
type Delivery struct {
	Signature string
	Topic     string
	Shop      string
}

// DeliveryHeaders extracts the required headers. ok is false when any of the
// three is missing, which callers must treat as an authentication failure.
func DeliveryHeaders(h http.Header) (Delivery, bool) {
	d := Delivery{
		Signature: h.Get(HeaderSignature),
		Topic:     h.Get(HeaderTopic),
		Shop:      h.Get(HeaderShopDomain),
	}
	if d.Signature == "" || d.Topic == "" || d.Shop == "" {
		return Delivery{}, false
	}
	return d, true
}

// Verify checks that providedSig is the base64 HMAC-SHA256 of rawBody under
// secret.
//
// rawBody must be the body bytes exactly as received: re-serializing a parsed
// payload changes field order and whitespace and invalidates the signature.
// The comparison is constant-time to avoid leaking how many leading bytes of
// a guessed signature were correct.
func Verify(rawBody, secret []byte, providedSig string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(rawBody)
	computed := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(computed), []byte(providedSig))
}

// Sign computes the base64 HMAC-SHA256 of body under secret. Used when this
// service acts as a sender (tests, redelivery tooling).
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
