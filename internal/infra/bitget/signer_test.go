package bitget

import (
	"strconv"
	"testing"
)

func TestSignerHeaders(t *testing.T) {
	s := NewSigner("key-1", "secret-1", "pass-1")

	h := s.Headers("POST", "/api/v2/spot/trade/place-order", "", `{"symbol":"BTCUSDT"}`)

	if h["ACCESS-KEY"] != "key-1" {
		t.Errorf("ACCESS-KEY = %q, want key-1", h["ACCESS-KEY"])
	}
	if h["ACCESS-PASSPHRASE"] != "pass-1" {
		t.Errorf("ACCESS-PASSPHRASE = %q, want pass-1", h["ACCESS-PASSPHRASE"])
	}
	if h["ACCESS-SIGN"] == "" {
		t.Error("ACCESS-SIGN must not be empty")
	}
	if _, err := strconv.ParseInt(h["ACCESS-TIMESTAMP"], 10, 64); err != nil {
		t.Errorf("ACCESS-TIMESTAMP %q is not a unix timestamp", h["ACCESS-TIMESTAMP"])
	}
}

func TestSignPayloadDeterministic(t *testing.T) {
	s := NewSigner("k", "secret", "p")

	payload := "1700000000000GET/api/v2/spot/account/assets"
	first := s.signPayload(payload)
	second := s.signPayload(payload)
	if first != second {
		t.Error("same payload must produce the same signature")
	}
	if first == s.signPayload(payload+"x") {
		t.Error("different payloads must produce different signatures")
	}

	other := NewSigner("k", "other-secret", "p")
	if first == other.signPayload(payload) {
		t.Error("different secrets must produce different signatures")
	}
}

func TestSignPayloadIncludesQuery(t *testing.T) {
	s := NewSigner("k", "secret", "p")

	withQuery := s.Headers("GET", "/api/v2/spot/trade/orderInfo", "orderId=1", "")
	without := s.Headers("GET", "/api/v2/spot/trade/orderInfo", "", "")
	if withQuery["ACCESS-SIGN"] == without["ACCESS-SIGN"] &&
		withQuery["ACCESS-TIMESTAMP"] == without["ACCESS-TIMESTAMP"] {
		t.Error("query string must be part of the signed payload")
	}
}
