// Package bitget adapts the Bitget V2 spot API to the exchange
// interface: REST for trading calls, a websocket worker for a cached
// ticker feed.
package bitget

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer produces the authentication headers Bitget V2 requires on
// private endpoints.
type Signer struct {
	key        string
	secret     string
	passphrase string
}

func NewSigner(key, secret, passphrase string) *Signer {
	return &Signer{key: key, secret: secret, passphrase: passphrase}
}

// Headers signs one request. The payload is
// timestamp + method + path[?query] + body, with the timestamp in unix
// milliseconds.
func (s *Signer) Headers(method, path, query, body string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)

	fullPath := path
	if query != "" {
		fullPath = path + "?" + query
	}

	return map[string]string{
		"ACCESS-KEY":        s.key,
		"ACCESS-SIGN":       s.signPayload(timestamp + method + fullPath + body),
		"ACCESS-TIMESTAMP":  timestamp,
		"ACCESS-PASSPHRASE": s.passphrase,
		"Content-Type":      "application/json",
		"locale":            "en-US",
	}
}

func (s *Signer) signPayload(payload string) string {
	h := hmac.New(sha256.New, []byte(s.secret))
	h.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
