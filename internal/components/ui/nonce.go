package ui

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
)

// Nonce returns the form token binding action to the session.
func Nonce(sessionToken, action string) string {
	mac := hmac.New(sha256.New, []byte(sessionToken))
	mac.Write([]byte(action))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))[:24]
}

// VerifyNonce reports whether nonce was issued for the session and action.
func VerifyNonce(nonce, sessionToken, action string) bool {
	if nonce == "" || sessionToken == "" {
		return false
	}
	return hmac.Equal([]byte(nonce), []byte(Nonce(sessionToken, action)))
}
