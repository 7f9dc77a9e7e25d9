package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
	handshakeMode   = "subscribe"
)

var (
	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")
	ErrMissingSecret    = errors.New("gateway: webhook secret not configured")
	ErrHandshakeFailed  = errors.New("gateway: webhook handshake failed")
)

// Sign computes the header value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the HMAC-SHA256 of the raw body with the
// "sha256=<hex>" header in constant time.
func VerifySignature(body []byte, header, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}

	if !strings.HasPrefix(header, signaturePrefix) {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrInvalidSignature
	}

	return nil
}

// VerifyHandshake returns challenge when mode is "subscribe" and token matches
// verifyToken.
func VerifyHandshake(mode, token, challenge, verifyToken string) (string, error) {
	if mode != handshakeMode || verifyToken == "" ||
		!hmac.Equal([]byte(token), []byte(verifyToken)) {
		return "", ErrHandshakeFailed
	}

	return challenge, nil
}
