package middleware

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/crypto/nacl/sign"
)

const (
	signatureHeader = "X-Signature-Ed25519"
	timestampHeader = "X-Signature-Timestamp"
	maxSignedBody   = 1 << 20
)

// PublicKey is an Ed25519 application public key.
type PublicKey [32]byte

// ParsePublicKey decodes the hex-encoded key shown in the developer portal.
func ParsePublicKey(s string) (PublicKey, error) {
	var key PublicKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != len(key) {
		return key, fmt.Errorf("public key is %d bytes, want %d", len(raw), len(key))
	}
	copy(key[:], raw)
	return key, nil
}

// Verify reports whether sig is a valid signature of timestamp+body.
func (k *PublicKey) Verify(sig, timestamp, body []byte) bool {
	if len(sig) != sign.Overhead {
		return false
	}
	signed := make([]byte, 0, len(sig)+len(timestamp)+len(body))
	signed = append(signed, sig...)
	signed = append(signed, timestamp...)
	signed = append(signed, body...)
	_, ok := sign.Open(nil, signed, (*[32]byte)(k))
	return ok
}

// VerifySignature rejects requests whose Ed25519 signature headers do not
// match the body. The body is restored for the next handler.
func VerifySignature(key PublicKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sig, err := hex.DecodeString(r.Header.Get(signatureHeader))
			timestamp := r.Header.Get(timestampHeader)
			if err != nil || len(sig) == 0 || timestamp == "" {
				http.Error(w, "invalid request signature", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody))
			if err != nil {
				http.Error(w, "read body", http.StatusBadRequest)
				return
			}

			if !key.Verify(sig, []byte(timestamp), body) {
				http.Error(w, "invalid request signature", http.StatusUnauthorized)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}
