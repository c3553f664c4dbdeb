package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/crypto/nacl/sign"
)

func testKeys(t *testing.T) (PublicKey, *[64]byte) {
	t.Helper()
	pub, priv, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return PublicKey(*pub), priv
}

func signRequest(priv *[64]byte, timestamp, body string) string {
	signed := sign.Sign(nil, []byte(timestamp+body), priv)
	return hex.EncodeToString(signed[:sign.Overhead])
}

func TestParsePublicKey(t *testing.T) {
	pub, _ := testKeys(t)
	got, err := ParsePublicKey(hex.EncodeToString(pub[:]))
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if got != pub {
		t.Error("parsed key does not match")
	}

	if _, err := ParsePublicKey("zz"); err == nil {
		t.Error("expected error for non-hex key")
	}
	if _, err := ParsePublicKey("abcd"); err == nil {
		t.Error("expected error for short key")
	}
}

func TestVerifySignatureValid(t *testing.T) {
	pub, priv := testKeys(t)
	body := `{"type":1}`

	var gotBody string
	handler := VerifySignature(pub)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/interactions", strings.NewReader(body))
	req.Header.Set(signatureHeader, signRequest(priv, "1700000000", body))
	req.Header.Set(timestampHeader, "1700000000")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotBody != body {
		t.Errorf("body seen by handler = %q, want %q", gotBody, body)
	}
}

func TestVerifySignatureRejects(t *testing.T) {
	pub, priv := testKeys(t)
	_, otherPriv := testKeys(t)
	body := `{"type":1}`

	tests := []struct {
		name      string
		signature string
		timestamp string
		body      string
	}{
		{"missing headers", "", "", body},
		{"bad hex", "not-hex", "1700000000", body},
		{"short signature", "abcd", "1700000000", body},
		{"tampered body", signRequest(priv, "1700000000", body), "1700000000", `{"type":2}`},
		{"wrong timestamp", signRequest(priv, "1700000000", body), "1700000001", body},
		{"wrong key", signRequest(otherPriv, "1700000000", body), "1700000000", body},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := VerifySignature(pub)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("should not reach handler")
			}))

			req := httptest.NewRequest("POST", "/interactions", strings.NewReader(tt.body))
			if tt.signature != "" {
				req.Header.Set(signatureHeader, tt.signature)
			}
			if tt.timestamp != "" {
				req.Header.Set(timestampHeader, tt.timestamp)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}
