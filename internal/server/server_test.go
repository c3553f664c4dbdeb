package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/nacl/sign"

	"github.com/dukerupert/repeatbot/internal/middleware"
)

type fakeGateway bool

func (g fakeGateway) Connected() bool { return bool(g) }

func newTestServer(t *testing.T, gateway GatewayStatus) (*httptest.Server, *[64]byte) {
	t.Helper()
	pub, priv, err := sign.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key := middleware.PublicKey(*pub)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"}))

	s := New(Config{
		Interactions: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			w.Write(b)
		}),
		PublicKey:        &key,
		InteractionRate:  1,
		InteractionBurst: 2,
		Gateway:          gateway,
		Gatherer:         reg,
	}, slog.Default())

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return srv, priv
}

func signedRequest(t *testing.T, url string, priv *[64]byte, body string) *http.Request {
	t.Helper()
	ts := "1700000000"
	signed := sign.Sign(nil, []byte(ts+body), priv)
	req, err := http.NewRequest("POST", url+"/interactions", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(signed[:sign.Overhead]))
	req.Header.Set("X-Signature-Timestamp", ts)
	return req
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		gateway    GatewayStatus
		wantStatus int
		wantBody   string
	}{
		{"connected", fakeGateway(true), http.StatusOK, "ok"},
		{"disconnected", fakeGateway(false), http.StatusServiceUnavailable, "gateway disconnected"},
		{"no gateway", nil, http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.gateway)
			resp, err := http.Get(srv.URL + "/health")
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body map[string]string
			json.NewDecoder(resp.Body).Decode(&body)
			if body["status"] != tt.wantBody {
				t.Errorf("body status = %q, want %q", body["status"], tt.wantBody)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "test_total 0") {
		t.Errorf("metrics output missing test_total:\n%s", b)
	}
}

func TestInteractionsRoute(t *testing.T) {
	srv, priv := newTestServer(t, nil)

	resp, err := http.DefaultClient.Do(signedRequest(t, srv.URL, priv, `{"type":1}`))
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(b) != `{"type":1}` {
		t.Errorf("signed request: status %d body %q", resp.StatusCode, b)
	}

	resp, err = http.Post(srv.URL+"/interactions", "application/json", strings.NewReader(`{"type":1}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unsigned request: status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	resp, err = http.Get(srv.URL + "/interactions")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /interactions: status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

func TestInteractionsRateLimited(t *testing.T) {
	srv, priv := newTestServer(t, nil)

	var last int
	for i := 0; i < 3; i++ {
		resp, err := http.DefaultClient.Do(signedRequest(t, srv.URL, priv, `{"type":1}`))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		last = resp.StatusCode
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want %d", last, http.StatusTooManyRequests)
	}
}

func TestInteractionsDisabledWithoutKey(t *testing.T) {
	s := New(Config{
		Interactions:     http.NotFoundHandler(),
		InteractionRate:  1,
		InteractionBurst: 1,
	}, slog.Default())

	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest("POST", "/interactions", strings.NewReader("{}")))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRunCleanupStopsOnCancel(t *testing.T) {
	s := New(Config{InteractionRate: 1, InteractionBurst: 1}, slog.Default())
	s.rateLimiter.Allow("1.2.3.4")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunCleanup did not return after cancel")
	}
}
