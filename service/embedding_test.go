package service

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/persona/core"
	"github.com/rushteam/persona/pkg/logging"
)

func newTestClient(t *testing.T, url string, mutate func(*EmbeddingConfig)) *EmbeddingClient {
	t.Helper()
	cfg := DefaultEmbeddingConfig()
	cfg.Endpoint = url
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewEmbeddingClient(cfg, WithEmbeddingLogger(logging.NewTestLogger(io.Discard)))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestEmbeddingClient_Contract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Texts) != 1 || req.Texts[0] != "hello" {
			t.Errorf("texts = %v, want [hello]", req.Texts)
		}
		_, _ = w.Write([]byte(`{"embeddings": [[0.1, 0.2, 0.3], [9, 9, 9]]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *EmbeddingConfig) {
		cfg.Auth = AuthConfig{Type: "bearer", Token: "secret"}
	})
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 || vec[2] != 0.3 {
		t.Errorf("Embed() = %v, want embeddings[0]", vec)
	}
}

func TestEmbeddingClient_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"non-2xx", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}},
		{"empty list", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings": []}`))
		}},
		{"empty vector", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"embeddings": [[]]}`))
		}},
		{"malformed", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newTestClient(t, srv.URL, nil).Embed(context.Background(), "x")
			if !errors.Is(err, core.ErrEmbeddingUnavailable) || !core.IsUnavailable(err) {
				t.Errorf("Embed() error = %v, want embedding unavailable", err)
			}
		})
	}
}

func TestEmbeddingClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(t, srv.URL, func(cfg *EmbeddingConfig) {
		cfg.ShortTimeout = 50 * time.Millisecond
		cfg.LongTimeout = 100 * time.Millisecond
	})
	start := time.Now()
	_, err := c.Embed(context.Background(), "slow")
	if !errors.Is(err, core.ErrEmbeddingUnavailable) {
		t.Fatalf("Embed() error = %v, want embedding unavailable", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Embed() took %v, timeout not applied", elapsed)
	}
}

func TestEmbeddingClient_TimeoutFor(t *testing.T) {
	c := newTestClient(t, "http://unused", nil)
	if got := c.TimeoutFor("short title"); got != 30*time.Second {
		t.Errorf("TimeoutFor(short) = %v, want 30s", got)
	}
	if got := c.TimeoutFor(strings.Repeat("字", 513)); got != 60*time.Second {
		t.Errorf("TimeoutFor(513 runes) = %v, want 60s", got)
	}
	if got := c.TimeoutFor(strings.Repeat("字", 512)); got != 30*time.Second {
		t.Errorf("TimeoutFor(512 runes) = %v, want 30s", got)
	}
}

func TestEmbeddingClient_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, func(cfg *EmbeddingConfig) {
		cfg.Breaker.MinRequests = 2
		cfg.Breaker.Timeout = time.Hour
	})
	for i := 0; i < 5; i++ {
		_, _ = c.Embed(context.Background(), "x")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2 before the breaker opens", got)
	}
}

func TestNewEmbeddingClient_RequiresEndpoint(t *testing.T) {
	if _, err := NewEmbeddingClient(EmbeddingConfig{}); !core.IsInvalidInput(err) {
		t.Errorf("NewEmbeddingClient() error = %v, want invalid input", err)
	}
}
