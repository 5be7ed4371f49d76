package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pentedigital/extrashifty/credstore"
)

func newTestClient(t *testing.T, baseURL string, store credstore.Store, opts ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		BaseURL: baseURL,
		Store:   store,
		Timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func seedStore(t *testing.T, access, refresh string) credstore.Store {
	t.Helper()
	store := credstore.NewMemoryStore()
	if err := store.Save(credstore.Credentials{AccessToken: access, RefreshToken: refresh}); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func TestNew_RequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New() with empty base URL should fail")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c := newTestClient(t, "http://localhost:8080/", credstore.NewMemoryStore())
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
	}
}

func TestDo_AttachesBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, seedStore(t, "token-1", "refresh-1"))
	var out map[string]string
	if err := c.do(context.Background(), http.MethodGet, "/ping", nil, &out); err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if gotAuth != "Bearer token-1" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer token-1")
	}
}

func TestDo_NoAuthHeaderWithoutCredentials(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, credstore.NewMemoryStore())
	if err := c.do(context.Background(), http.MethodGet, "/ping", nil, nil); err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if gotAuth != "" {
		t.Errorf("Authorization = %q, want empty", gotAuth)
	}
}

func TestDo_NoContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, credstore.NewMemoryStore())
	out := map[string]string{"untouched": "yes"}
	if err := c.do(context.Background(), http.MethodDelete, "/thing", nil, &out); err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if out["untouched"] != "yes" {
		t.Error("204 response should leave out untouched")
	}
}

func TestDo_ErrorBodyParsing(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
	}{
		{"detail field", http.StatusBadRequest, `{"detail":"shift overlaps"}`, "shift overlaps"},
		{"message field", http.StatusConflict, `{"message":"already applied"}`, "already applied"},
		{"error field", http.StatusForbidden, `{"error":"companies only"}`, "companies only"},
		{"status text fallback", http.StatusInternalServerError, `not json`, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := newTestClient(t, server.URL, credstore.NewMemoryStore())
			err := c.do(context.Background(), http.MethodGet, "/x", nil, nil)

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("do() error = %v, want *APIError", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
		})
	}
}

func TestDo_PaymentRequired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"required_amount":15000,"available_amount":10000,"shortfall":5000}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, credstore.NewMemoryStore())
	err := c.do(context.Background(), http.MethodPost, "/reserve", nil, nil)

	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("do() error = %v, want ErrInsufficientFunds", err)
	}
	var fundsErr *InsufficientFundsError
	if !errors.As(err, &fundsErr) {
		t.Fatalf("do() error = %v, want *InsufficientFundsError", err)
	}
	if fundsErr.Required != 15000 || fundsErr.Available != 10000 || fundsErr.Shortfall != 5000 {
		t.Errorf("shortfall fields = %+v, want 15000/10000/5000", fundsErr)
	}
}

// Five concurrent requests observing a 401 at the same moment must share a
// single refresh call and all succeed with the refreshed token.
func TestDo_SingleFlightRefresh(t *testing.T) {
	const workers = 5

	var refreshCalls int32
	var mu sync.Mutex
	staleArrivals := 0
	release := make(chan struct{})

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		var req struct {
			RefreshToken string `json:"refresh_token"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "refresh-old" {
			t.Errorf("refresh_token = %q, want refresh-old", req.RefreshToken)
		}
		// Hold the refresh open so every 401 observer joins this flight.
		time.Sleep(100 * time.Millisecond)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "access-new",
			"refresh_token": "refresh-new",
		})
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer access-new" {
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
			return
		}
		// Gate the stale requests so they all observe the 401 together.
		mu.Lock()
		staleArrivals++
		if staleArrivals == workers {
			close(release)
		}
		mu.Unlock()
		<-release
		w.WriteHeader(http.StatusUnauthorized)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	store := seedStore(t, "access-old", "refresh-old")
	c := newTestClient(t, server.URL, store)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var out map[string]bool
			errs[i] = c.do(context.Background(), http.MethodGet, "/protected", nil, &out)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("request %d error = %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if creds.AccessToken != "access-new" || creds.RefreshToken != "refresh-new" {
		t.Errorf("stored credentials = %+v, want refreshed pair", creds)
	}
}

// A request retried once after a successful refresh that is rejected again
// must fail without triggering a second refresh.
func TestDo_NoSecondRefreshAfterRetry(t *testing.T) {
	var refreshCalls, protectedCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&refreshCalls, 1)
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "access-new",
			"refresh_token": "refresh-new",
		})
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&protectedCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, server.URL, seedStore(t, "access-old", "refresh-old"))
	err := c.do(context.Background(), http.MethodGet, "/protected", nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("do() error = %v, want 401 *APIError", err)
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&protectedCalls); n != 2 {
		t.Errorf("protected calls = %d, want 2 (original + one retry)", n)
	}
}

// A failed refresh clears both tokens, fires the session-expired hook once,
// and leaves subsequent requests unauthenticated.
func TestDo_RefreshFailureClearsCredentials(t *testing.T) {
	var laterAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid refresh token"}`))
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/later", func(w http.ResponseWriter, r *http.Request) {
		laterAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	var expiredCalls int32
	store := seedStore(t, "access-old", "refresh-old")
	c := newTestClient(t, server.URL, store, func(cfg *Config) {
		cfg.OnSessionExpired = func() { atomic.AddInt32(&expiredCalls, 1) }
	})

	err := c.do(context.Background(), http.MethodGet, "/protected", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("do() error = %v, want ErrSessionExpired", err)
	}

	if _, err := store.Load(); !errors.Is(err, credstore.ErrNoCredentials) {
		t.Errorf("Load() error = %v, want ErrNoCredentials after failed refresh", err)
	}
	if n := atomic.LoadInt32(&expiredCalls); n != 1 {
		t.Errorf("OnSessionExpired calls = %d, want 1", n)
	}

	if err := c.do(context.Background(), http.MethodGet, "/later", nil, nil); err != nil {
		t.Fatalf("follow-up do() error = %v", err)
	}
	if laterAuth != "" {
		t.Errorf("follow-up Authorization = %q, want empty", laterAuth)
	}
}

// An access token whose exp claim is inside the refresh buffer is refreshed
// before the request, so the backend never sees the stale token.
func TestDo_ProactiveRefresh(t *testing.T) {
	expiring := makeJWT(t, time.Now().Add(5*time.Second))

	var sawStale int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  "access-new",
			"refresh_token": "refresh-new",
		})
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-new" {
			atomic.AddInt32(&sawStale, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, server.URL, seedStore(t, expiring, "refresh-old"), func(cfg *Config) {
		cfg.RefreshBuffer = time.Minute
	})

	var out map[string]bool
	if err := c.do(context.Background(), http.MethodGet, "/protected", nil, &out); err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if n := atomic.LoadInt32(&sawStale); n != 0 {
		t.Errorf("backend saw the expiring token %d times, want 0", n)
	}
}

// A failed proactive refresh ends the call immediately: the stale token is
// never sent, the expiry hook fires once, and the store is cleared once.
func TestDo_ProactiveRefreshFailureFailsFast(t *testing.T) {
	expiring := makeJWT(t, time.Now().Add(5*time.Second))

	var protectedCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&protectedCalls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	var expiredCalls int32
	store := seedStore(t, expiring, "refresh-old")
	c := newTestClient(t, server.URL, store, func(cfg *Config) {
		cfg.RefreshBuffer = time.Minute
		cfg.OnSessionExpired = func() { atomic.AddInt32(&expiredCalls, 1) }
	})

	err := c.do(context.Background(), http.MethodGet, "/protected", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("do() error = %v, want ErrSessionExpired", err)
	}
	if n := atomic.LoadInt32(&expiredCalls); n != 1 {
		t.Errorf("OnSessionExpired calls = %d, want 1", n)
	}
	if n := atomic.LoadInt32(&protectedCalls); n != 0 {
		t.Errorf("protected calls = %d, want 0 (stale token must not be sent)", n)
	}
	if _, err := store.Load(); !errors.Is(err, credstore.ErrNoCredentials) {
		t.Errorf("Load() error = %v, want ErrNoCredentials", err)
	}
}

// A 401 while holding an access token but no refresh token is an expired
// session; the refresh endpoint is never called.
func TestDo_UnauthorizedWithoutRefreshToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		t.Error("refresh endpoint called without a refresh token")
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/protected", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	var expiredCalls int32
	store := seedStore(t, "access-only", "")
	c := newTestClient(t, server.URL, store, func(cfg *Config) {
		cfg.OnSessionExpired = func() { atomic.AddInt32(&expiredCalls, 1) }
	})

	err := c.do(context.Background(), http.MethodGet, "/protected", nil, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("do() error = %v, want ErrSessionExpired", err)
	}
	if n := atomic.LoadInt32(&expiredCalls); n != 1 {
		t.Errorf("OnSessionExpired calls = %d, want 1", n)
	}
}

// A 401 with no stored tokens at all, such as a rejected login, stays a
// plain API error.
func TestDo_AnonymousUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid credentials"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, credstore.NewMemoryStore())
	err := c.do(context.Background(), http.MethodPost, "/auth/login", nil, nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("do() error = %v, want 401 *APIError", err)
	}
	if errors.Is(err, ErrSessionExpired) {
		t.Error("anonymous 401 must not be classified as an expired session")
	}
}

func makeJWT(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
