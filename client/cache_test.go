package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pentedigital/extrashifty/credstore"
)

func TestWalletGet_ServedFromCache(t *testing.T) {
	var walletHits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/company/wallet", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&walletHits, 1)
		json.NewEncoder(w).Encode(Wallet{Balance: 20000, Reserved: 5000, Currency: "USD"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, server.URL, credstore.NewMemoryStore())

	for i := 0; i < 3; i++ {
		wallet, err := c.Wallet().Get(context.Background())
		if err != nil {
			t.Fatalf("Get() #%d error = %v", i, err)
		}
		if wallet.Available() != 15000 {
			t.Errorf("Available() = %d, want 15000", wallet.Available())
		}
	}

	if n := atomic.LoadInt32(&walletHits); n != 1 {
		t.Errorf("wallet endpoint hits = %d, want 1 (cached)", n)
	}
}

func TestTopUp_InvalidatesWalletCache(t *testing.T) {
	var balance int64 = 10000
	mux := http.NewServeMux()
	mux.HandleFunc("/company/wallet", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Wallet{Balance: atomic.LoadInt64(&balance), Currency: "USD"})
	})
	mux.HandleFunc("/company/wallet/topup", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Amount int64 `json:"amount"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(Wallet{Balance: atomic.AddInt64(&balance, req.Amount), Currency: "USD"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, server.URL, credstore.NewMemoryStore())
	ctx := context.Background()

	before, err := c.Wallet().Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if before.Balance != 10000 {
		t.Fatalf("Balance = %d, want 10000", before.Balance)
	}

	if _, err := c.Wallet().TopUp(ctx, 5000); err != nil {
		t.Fatalf("TopUp() error = %v", err)
	}

	after, err := c.Wallet().Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if after.Balance != 15000 {
		t.Errorf("Balance after top-up = %d, want 15000 (cache invalidated)", after.Balance)
	}
}

func TestQueryCache_Expiry(t *testing.T) {
	cache := newQueryCache(8, 20*time.Millisecond)
	cache.put("/company/invoices", []byte(`[]`))

	if _, ok := cache.get("/company/invoices"); !ok {
		t.Fatal("fresh entry should be cached")
	}

	time.Sleep(40 * time.Millisecond)
	if _, ok := cache.get("/company/invoices"); ok {
		t.Error("entry should expire after the TTL")
	}
}

func TestQueryCache_PrefixInvalidation(t *testing.T) {
	cache := newQueryCache(8, time.Minute)
	cache.put("/company/shifts", []byte(`[]`))
	cache.put("/company/shifts/s1/applicants", []byte(`[]`))
	cache.put("/company/wallet", []byte(`{}`))

	cache.invalidate("/company/shifts")

	if _, ok := cache.get("/company/shifts"); ok {
		t.Error("listing entry should be invalidated")
	}
	if _, ok := cache.get("/company/shifts/s1/applicants"); ok {
		t.Error("nested entry should be invalidated")
	}
	if _, ok := cache.get("/company/wallet"); !ok {
		t.Error("unrelated entry should survive")
	}
}
