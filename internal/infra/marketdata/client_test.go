package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestFetchMarkets(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-API-Key"); got != "secret" {
			t.Errorf("api key header = %q, want secret", got)
		}
		ids := r.URL.Query()["condition_id"]
		fmt.Fprint(w, `[`)
		for i, id := range ids {
			if i > 0 {
				fmt.Fprint(w, `,`)
			}
			fmt.Fprintf(w, `{"condition_id":%q,"question":"q","event_slug":"s","status":"active","close_time":"2026-06-01T00:00:00Z"}`, id)
		}
		fmt.Fprint(w, `]`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"})
	markets, err := client.FetchMarkets(context.Background(), []string{"c1", "c2"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(markets) != 2 {
		t.Fatalf("got %d markets, want 2", len(markets))
	}
	if markets[0].ConditionID != "c1" || markets[0].Question != "q" {
		t.Errorf("market = %+v", markets[0])
	}
	if markets[0].CloseTime == nil {
		t.Error("close time not parsed")
	}
}

func TestFetchMarketsWrappedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"markets":[{"condition_id":"c1","question":"q"}]}`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	markets, err := client.FetchMarkets(context.Background(), []string{"c1"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(markets) != 1 || markets[0].ConditionID != "c1" {
		t.Errorf("markets = %+v, want one c1", markets)
	}
}

func TestFetchMarketsBatching(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if n := len(r.URL.Query()["condition_id"]); n > 2 {
			t.Errorf("request carried %d ids, want at most 2", n)
		}
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL, BatchSize: 2})
	_, err := client.FetchMarkets(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("made %d requests, want 2", got)
	}
}

func TestFetchMarketsRetriesRateLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[{"condition_id":"c1"}]`)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	markets, err := client.FetchMarkets(context.Background(), []string{"c1"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(markets) != 1 {
		t.Errorf("got %d markets after retry, want 1", len(markets))
	}
	if requests.Load() < 2 {
		t.Errorf("made %d requests, want a retry after 429", requests.Load())
	}
}

func TestFetchTradesFollowsPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "0xabc" {
			t.Errorf("user param = %q, want 0xabc", got)
		}
		switch r.URL.Query().Get("pagination_key") {
		case "":
			fmt.Fprint(w, `{
				"orders": [
					{"order_hash":"t1","condition_id":"c1","side":"BUY","price":0.4,"shares_normalized":10,"timestamp":1756000000},
					{"order_hash":"t2","condition_id":"c2","side":"SELL","price":0.6,"shares_normalized":5,"timestamp":1756000100}
				],
				"pagination": {"has_more": true, "pagination_key": "k1"}
			}`)
		case "k1":
			// t2 repeats across the page boundary and must be dropped.
			fmt.Fprint(w, `{
				"orders": [
					{"order_hash":"t2","condition_id":"c2"},
					{"tx_hash":"t3","condition_id":"c1","user":"0xabc"}
				],
				"pagination": {"has_more": false}
			}`)
		default:
			t.Errorf("unexpected pagination key %q", r.URL.Query().Get("pagination_key"))
		}
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	trades, err := client.FetchTrades(context.Background(), "0xabc", 100)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	if trades[0].ID != "t1" || trades[0].ConditionID != "c1" || trades[0].Side != "BUY" {
		t.Errorf("trade = %+v", trades[0])
	}
	if trades[0].ExecutedAt.IsZero() {
		t.Error("timestamp not parsed")
	}
	// A trade without an order hash falls back to its tx hash, and a trade
	// without a user field inherits the queried wallet.
	if trades[2].ID != "t3" || trades[2].Wallet != "0xabc" {
		t.Errorf("trade = %+v", trades[2])
	}
	if trades[1].Wallet != "0xabc" {
		t.Errorf("wallet = %q, want queried wallet", trades[1].Wallet)
	}
}

func TestFetchTradesStopsAtLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		fmt.Fprintf(w, `{
			"orders": [{"order_hash":"t%d","condition_id":"c1"}],
			"pagination": {"has_more": true, "pagination_key": "k%d"}
		}`, n, n)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	trades, err := client.FetchTrades(context.Background(), "0xabc", 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(trades) != 2 {
		t.Errorf("got %d trades, want 2", len(trades))
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("made %d requests, want 2", got)
	}
}

func TestFetchMarketsBadRequestNotRetried(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(Config{BaseURL: srv.URL})
	if _, err := client.FetchMarkets(context.Background(), []string{"c1"}); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("made %d requests, want 1 (no retry on 400)", got)
	}
}
