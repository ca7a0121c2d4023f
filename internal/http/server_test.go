package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"monarch/internal/coordinator"
	"monarch/internal/core"
	"monarch/internal/log"
	"monarch/internal/monarch/memory"
	"monarch/internal/storage"
)

func testAccounts() []core.Account {
	now := time.Now().UTC()
	return []core.Account{
		{
			ID: "a1", DisplayName: "Checking", Balance: core.Money{Cents: 150000},
			TypeKey: "depository", TypeDisplay: "Cash", Institution: "First Bank",
			UpdatedAt: now.Add(-time.Hour), IsAsset: true, IncludeInNetWorth: true,
		},
		{
			ID: "a2", DisplayName: "Visa", Balance: core.Money{Cents: 50000},
			TypeKey: "credit", TypeDisplay: "Credit Cards",
			IncludeInNetWorth: true,
		},
	}
}

func testCashflow() core.Cashflow {
	return core.Cashflow{
		Summary: core.CashflowSummary{
			Income:      core.Money{Cents: 500000},
			Expense:     core.Money{Cents: -320000},
			Savings:     core.Money{Cents: 180000},
			SavingsRate: 0.36,
		},
		ByCategory: []core.CategoryFlow{
			{CategoryName: "Groceries", GroupType: core.FlowExpense, Sum: core.Money{Cents: -320000}},
		},
	}
}

type fakeHistorian struct {
	mu     sync.Mutex
	calls  int
	points []storage.HistoryPoint
}

func (f *fakeHistorian) NetWorthHistory(_ context.Context, _ int) ([]storage.HistoryPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.points, nil
}

func (f *fakeHistorian) TypeHistory(_ context.Context, _ string, _ int) ([]storage.HistoryPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.points, nil
}

// newTestServer wires a real coordinator over the in-memory source.
func newTestServer(t *testing.T, history Historian, refreshed bool) (*Server, *coordinator.Coordinator) {
	t.Helper()

	source := memory.New(testAccounts(), nil, testCashflow())
	logger := log.New(log.DefaultConfig())
	coord := coordinator.New(coordinator.Config{
		Interval: time.Hour,
		Timeout:  30 * time.Second,
	}, source, logger)

	if refreshed {
		if err := coord.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh: %v", err)
		}
	}

	return NewServer(":0", coord, history, logger), coord
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "203.0.113.9:54321"
	rec := httptest.NewRecorder()
	s.Server.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestHealthAndReady(t *testing.T) {
	s, coord := newTestServer(t, nil, false)

	if rec := doRequest(t, s, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before first poll = %d, want 503", rec.Code)
	}

	if err := coord.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rec := doRequest(t, s, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz after poll = %d, want 200", rec.Code)
	}
}

func TestSensors(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := doRequest(t, s, http.MethodGet, "/api/sensors")
	if rec.Code != http.StatusOK {
		t.Fatalf("sensors = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	sensors := body["sensors"].([]any)
	if len(sensors) != len(core.TypeGroups)+4 {
		t.Errorf("got %d sensors, want %d", len(sensors), len(core.TypeGroups)+4)
	}
}

func TestSensors_NoSnapshotYet(t *testing.T) {
	s, _ := newTestServer(t, nil, false)

	rec := doRequest(t, s, http.MethodGet, "/api/sensors")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("sensors without snapshot = %d, want 503", rec.Code)
	}
}

func TestSensorByID(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := doRequest(t, s, http.MethodGet, "/api/sensors/monarch_net_worth")
	if rec.Code != http.StatusOK {
		t.Fatalf("sensor by id = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["state"] != float64(1000) { // 1500 - 500
		t.Errorf("net worth state = %v, want 1000", body["state"])
	}

	if rec := doRequest(t, s, http.MethodGet, "/api/sensors/bogus"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown sensor = %d, want 404", rec.Code)
	}
}

func TestAccounts(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := doRequest(t, s, http.MethodGet, "/api/accounts")
	if rec.Code != http.StatusOK {
		t.Fatalf("accounts = %d, want 200", rec.Code)
	}
	body := decodeBody(t, rec)
	accounts := body["accounts"].([]any)
	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts))
	}
	first := accounts[0].(map[string]any)
	if first["balance"] != "1500.00" {
		t.Errorf("balance = %v, want 1500.00", first["balance"])
	}
	if first["last_update"] != "1 hour ago" {
		t.Errorf("last_update = %v, want \"1 hour ago\"", first["last_update"])
	}
}

func TestNetWorth(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := doRequest(t, s, http.MethodGet, "/api/networth")
	body := decodeBody(t, rec)
	if body["net_worth"] != float64(1000) {
		t.Errorf("net_worth = %v, want 1000", body["net_worth"])
	}
	if body["assets"] != float64(1500) || body["liabilities"] != float64(500) {
		t.Errorf("assets/liabilities = %v/%v", body["assets"], body["liabilities"])
	}
}

func TestCashflow(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := doRequest(t, s, http.MethodGet, "/api/cashflow")
	body := decodeBody(t, rec)
	if body["income"] != float64(5000) || body["expense"] != float64(3200) {
		t.Errorf("income/expense = %v/%v", body["income"], body["expense"])
	}
	byCat := body["by_category"].(map[string]any)
	expense := byCat["expense"].(map[string]any)
	if expense["Groceries"] != float64(3200) {
		t.Errorf("groceries = %v, want 3200", expense["Groceries"])
	}
}

func TestHistory(t *testing.T) {
	hist := &fakeHistorian{points: []storage.HistoryPoint{
		{At: time.Now().Add(-24 * time.Hour), Value: core.Money{Cents: 90000}},
		{At: time.Now(), Value: core.Money{Cents: 100000}},
	}}
	s, _ := newTestServer(t, hist, true)

	rec := doRequest(t, s, http.MethodGet, "/api/history/monarch_net_worth?days=7")
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["days"] != float64(7) {
		t.Errorf("days = %v, want 7", body["days"])
	}
	points := body["points"].([]any)
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	if points[1].(map[string]any)["value"] != float64(1000) {
		t.Errorf("point value = %v, want 1000", points[1].(map[string]any)["value"])
	}

	// Second identical request is served from cache.
	doRequest(t, s, http.MethodGet, "/api/history/monarch_net_worth?days=7")
	if hist.calls != 1 {
		t.Errorf("historian calls = %d, want 1 (cached)", hist.calls)
	}

	// A fresh snapshot invalidates the cache.
	s.InvalidateCaches()
	doRequest(t, s, http.MethodGet, "/api/history/monarch_net_worth?days=7")
	if hist.calls != 2 {
		t.Errorf("historian calls = %d, want 2 after invalidation", hist.calls)
	}
}

func TestHistory_TypeSensor(t *testing.T) {
	hist := &fakeHistorian{}
	s, _ := newTestServer(t, hist, true)

	rec := doRequest(t, s, http.MethodGet, "/api/history/monarch_credit_cards")
	if rec.Code != http.StatusOK {
		t.Fatalf("type history = %d, want 200", rec.Code)
	}
	if decodeBody(t, rec)["days"] != float64(defaultHistoryDays) {
		t.Error("missing days should default")
	}
}

func TestHistory_Validation(t *testing.T) {
	hist := &fakeHistorian{}
	s, _ := newTestServer(t, hist, true)

	if rec := doRequest(t, s, http.MethodGet, "/api/history/monarch_net_worth?days=0"); rec.Code != http.StatusBadRequest {
		t.Errorf("days=0 = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/history/monarch_net_worth?days=9999"); rec.Code != http.StatusBadRequest {
		t.Errorf("days=9999 = %d, want 400", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodGet, "/api/history/monarch_income"); rec.Code != http.StatusNotFound {
		t.Errorf("income history = %d, want 404", rec.Code)
	}
}

func TestHistory_Disabled(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := doRequest(t, s, http.MethodGet, "/api/history/monarch_net_worth")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("history without storage = %d, want 503", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	s, _ := newTestServer(t, nil, false)

	rec := doRequest(t, s, http.MethodPost, "/api/refresh")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["has_snapshot"] != true {
		t.Errorf("has_snapshot = %v, want true", body["has_snapshot"])
	}

	// The sensors endpoint now serves data.
	if rec := doRequest(t, s, http.MethodGet, "/api/sensors"); rec.Code != http.StatusOK {
		t.Errorf("sensors after refresh = %d, want 200", rec.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, nil, true)

	rec := doRequest(t, s, http.MethodGet, "/api/sensors")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("missing Cache-Control header")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{clients: make(map[string]*clientInfo), stopCleanup: make(chan struct{})}

	for i := 0; i < requestsPerMinute; i++ {
		if !rl.allow("198.51.100.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.allow("198.51.100.1") {
		t.Error("request over the limit should be rejected")
	}
	if !rl.allow("198.51.100.2") {
		t.Error("another client should not be affected")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"direct", "203.0.113.9:1234", "", "203.0.113.9"},
		{"untrusted proxy ignores xff", "203.0.113.9:1234", "198.51.100.7", "203.0.113.9"},
		{"trusted proxy honors xff", "10.0.0.5:1234", "198.51.100.7", "198.51.100.7"},
		{"trusted proxy bad xff", "10.0.0.5:1234", "not-an-ip", "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
