package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"monarch/internal/monarch"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *FileSessionStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store, err := NewFileSessionStore(filepath.Join(t.TempDir(), ".mm-session"))
	if err != nil {
		t.Fatalf("session store: %v", err)
	}
	c, err := New(srv.URL, store)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, store
}

func TestLogin_SavesSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Client-Platform") != "web" {
			t.Errorf("missing Client-Platform header")
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode login body: %v", err)
		}
		if req.Username != "user@example.com" || req.Password != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(loginResponse{Token: "tok-123"})
	})

	c, store := newTestClient(t, mux)
	if c.Authenticated() {
		t.Fatal("client should start unauthenticated")
	}

	if err := c.Login(context.Background(), "user@example.com", "hunter2", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !c.Authenticated() {
		t.Error("client should be authenticated after login")
	}

	sess, err := store.Load()
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.Token != "tok-123" {
		t.Errorf("stored token = %q, want tok-123", sess.Token)
	}
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"bad credentials", http.StatusUnauthorized, `{}`, monarch.ErrAuthFailed},
		{"forbidden", http.StatusForbidden, `{"detail":"nope"}`, monarch.ErrAuthFailed},
		{"mfa required", http.StatusForbidden, `{"detail":"Multi-Factor Auth Required"}`, monarch.ErrMFARequired},
		{"rate limited", http.StatusTooManyRequests, `{}`, monarch.ErrRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})
			c, _ := newTestClient(t, mux)

			err := c.Login(context.Background(), "u", "p", "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("login error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func graphqlHandler(t *testing.T, response string) http.Handler {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(loginResponse{Token: "tok"})
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(response))
	})
	return mux
}

func login(t *testing.T, c *Client) {
	t.Helper()
	if err := c.Login(context.Background(), "u", "p", ""); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func TestAccounts_Parse(t *testing.T) {
	resp := `{"data":{"accounts":[
		{"id":"a1","displayName":"Checking","displayBalance":1234.56,
		 "updatedAt":"2024-03-24T18:50:08Z","isAsset":true,"isHidden":false,
		 "includeInNetWorth":true,
		 "type":{"name":"depository","display":"Cash"},
		 "credential":{"institution":{"name":"First Bank"}}},
		{"id":"a2","displayName":"House","displayBalance":450000,
		 "updatedAt":"","isAsset":true,"isHidden":false,"includeInNetWorth":true,
		 "type":{"name":"real_estate","display":"Real Estate"},
		 "credential":null}
	]}}`

	c, _ := newTestClient(t, graphqlHandler(t, resp))
	login(t, c)

	accounts, err := c.Accounts(context.Background())
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("got %d accounts, want 2", len(accounts))
	}

	a := accounts[0]
	if a.Balance.Cents != 123456 {
		t.Errorf("balance = %d cents, want 123456", a.Balance.Cents)
	}
	if a.Institution != "First Bank" {
		t.Errorf("institution = %q", a.Institution)
	}
	want := time.Date(2024, 3, 24, 18, 50, 8, 0, time.UTC)
	if !a.UpdatedAt.Equal(want) {
		t.Errorf("updatedAt = %v, want %v", a.UpdatedAt, want)
	}

	// Manual account: no credential chain, zero updatedAt.
	b := accounts[1]
	if b.Institution != "" {
		t.Errorf("manual account institution = %q, want empty", b.Institution)
	}
	if !b.UpdatedAt.IsZero() {
		t.Errorf("manual account updatedAt should be zero")
	}
}

func TestCategories_Parse(t *testing.T) {
	resp := `{"data":{"categories":[
		{"id":"c1","name":"Paychecks","group":{"id":"g1","type":"income"}},
		{"id":"c2","name":"Groceries","group":{"id":"g2","type":"expense"}}
	]}}`

	c, _ := newTestClient(t, graphqlHandler(t, resp))
	login(t, c)

	cats, err := c.Categories(context.Background())
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	if len(cats) != 2 {
		t.Fatalf("got %d categories, want 2", len(cats))
	}
	if cats[0].GroupType != "income" || cats[1].GroupType != "expense" {
		t.Errorf("unexpected group types: %+v", cats)
	}
}

func TestCashflow_Parse(t *testing.T) {
	resp := `{"data":{
		"byCategory":[
			{"groupBy":{"category":{"id":"c2","name":"Groceries","group":{"id":"g2","type":"expense"}}},
			 "summary":{"sum":-420.5}}
		],
		"summary":[{"summary":{"sumIncome":5000,"sumExpense":-3200.25,"savings":1799.75,"savingsRate":0.36}}]
	}}`

	c, _ := newTestClient(t, graphqlHandler(t, resp))
	login(t, c)

	cf, err := c.Cashflow(context.Background())
	if err != nil {
		t.Fatalf("cashflow: %v", err)
	}
	if cf.Summary.Income.Cents != 500000 {
		t.Errorf("income = %d", cf.Summary.Income.Cents)
	}
	if cf.Summary.Expense.Cents != -320025 {
		t.Errorf("expense = %d", cf.Summary.Expense.Cents)
	}
	if cf.Summary.SavingsRate != 0.36 {
		t.Errorf("savings rate = %v", cf.Summary.SavingsRate)
	}
	if len(cf.ByCategory) != 1 || cf.ByCategory[0].Sum.Cents != -42050 {
		t.Errorf("byCategory = %+v", cf.ByCategory)
	}
}

func TestGraphQLError(t *testing.T) {
	resp := `{"errors":[{"message":"Something went wrong"}]}`
	c, _ := newTestClient(t, graphqlHandler(t, resp))
	login(t, c)

	_, err := c.Accounts(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestExpiredSession(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(loginResponse{Token: "tok"})
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, _ := newTestClient(t, mux)
	login(t, c)

	_, err := c.Accounts(context.Background())
	if !errors.Is(err, monarch.ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
}

func TestUnauthenticatedCallFailsFast(t *testing.T) {
	c, _ := newTestClient(t, http.NewServeMux())
	_, err := c.Accounts(context.Background())
	if !errors.Is(err, monarch.ErrAuthFailed) {
		t.Errorf("error = %v, want ErrAuthFailed", err)
	}
}

func TestFileSessionStore_RoundTrip(t *testing.T) {
	store, err := NewFileSessionStore(filepath.Join(t.TempDir(), "nested", ".mm-session"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := store.Load(); !errors.Is(err, monarch.ErrNoSession) {
		t.Errorf("load before save = %v, want ErrNoSession", err)
	}

	saved := monarch.Session{Token: "tok", SavedAt: time.Now().UTC().Truncate(time.Second)}
	if err := store.Save(saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Token != saved.Token {
		t.Errorf("token = %q, want %q", got.Token, saved.Token)
	}

	if err := store.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, monarch.ErrNoSession) {
		t.Errorf("load after clear = %v, want ErrNoSession", err)
	}
	// Clearing twice is fine.
	if err := store.Clear(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}
