package core

import (
	"testing"
	"time"
)

func acct(id, typeKey string, cents int64, isAsset, hidden, inNetWorth bool) Account {
	return Account{
		ID:                id,
		DisplayName:       "Account " + id,
		Balance:           Money{Cents: cents},
		TypeKey:           typeKey,
		IsAsset:           isAsset,
		IsHidden:          hidden,
		IncludeInNetWorth: inNetWorth,
	}
}

func TestSnapshot_NetWorth(t *testing.T) {
	tests := []struct {
		name            string
		accounts        []Account
		wantNet         int64
		wantAssets      int64
		wantLiabilities int64
	}{
		{
			name: "assets minus liabilities",
			accounts: []Account{
				acct("1", "depository", 100_00, true, false, true),
				acct("2", "brokerage", 250_00, true, false, true),
				acct("3", "credit", 40_00, false, false, true),
			},
			wantNet:         310_00,
			wantAssets:      350_00,
			wantLiabilities: 40_00,
		},
		{
			name: "hidden accounts excluded",
			accounts: []Account{
				acct("1", "depository", 100_00, true, true, true),
				acct("2", "credit", 25_00, false, true, true),
			},
			wantNet: 0, wantAssets: 0, wantLiabilities: 0,
		},
		{
			name: "accounts opted out of net worth excluded on both sides",
			accounts: []Account{
				acct("1", "depository", 100_00, true, false, false),
				acct("2", "loan", 60_00, false, false, false),
				acct("3", "depository", 10_00, true, false, true),
			},
			wantNet: 10_00, wantAssets: 10_00, wantLiabilities: 0,
		},
		{
			name:    "no accounts",
			wantNet: 0, wantAssets: 0, wantLiabilities: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Snapshot{Accounts: tt.accounts}
			net, assets, liabilities := s.NetWorth()
			if net.Cents != tt.wantNet {
				t.Errorf("net = %d, want %d", net.Cents, tt.wantNet)
			}
			if assets.Cents != tt.wantAssets {
				t.Errorf("assets = %d, want %d", assets.Cents, tt.wantAssets)
			}
			if liabilities.Cents != tt.wantLiabilities {
				t.Errorf("liabilities = %d, want %d", liabilities.Cents, tt.wantLiabilities)
			}
		})
	}
}

func TestSnapshot_AccountsOfType(t *testing.T) {
	s := Snapshot{Accounts: []Account{
		acct("1", "depository", 10_00, true, false, true),
		acct("2", "credit", 20_00, false, false, true),
		acct("3", "depository", 30_00, true, false, true),
	}}

	got := s.AccountsOfType("depository")
	if len(got) != 2 {
		t.Fatalf("got %d accounts, want 2", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("got ids %s, %s; want 1, 3", got[0].ID, got[1].ID)
	}
	if len(s.AccountsOfType("vehicle")) != 0 {
		t.Error("expected no vehicle accounts")
	}
}

func TestSnapshot_FlowsByCategory(t *testing.T) {
	s := Snapshot{
		Categories: []Category{
			{ID: "c1", Name: "Paychecks", GroupType: FlowIncome},
			{ID: "c2", Name: "Interest", GroupType: FlowIncome},
			{ID: "c3", Name: "Groceries", GroupType: FlowExpense},
		},
		Cashflow: Cashflow{
			ByCategory: []CategoryFlow{
				{CategoryName: "Paychecks", GroupType: FlowIncome, Sum: Money{Cents: 5000_00}},
				{CategoryName: "Groceries", GroupType: FlowExpense, Sum: Money{Cents: -420_00}},
			},
		},
	}

	income := s.FlowsByCategory(FlowIncome)
	if got := income["Paychecks"].Cents; got != 5000_00 {
		t.Errorf("Paychecks = %d, want 500000", got)
	}
	if got, ok := income["Interest"]; !ok || got.Cents != 0 {
		t.Errorf("Interest should be seeded with zero, got %v ok=%v", got, ok)
	}
	if _, ok := income["Groceries"]; ok {
		t.Error("expense category leaked into income flows")
	}

	expense := s.FlowsByCategory(FlowExpense)
	if got := expense["Groceries"].Cents; got != 420_00 {
		t.Errorf("Groceries = %d, want 42000 (negated)", got)
	}
}

func TestTypeGroupByKey(t *testing.T) {
	g, ok := TypeGroupByKey("credit")
	if !ok {
		t.Fatal("credit group not found")
	}
	if g.Label != "Credit Cards" || g.Group != GroupLiability {
		t.Errorf("unexpected group info: %+v", g)
	}
	if _, ok := TypeGroupByKey("mystery"); ok {
		t.Error("unknown key should not resolve")
	}
}

func TestAccount_Validate(t *testing.T) {
	a := acct("1", "depository", 10_00, true, false, true)
	if err := a.Validate(); err != nil {
		t.Errorf("valid account rejected: %v", err)
	}
	a.ID = " "
	if err := a.Validate(); err != ErrEmptyAccountID {
		t.Errorf("want ErrEmptyAccountID, got %v", err)
	}
	a = acct("2", "depository", 10_00, true, false, true)
	a.DisplayName = ""
	if err := a.Validate(); err != ErrEmptyAccountName {
		t.Errorf("want ErrEmptyAccountName, got %v", err)
	}
}

func TestAccount_Active(t *testing.T) {
	if !acct("1", "depository", 0, true, false, true).Active() {
		t.Error("visible net-worth account should be active")
	}
	if acct("1", "depository", 0, true, true, true).Active() {
		t.Error("hidden account should not be active")
	}
	if acct("1", "depository", 0, true, false, false).Active() {
		t.Error("opted-out account should not be active")
	}
}

func TestSnapshotZeroValue(t *testing.T) {
	var s Snapshot
	if !s.FetchedAt.Equal(time.Time{}) {
		t.Error("zero snapshot should have zero time")
	}
	net, _, _ := s.NetWorth()
	if net.Cents != 0 {
		t.Error("zero snapshot net worth should be 0")
	}
}
