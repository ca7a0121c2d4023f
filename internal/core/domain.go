package core

import (
	"errors"
	"strings"
	"time"
)

const (
	GroupAsset     AccountGroup = "ASSETS"
	GroupLiability AccountGroup = "LIABILITIES"
	GroupOther     AccountGroup = "OTHER"
)

const (
	FlowIncome  FlowType = "income"
	FlowExpense FlowType = "expense"
)

type (
	// AccountGroup classifies an account type as asset, liability or other.
	AccountGroup string

	// FlowType is the direction of a transaction category group.
	FlowType string

	// Account is a single Monarch account as returned by the accounts query,
	// shaped down to the fields the sensors consume.
	Account struct {
		ID                string
		DisplayName       string
		Balance           Money
		TypeKey           string // e.g. "depository", "credit"
		TypeDisplay       string // e.g. "Cash", "Credit Cards"
		Institution       string // empty when the credential chain is missing
		UpdatedAt         time.Time
		IsAsset           bool
		IsHidden          bool
		IncludeInNetWorth bool
	}

	// Category is a transaction category with its group direction.
	Category struct {
		ID        string
		Name      string
		GroupType FlowType
	}

	// CashflowSummary is the aggregate cashflow for the polled window.
	CashflowSummary struct {
		Income      Money
		Expense     Money // negative or zero as reported by the API
		Savings     Money
		SavingsRate float64 // fraction, e.g. 0.25
	}

	// CategoryFlow is the summed flow for one category in the polled window.
	CategoryFlow struct {
		CategoryName string
		GroupType    FlowType
		Sum          Money
	}

	// Cashflow bundles the summary with its per-category breakdown.
	Cashflow struct {
		Summary    CashflowSummary
		ByCategory []CategoryFlow
	}

	// Snapshot is one complete poll of the Monarch API.
	Snapshot struct {
		FetchedAt  time.Time
		Accounts   []Account
		Categories []Category
		Cashflow   Cashflow
	}
)

var (
	ErrEmptyAccountID   = errors.New("empty account id")
	ErrEmptyAccountName = errors.New("empty account display name")
	ErrUnknownType      = errors.New("unknown account type")
)

// TypeGroupInfo describes one account type group and its sensor metadata.
type TypeGroupInfo struct {
	Key   string // API type name, e.g. "depository"
	Label string // sensor label, e.g. "Cash"
	Group AccountGroup
	Icon  string
}

// TypeGroups lists every account type group, in sensor registration order.
// Keys and icons match the Monarch account type taxonomy.
var TypeGroups = []TypeGroupInfo{
	{Key: "brokerage", Label: "Investments", Group: GroupAsset, Icon: "mdi:chart-line"},
	{Key: "credit", Label: "Credit Cards", Group: GroupLiability, Icon: "mdi:credit-card"},
	{Key: "depository", Label: "Cash", Group: GroupAsset, Icon: "mdi:cash"},
	{Key: "loan", Label: "Loans", Group: GroupLiability, Icon: "mdi:bank"},
	{Key: "other", Label: "Other", Group: GroupOther, Icon: "mdi:information-outline"},
	{Key: "real_estate", Label: "Real Estate", Group: GroupAsset, Icon: "mdi:home"},
	{Key: "valuables", Label: "Valuables", Group: GroupAsset, Icon: "mdi:treasure-chest"},
	{Key: "vehicle", Label: "Vehicles", Group: GroupAsset, Icon: "mdi:car"},
	{Key: "other_asset", Label: "Other Assets", Group: GroupAsset, Icon: "mdi:file-document-outline"},
	{Key: "other_liability", Label: "Other Liabilities", Group: GroupLiability, Icon: "mdi:account-alert-outline"},
}

// TypeGroupByKey returns the group info for an API type name.
func TypeGroupByKey(key string) (TypeGroupInfo, bool) {
	for _, g := range TypeGroups {
		if g.Key == key {
			return g, true
		}
	}
	return TypeGroupInfo{}, false
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return ErrEmptyAccountID
	}
	if strings.TrimSpace(a.DisplayName) == "" {
		return ErrEmptyAccountName
	}
	return nil
}

// Active reports whether the account participates in net worth.
func (a Account) Active() bool {
	return a.IncludeInNetWorth && !a.IsHidden
}

// AccountsOfType returns the accounts whose type key matches.
func (s Snapshot) AccountsOfType(typeKey string) []Account {
	var out []Account
	for _, a := range s.Accounts {
		if a.TypeKey == typeKey {
			out = append(out, a)
		}
	}
	return out
}

// NetWorth sums active asset and liability balances. Only accounts with
// IncludeInNetWorth and not hidden count on either side.
func (s Snapshot) NetWorth() (net, assets, liabilities Money) {
	for _, a := range s.Accounts {
		if !a.Active() {
			continue
		}
		if a.IsAsset {
			assets.Cents += a.Balance.Cents
		} else {
			liabilities.Cents += a.Balance.Cents
		}
	}
	net.Cents = assets.Cents - liabilities.Cents
	return net, assets, liabilities
}

// FlowsByCategory sums per-category cashflow for the given direction,
// seeding every category of that direction with zero so quiet categories
// still appear. Expense sums are negated to read as positive spending.
func (s Snapshot) FlowsByCategory(ft FlowType) map[string]Money {
	out := make(map[string]Money)
	for _, c := range s.Categories {
		if c.GroupType == ft {
			out[c.Name] = Money{}
		}
	}
	for _, f := range s.Cashflow.ByCategory {
		if f.GroupType != ft {
			continue
		}
		sum := f.Sum
		if ft == FlowExpense {
			sum.Cents = -sum.Cents
		}
		m := out[f.CategoryName]
		m.Cents += sum.Cents
		out[f.CategoryName] = m
	}
	return out
}
