// Package sensor shapes a balance snapshot into the readings the HTTP API
// exposes: one per account type group, plus net worth and cashflow.
package sensor

import (
	"time"

	"monarch/internal/core"
)

const (
	namePrefix = "Monarch"

	// Home Assistant compatible metadata, shared by every reading.
	unitUSD          = "USD"
	deviceClassMoney = "monetary"
	stateClassTotal  = "total"
)

// Fixed readings alongside the per-type ones.
const (
	iconNetWorth = "mdi:chart-donut"
	iconCashflow = "mdi:chart-sankey-variant"
	iconIncome   = "mdi:bank-plus"
	iconExpense  = "mdi:bank-minus"
)

// Reading is one sensor value derived from a snapshot. State is in whole
// currency units.
type Reading struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Icon        string         `json:"icon"`
	Unit        string         `json:"unit"`
	DeviceClass string         `json:"device_class"`
	StateClass  string         `json:"state_class"`
	State       int64          `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	Available   bool           `json:"available"`
}

// accountAttr is the per-account detail attached to type group readings,
// keyed by account id in the attribute map.
type accountAttr struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Balance     string `json:"balance"`
	AccountType string `json:"account_type"`
	Institution string `json:"institution,omitempty"`
	Updated     string `json:"updated"`
}

// ID returns the sensor id for a display name, e.g. "Monarch Credit Cards"
// becomes "monarch_credit_cards".
func ID(name string) string {
	return core.SnakeCase(name)
}

// Build derives every reading from the snapshot. available marks whether the
// snapshot is fresh enough to trust; stale snapshots keep their last values
// but report unavailable. now anchors the relative update times.
func Build(snap core.Snapshot, now time.Time, available bool) []Reading {
	readings := make([]Reading, 0, len(core.TypeGroups)+4)

	for _, g := range core.TypeGroups {
		readings = append(readings, typeReading(snap, g, now, available))
	}

	readings = append(readings,
		netWorthReading(snap, available),
		cashflowReading(snap, available),
		flowReading(snap, core.FlowIncome, available),
		flowReading(snap, core.FlowExpense, available),
	)

	return readings
}

// ByID returns the reading with the given sensor id.
func ByID(readings []Reading, id string) (Reading, bool) {
	for _, r := range readings {
		if r.ID == id {
			return r, true
		}
	}
	return Reading{}, false
}

func typeReading(snap core.Snapshot, g core.TypeGroupInfo, now time.Time, available bool) Reading {
	accounts := snap.AccountsOfType(g.Key)

	var total core.Money
	attrs := make(map[string]any, len(accounts))
	for _, a := range accounts {
		total.Cents += a.Balance.Cents
		updated := "never"
		if !a.UpdatedAt.IsZero() {
			updated = core.RelativeTime(a.UpdatedAt, now)
		}
		attrs[a.ID] = accountAttr{
			ID:          a.ID,
			Name:        a.DisplayName,
			Balance:     a.Balance.String(),
			AccountType: a.TypeKey,
			Institution: a.Institution,
			Updated:     updated,
		}
	}

	name := namePrefix + " " + g.Label
	return Reading{
		ID:          ID(name),
		Name:        name,
		Icon:        g.Icon,
		Unit:        unitUSD,
		DeviceClass: deviceClassMoney,
		StateClass:  stateClassTotal,
		State:       total.Units(),
		Attributes:  attrs,
		Available:   available && len(accounts) > 0,
	}
}

func netWorthReading(snap core.Snapshot, available bool) Reading {
	net, assets, liabilities := snap.NetWorth()

	active := 0
	for _, a := range snap.Accounts {
		if a.Active() {
			active++
		}
	}

	name := namePrefix + " Net Worth"
	return Reading{
		ID:          ID(name),
		Name:        name,
		Icon:        iconNetWorth,
		Unit:        unitUSD,
		DeviceClass: deviceClassMoney,
		StateClass:  stateClassTotal,
		State:       net.Units(),
		Attributes: map[string]any{
			"assets":          assets.Units(),
			"liabilities":     liabilities.Units(),
			"active_accounts": active,
		},
		Available: available && len(snap.Accounts) > 0,
	}
}

func cashflowReading(snap core.Snapshot, available bool) Reading {
	s := snap.Cashflow.Summary

	name := namePrefix + " Cash Flow"
	return Reading{
		ID:          ID(name),
		Name:        name,
		Icon:        iconCashflow,
		Unit:        unitUSD,
		DeviceClass: deviceClassMoney,
		StateClass:  stateClassTotal,
		State:       s.Savings.Units(),
		Attributes: map[string]any{
			// Expense passes through as reported, negative for net spend.
			"income":       s.Income.Units(),
			"expense":      s.Expense.Units(),
			"savings":      s.Savings.Units(),
			"savings_rate": s.SavingsRate * 100,
		},
		Available: available,
	}
}

func flowReading(snap core.Snapshot, ft core.FlowType, available bool) Reading {
	var (
		name  string
		icon  string
		state core.Money
	)
	switch ft {
	case core.FlowIncome:
		name = namePrefix + " Income"
		icon = iconIncome
		state = snap.Cashflow.Summary.Income
	default:
		name = namePrefix + " Expense"
		icon = iconExpense
		// Expense is reported negative; the sensor reads as positive spend.
		state = snap.Cashflow.Summary.Expense.Neg()
	}

	categories := make(map[string]int64)
	for cat, sum := range snap.FlowsByCategory(ft) {
		categories[cat] = sum.Units()
	}

	return Reading{
		ID:          ID(name),
		Name:        name,
		Icon:        icon,
		Unit:        unitUSD,
		DeviceClass: deviceClassMoney,
		StateClass:  stateClassTotal,
		State:       state.Units(),
		Attributes: map[string]any{
			"categories": categories,
		},
		Available: available,
	}
}
