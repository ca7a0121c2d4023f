package api

import (
	"context"
	"fmt"
	"time"

	"monarch/internal/core"
)

// Wire shapes for the GraphQL responses. Balances arrive as floats and are
// converted to cents once, here at the boundary.

type accountJSON struct {
	ID                string  `json:"id"`
	DisplayName       string  `json:"displayName"`
	DisplayBalance    float64 `json:"displayBalance"`
	UpdatedAt         string  `json:"updatedAt"`
	IsAsset           bool    `json:"isAsset"`
	IsHidden          bool    `json:"isHidden"`
	IncludeInNetWorth bool    `json:"includeInNetWorth"`
	Type              struct {
		Name    string `json:"name"`
		Display string `json:"display"`
	} `json:"type"`
	Credential *struct {
		Institution *struct {
			Name string `json:"name"`
		} `json:"institution"`
	} `json:"credential"`
}

type categoryJSON struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Group struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"group"`
}

type cashflowJSON struct {
	ByCategory []struct {
		GroupBy struct {
			Category categoryJSON `json:"category"`
		} `json:"groupBy"`
		Summary struct {
			Sum float64 `json:"sum"`
		} `json:"summary"`
	} `json:"byCategory"`
	Summary []struct {
		Summary struct {
			SumIncome   float64 `json:"sumIncome"`
			SumExpense  float64 `json:"sumExpense"`
			Savings     float64 `json:"savings"`
			SavingsRate float64 `json:"savingsRate"`
		} `json:"summary"`
	} `json:"summary"`
}

// Accounts implements monarch.AccountReader.
func (c *Client) Accounts(ctx context.Context) ([]core.Account, error) {
	var data struct {
		Accounts []accountJSON `json:"accounts"`
	}
	if err := c.do(ctx, "GetAccounts", queryGetAccounts, nil, &data); err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}

	out := make([]core.Account, 0, len(data.Accounts))
	for _, a := range data.Accounts {
		acc := core.Account{
			ID:                a.ID,
			DisplayName:       a.DisplayName,
			Balance:           core.FromFloat(a.DisplayBalance),
			TypeKey:           a.Type.Name,
			TypeDisplay:       a.Type.Display,
			IsAsset:           a.IsAsset,
			IsHidden:          a.IsHidden,
			IncludeInNetWorth: a.IncludeInNetWorth,
		}
		// The credential/institution chain is absent for manual accounts.
		if a.Credential != nil && a.Credential.Institution != nil {
			acc.Institution = a.Credential.Institution.Name
		}
		if a.UpdatedAt != "" {
			if t, err := time.Parse(time.RFC3339, a.UpdatedAt); err == nil {
				acc.UpdatedAt = t
			}
		}
		if err := acc.Validate(); err != nil {
			return nil, fmt.Errorf("account %q: %w", a.ID, err)
		}
		out = append(out, acc)
	}
	return out, nil
}

// Categories implements monarch.TaxonomyReader.
func (c *Client) Categories(ctx context.Context) ([]core.Category, error) {
	var data struct {
		Categories []categoryJSON `json:"categories"`
	}
	if err := c.do(ctx, "GetCategories", queryGetTransactionCategories, nil, &data); err != nil {
		return nil, fmt.Errorf("get categories: %w", err)
	}

	out := make([]core.Category, 0, len(data.Categories))
	for _, cat := range data.Categories {
		out = append(out, core.Category{
			ID:        cat.ID,
			Name:      cat.Name,
			GroupType: core.FlowType(cat.Group.Type),
		})
	}
	return out, nil
}

// Cashflow implements monarch.CashflowReader. The window is the current
// calendar month up to today.
func (c *Client) Cashflow(ctx context.Context) (core.Cashflow, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	variables := map[string]any{
		"filters": map[string]any{
			"search":     "",
			"categories": []string{},
			"accounts":   []string{},
			"tags":       []string{},
			"startDate":  start.Format("2006-01-02"),
			"endDate":    now.Format("2006-01-02"),
		},
	}

	var data cashflowJSON
	if err := c.do(ctx, "Web_GetCashFlowPage", queryGetCashflow, variables, &data); err != nil {
		return core.Cashflow{}, fmt.Errorf("get cashflow: %w", err)
	}

	cf := core.Cashflow{}
	if len(data.Summary) > 0 {
		s := data.Summary[0].Summary
		cf.Summary = core.CashflowSummary{
			Income:      core.FromFloat(s.SumIncome),
			Expense:     core.FromFloat(s.SumExpense),
			Savings:     core.FromFloat(s.Savings),
			SavingsRate: s.SavingsRate,
		}
	}
	for _, bc := range data.ByCategory {
		cf.ByCategory = append(cf.ByCategory, core.CategoryFlow{
			CategoryName: bc.GroupBy.Category.Name,
			GroupType:    core.FlowType(bc.GroupBy.Category.Group.Type),
			Sum:          core.FromFloat(bc.Summary.Sum),
		})
	}
	return cf, nil
}
