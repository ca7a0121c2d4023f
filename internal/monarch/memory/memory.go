// Package memory is an in-memory Monarch source for tests and local runs
// without credentials.
package memory

import (
	"context"
	"sync"

	"monarch/internal/core"
	"monarch/internal/monarch"
)

type Source struct {
	mu         sync.Mutex
	accounts   []core.Account
	categories []core.Category
	cashflow   core.Cashflow

	// Err, when set, is returned by every read until cleared.
	err error
}

var _ monarch.Source = (*Source)(nil)

func New(accounts []core.Account, categories []core.Category, cashflow core.Cashflow) *Source {
	return &Source{accounts: accounts, categories: categories, cashflow: cashflow}
}

// SetData swaps the scripted responses.
func (s *Source) SetData(accounts []core.Account, categories []core.Category, cashflow core.Cashflow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = accounts
	s.categories = categories
	s.cashflow = cashflow
}

// SetErr makes every read fail with err until called with nil.
func (s *Source) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *Source) Accounts(_ context.Context) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := append([]core.Account(nil), s.accounts...)
	return out, nil
}

func (s *Source) Categories(_ context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := append([]core.Category(nil), s.categories...)
	return out, nil
}

func (s *Source) Cashflow(_ context.Context) (core.Cashflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return core.Cashflow{}, s.err
	}
	return s.cashflow, nil
}
