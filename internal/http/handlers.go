package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"monarch/internal/coordinator"
	"monarch/internal/core"
	"monarch/internal/log"
	"monarch/internal/monarch"
	"monarch/internal/sensor"
	"monarch/internal/storage"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 365
)

// snapshotOr503 fetches the latest snapshot or writes a 503 and returns
// false when no poll has succeeded yet.
func (s *Server) snapshotOr503(w http.ResponseWriter) (core.Snapshot, bool) {
	snap, ok := s.poller.Snapshot()
	if !ok {
		ServiceUnavailableError("no snapshot yet").Write(w)
		return core.Snapshot{}, false
	}
	return snap, true
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	readings := sensor.Build(snap, time.Now(), s.poller.Available(time.Now()))
	NewResponse().JSON(map[string]any{
		"sensors":    readings,
		"fetched_at": snap.FetchedAt,
	}).Write(w)
}

func (s *Server) handleSensorByID(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	id := r.PathValue("id")
	readings := sensor.Build(snap, time.Now(), s.poller.Available(time.Now()))
	reading, ok := sensor.ByID(readings, id)
	if !ok {
		NotFoundError(fmt.Sprintf("unknown sensor %q", id)).Write(w)
		return
	}

	NewResponse().JSON(reading).Write(w)
}

type accountPayload struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Balance     string `json:"balance"`
	Type        string `json:"type"`
	TypeDisplay string `json:"type_display"`
	Institution string `json:"institution,omitempty"`
	LastUpdate  string `json:"last_update"`
	Hidden      bool   `json:"hidden"`
	InNetWorth  bool   `json:"in_net_worth"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	now := time.Now()
	accounts := make([]accountPayload, 0, len(snap.Accounts))
	for _, a := range snap.Accounts {
		lastUpdate := "never"
		if !a.UpdatedAt.IsZero() {
			lastUpdate = core.RelativeTime(a.UpdatedAt, now)
		}
		accounts = append(accounts, accountPayload{
			ID:          a.ID,
			Name:        a.DisplayName,
			Balance:     a.Balance.String(),
			Type:        a.TypeKey,
			TypeDisplay: a.TypeDisplay,
			Institution: a.Institution,
			LastUpdate:  lastUpdate,
			Hidden:      a.IsHidden,
			InNetWorth:  a.IncludeInNetWorth,
		})
	}

	NewResponse().JSON(map[string]any{
		"accounts":   accounts,
		"fetched_at": snap.FetchedAt,
	}).Write(w)
}

func (s *Server) handleNetWorth(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	net, assets, liabilities := snap.NetWorth()
	NewResponse().JSON(map[string]any{
		"net_worth":   net.Units(),
		"assets":      assets.Units(),
		"liabilities": liabilities.Units(),
		"fetched_at":  snap.FetchedAt,
	}).Write(w)
}

func (s *Server) handleCashflow(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.snapshotOr503(w)
	if !ok {
		return
	}

	byCategory := func(ft core.FlowType) map[string]int64 {
		out := make(map[string]int64)
		for cat, sum := range snap.FlowsByCategory(ft) {
			out[cat] = sum.Units()
		}
		return out
	}

	summary := snap.Cashflow.Summary
	NewResponse().JSON(map[string]any{
		"income":       summary.Income.Units(),
		"expense":      summary.Expense.Neg().Units(),
		"savings":      summary.Savings.Units(),
		"savings_rate": summary.SavingsRate,
		"by_category": map[string]any{
			"income":  byCategory(core.FlowIncome),
			"expense": byCategory(core.FlowExpense),
		},
		"fetched_at": snap.FetchedAt,
	}).Write(w)
}

type historyPointPayload struct {
	At    time.Time `json:"at"`
	Value int64     `json:"value"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		ServiceUnavailableError("history storage disabled").Write(w)
		return
	}

	id := r.PathValue("id")
	days := defaultHistoryDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxHistoryDays {
			BadRequestError(fmt.Sprintf("days must be between 1 and %d", maxHistoryDays)).Write(w)
			return
		}
		days = n
	}

	cacheKey := fmt.Sprintf("%s:%d", id, days)
	points, hit := s.historyCache.Get(cacheKey)
	if !hit {
		var err error
		points, err = s.queryHistory(r, id, days)
		if err != nil {
			if errors.Is(err, errUnknownSensor) {
				NotFoundError(fmt.Sprintf("no history for sensor %q", id)).Write(w)
				return
			}
			s.logger.ErrorContext(r.Context(), "History query failed",
				log.FieldSensorID, id,
				log.FieldError, err)
			InternalServerError("history query failed").Write(w)
			return
		}
		s.historyCache.Set(cacheKey, points)
	}

	payload := make([]historyPointPayload, 0, len(points))
	for _, p := range points {
		payload = append(payload, historyPointPayload{At: p.At, Value: p.Value.Units()})
	}

	NewResponse().JSON(map[string]any{
		"sensor_id": id,
		"days":      days,
		"points":    payload,
	}).Write(w)
}

var errUnknownSensor = errors.New("unknown sensor")

// queryHistory resolves a sensor id to its history query. Only the net
// worth and per-type sensors have persisted history.
func (s *Server) queryHistory(r *http.Request, id string, days int) ([]storage.HistoryPoint, error) {
	if id == sensor.ID("Monarch Net Worth") {
		return s.history.NetWorthHistory(r.Context(), days)
	}
	for _, g := range core.TypeGroups {
		if sensor.ID("Monarch "+g.Label) == id {
			return s.history.TypeHistory(r.Context(), g.Key, days)
		}
	}
	return nil, errUnknownSensor
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.poller.Refresh(r.Context())
	switch {
	case errors.Is(err, coordinator.ErrRefreshInProgress):
		ErrorResponse(http.StatusConflict, "refresh already in progress").Write(w)
		return
	case errors.Is(err, monarch.ErrAuthFailed):
		s.logger.ErrorContext(r.Context(), "Manual refresh failed, authentication broken", log.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "authentication required").Write(w)
		return
	case err != nil:
		s.logger.ErrorContext(r.Context(), "Manual refresh failed", log.FieldError, err)
		ErrorResponse(http.StatusBadGateway, "refresh failed").Write(w)
		return
	}

	NewResponse().JSON(s.poller.Status()).Write(w)
}
