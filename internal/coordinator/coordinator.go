// Package coordinator owns the poll loop: it fetches accounts, categories
// and cashflow from Monarch on a fixed interval, keeps the latest snapshot
// in memory for the HTTP API, and fans the result out to SQLite and AMQP.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"monarch/internal/core"
	"monarch/internal/log"
	"monarch/internal/monarch"
)

// ErrRefreshInProgress is returned when a manual refresh overlaps a running
// one. The caller should retry after the current poll finishes.
var ErrRefreshInProgress = errors.New("coordinator: refresh already in progress")

// staleMultiplier scales the poll interval into the availability window.
// A snapshot older than four missed polls marks the sensors unavailable.
const staleMultiplier = 4

// Persister stores a snapshot and returns its row id.
type Persister interface {
	SaveSnapshot(ctx context.Context, snap core.Snapshot) (int64, error)
}

// Publisher announces a stored snapshot to the exporter.
type Publisher interface {
	PublishSnapshotCreated(ctx context.Context, snapshotID, netWorthCents int64, fetchedAt time.Time) error
}

type Config struct {
	Interval time.Duration
	Timeout  time.Duration

	// Credentials for the one re-login attempted when the session expires
	// mid-poll. Empty disables re-auth.
	Email    string
	Password string
}

type Coordinator struct {
	cfg    Config
	source monarch.Source
	auth   monarch.Authenticator
	store  Persister
	events Publisher
	logger *log.Logger

	// onSnapshot hooks run after each successful poll, e.g. to invalidate
	// HTTP response caches.
	onSnapshot []func(core.Snapshot)

	refreshing int32

	mu         sync.RWMutex
	snapshot   core.Snapshot
	hasSnap    bool
	lastErr    error
	failures   int
	snapshots  int64
	authBroken bool
}

type Option func(*Coordinator)

// WithPersister stores each snapshot in the repository.
func WithPersister(p Persister) Option {
	return func(c *Coordinator) { c.store = p }
}

// WithPublisher announces each stored snapshot over AMQP.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) { c.events = p }
}

// WithAuthenticator enables the single re-login on session expiry.
func WithAuthenticator(a monarch.Authenticator) Option {
	return func(c *Coordinator) { c.auth = a }
}

// OnSnapshot registers a hook called after every successful poll.
func OnSnapshot(fn func(core.Snapshot)) Option {
	return func(c *Coordinator) { c.onSnapshot = append(c.onSnapshot, fn) }
}

func New(cfg Config, source monarch.Source, logger *log.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		source: source,
		logger: logger.WithComponent(log.ComponentCoordinator),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initMetrics()
	return c
}

// Run polls until ctx is cancelled. The first poll happens immediately so
// the API starts serving data without waiting a full interval.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.refresh(ctx, "startup"); err != nil {
		c.logger.ErrorContext(ctx, "Initial poll failed", log.FieldError, err)
	}

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Poll loop stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			// Scheduled polls pause while authentication is broken; a
			// manual refresh resumes them once it succeeds.
			if c.isAuthBroken() {
				c.logger.WarnContext(ctx, "Skipping scheduled poll, authentication broken")
				continue
			}
			if err := c.refresh(ctx, "interval"); err != nil {
				c.logger.ErrorContext(ctx, "Poll failed", log.FieldError, err)
			}
		}
	}
}

// Refresh runs one poll outside the schedule. Only one refresh runs at a
// time; an overlapping call gets ErrRefreshInProgress.
func (c *Coordinator) Refresh(ctx context.Context) error {
	return c.refresh(ctx, "manual")
}

func (c *Coordinator) refresh(ctx context.Context, trigger string) error {
	if !atomic.CompareAndSwapInt32(&c.refreshing, 0, 1) {
		return ErrRefreshInProgress
	}
	defer atomic.StoreInt32(&c.refreshing, 0)

	start := time.Now()
	snap, err := c.poll(ctx)
	recordPoll(trigger, err, time.Since(start))

	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.failures++
		if errors.Is(err, monarch.ErrAuthFailed) {
			c.authBroken = true
		}
		failures := c.failures
		c.mu.Unlock()

		c.logger.WarnContext(ctx, "Poll failed, keeping last snapshot",
			log.FieldError, err,
			"consecutive_failures", failures,
			"trigger", trigger)
		return err
	}

	c.mu.Lock()
	c.snapshot = snap
	c.hasSnap = true
	c.lastErr = nil
	c.failures = 0
	c.snapshots++
	c.authBroken = false
	c.mu.Unlock()

	net, _, _ := snap.NetWorth()
	netWorthUnits.Set(float64(net.Units()))
	accountsGauge.Set(float64(len(snap.Accounts)))

	c.logger.InfoContext(ctx, "Snapshot refreshed",
		log.FieldAccounts, len(snap.Accounts),
		log.FieldNetWorth, net.Cents,
		log.FieldDuration, time.Since(start).Milliseconds(),
		"trigger", trigger)

	c.fanout(ctx, snap, net)

	for _, fn := range c.onSnapshot {
		fn(snap)
	}

	return nil
}

// poll fetches all three queries in parallel, re-authenticating once if the
// session expired since the last poll.
func (c *Coordinator) poll(ctx context.Context) (core.Snapshot, error) {
	snap, err := c.fetch(ctx)
	if !errors.Is(err, monarch.ErrAuthFailed) {
		return snap, err
	}

	if c.auth == nil || c.cfg.Email == "" {
		return core.Snapshot{}, fmt.Errorf("session expired and no credentials configured: %w", err)
	}

	c.logger.WarnContext(ctx, "Session expired, re-authenticating")
	reauthTotal.Inc()

	loginCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	if err := c.auth.Login(loginCtx, c.cfg.Email, c.cfg.Password, ""); err != nil {
		return core.Snapshot{}, fmt.Errorf("re-login: %w", err)
	}

	return c.fetch(ctx)
}

func (c *Coordinator) fetch(ctx context.Context) (core.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var snap core.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		accounts, err := c.source.Accounts(gctx)
		if err != nil {
			return err
		}
		snap.Accounts = accounts
		return nil
	})
	g.Go(func() error {
		categories, err := c.source.Categories(gctx)
		if err != nil {
			return err
		}
		snap.Categories = categories
		return nil
	})
	g.Go(func() error {
		cashflow, err := c.source.Cashflow(gctx)
		if err != nil {
			return err
		}
		snap.Cashflow = cashflow
		return nil
	})

	if err := g.Wait(); err != nil {
		return core.Snapshot{}, err
	}

	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// fanout persists and publishes the snapshot. Both are best effort: a dead
// database or broker must not take the sensors down.
func (c *Coordinator) fanout(ctx context.Context, snap core.Snapshot, net core.Money) {
	if c.store == nil {
		return
	}

	id, err := c.store.SaveSnapshot(ctx, snap)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to persist snapshot", log.FieldError, err)
		return
	}

	if c.events == nil {
		return
	}
	if err := c.events.PublishSnapshotCreated(ctx, id, net.Cents, snap.FetchedAt); err != nil {
		c.logger.WarnContext(ctx, "Failed to publish snapshot event",
			log.FieldSnapshotID, id,
			log.FieldError, err)
	}
}

// Snapshot returns the latest snapshot, if any poll has succeeded.
func (c *Coordinator) Snapshot() (core.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.hasSnap
}

// Available reports whether the latest snapshot is fresh enough to serve.
func (c *Coordinator) Available(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasSnap {
		return false
	}
	return now.Sub(c.snapshot.FetchedAt) < staleMultiplier*c.cfg.Interval
}

func (c *Coordinator) isAuthBroken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authBroken
}

// Status summarizes the poll loop for the health endpoints.
type Status struct {
	HasSnapshot bool      `json:"has_snapshot"`
	FetchedAt   time.Time `json:"fetched_at,omitempty"`
	Failures    int       `json:"consecutive_failures"`
	Snapshots   int64     `json:"snapshots"`
	LastError   string    `json:"last_error,omitempty"`
	Refreshing  bool      `json:"refreshing"`
	AuthBroken  bool      `json:"auth_broken"`
}

func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Status{
		HasSnapshot: c.hasSnap,
		Failures:    c.failures,
		Snapshots:   c.snapshots,
		Refreshing:  atomic.LoadInt32(&c.refreshing) == 1,
		AuthBroken:  c.authBroken,
	}
	if c.hasSnap {
		s.FetchedAt = c.snapshot.FetchedAt
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}
