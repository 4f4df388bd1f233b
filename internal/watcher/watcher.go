package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/hankw/whisperwatch/internal/journal"
	"github.com/hankw/whisperwatch/internal/ocr"
	"github.com/hankw/whisperwatch/internal/presence"
)

// Config defines the watcher's two schedules: the long, jittered presence
// poll period and the per-account throttle window, both evaluated on the
// short tick interval.
type Config struct {
	// Main loop tick interval.
	TickInterval time.Duration `toml:"tick_interval"`

	// Base presence poll period.
	PollInterval time.Duration `toml:"poll_interval"`

	// Symmetric random jitter applied to each poll period, avoiding a
	// mechanically regular polling signature.
	PollJitter time.Duration `toml:"poll_jitter"`

	// Throttle window: minimum time between dispatches to the same
	// account while it stays continuously online.
	SendInterval time.Duration `toml:"send_interval"`

	// Worker pool cap for batch presence polls.
	PollWorkers int `toml:"poll_workers"`

	// Greeting text carried by the header whisper.
	Greeting string `toml:"greeting"`
}

// DefaultConfig returns watcher defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 1 * time.Second,
		PollInterval: 60 * time.Second,
		PollJitter:   10 * time.Second,
		SendInterval: 10 * time.Minute,
		PollWorkers:  5,
		Greeting:     "hello!",
	}
}

// validateConfig validates watcher configuration.
func validateConfig(config Config) error {
	if config.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %v", config.TickInterval)
	}
	if config.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", config.PollInterval)
	}
	if config.PollJitter < 0 {
		return fmt.Errorf("poll_jitter must not be negative, got %v", config.PollJitter)
	}
	if config.PollJitter >= config.PollInterval {
		return fmt.Errorf("poll_jitter (%v) must be less than poll_interval (%v)",
			config.PollJitter, config.PollInterval)
	}
	if config.SendInterval <= 0 {
		return fmt.Errorf("send_interval must be positive, got %v", config.SendInterval)
	}
	if config.PollWorkers <= 0 {
		return fmt.Errorf("poll_workers must be positive, got %d", config.PollWorkers)
	}
	return nil
}

// Dispatcher sends one chat message to the device surface.
type Dispatcher interface {
	SendMessage(ctx context.Context, text string) error
}

// Verifier confirms that a dispatch with the expected code and stamp
// rendered on screen.
type Verifier interface {
	Verify(ctx context.Context, expectedCode, expectedTS string) (ocr.Verdict, error)
}

// Journal buffers audit records behind the control loop.
type Journal interface {
	BufferDispatch(rec journal.DispatchRecord)
	BufferStats(stats journal.PollStats)
	MaybeFlush(now time.Time)
}

// Watcher is the top-level control loop. It exclusively owns the account
// table: the scraper and verifier are pure per-call collaborators holding
// no state of their own. The dispatcher and verifier drive one physical
// device surface, so they are invoked strictly sequentially from the loop;
// exclusivity is structural, no locking involved.
type Watcher struct {
	config  Config
	targets []presence.Target
	logger  *slog.Logger

	scraper    presence.Scraper
	dispatcher Dispatcher
	verifier   Verifier
	sink       StatusSink
	journal    Journal

	// State (accessed only by the control loop)
	accounts map[string]*AccountState
	order    []string
	nextPoll time.Time

	// Dispatch activity since the last poll cycle, folded into that
	// cycle's stats.
	dispatchCount int
	verifiedCount int

	rng *rand.Rand
	now func() time.Time

	shutdown chan struct{}
}

// New creates a watcher over the configured targets.
func New(
	config Config,
	targets []presence.Target,
	scraper presence.Scraper,
	dispatcher Dispatcher,
	verifier Verifier,
	sink StatusSink,
	jnl Journal,
	logger *slog.Logger,
) (*Watcher, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid watcher config: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one target must be configured")
	}

	accounts := make(map[string]*AccountState, len(targets))
	order := make([]string, 0, len(targets))
	for _, target := range targets {
		if target.ID == "" {
			return nil, fmt.Errorf("target with empty id (url %q)", target.URL)
		}
		if _, exists := accounts[target.ID]; exists {
			return nil, fmt.Errorf("duplicate target id %q", target.ID)
		}
		accounts[target.ID] = &AccountState{
			TargetID: target.ID,
			Status:   StatusOffline,
		}
		order = append(order, target.ID)
	}

	return &Watcher{
		config:     config,
		targets:    targets,
		logger:     logger,
		scraper:    scraper,
		dispatcher: dispatcher,
		verifier:   verifier,
		sink:       sink,
		journal:    jnl,
		accounts:   accounts,
		order:      order,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		now:        time.Now,
		shutdown:   make(chan struct{}),
	}, nil
}

// Run drives the control loop until the context ends or Shutdown is
// called. No component failure is fatal: scrape, send and verification
// errors are logged at their origin and the loop keeps running.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("starting watcher",
		"targets", len(w.targets),
		"poll_interval", w.config.PollInterval,
		"poll_jitter", w.config.PollJitter,
		"send_interval", w.config.SendInterval)

	ticker := time.NewTicker(w.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping", "reason", ctx.Err())
			return
		case <-w.shutdown:
			w.logger.Info("watcher stopping", "reason", "shutdown requested")
			return
		case <-ticker.C:
			w.iteration(ctx)
		}
	}
}

// Shutdown requests a stop of the control loop.
func (w *Watcher) Shutdown() {
	close(w.shutdown)
}

// Account returns the state for a target ID (for inspection in tests).
func (w *Watcher) Account(targetID string) *AccountState {
	return w.accounts[targetID]
}

// iteration performs a single tick of the control loop.
func (w *Watcher) iteration(ctx context.Context) {
	now := w.now()

	// Step 1: Poll presence when the jittered schedule is due
	if !now.Before(w.nextPoll) {
		w.poll(ctx, now)
	}

	// Step 2: Apply the dispatch guard to every known account
	w.dispatchPass(ctx, now)

	// Step 3: Flush journal buffers on their time/size thresholds
	w.journal.MaybeFlush(now)
}

// poll scrapes all targets concurrently and applies the results. A
// whole-batch failure retains every prior status rather than forcing
// accounts offline; the next scheduled poll retries.
func (w *Watcher) poll(ctx context.Context, now time.Time) {
	w.scheduleNextPoll(now)

	records, err := presence.CheckAll(ctx, w.scraper, w.targets, w.config.PollWorkers)
	pollDuration := w.now().Sub(now)
	if err != nil {
		w.logger.Warn("presence poll failed, retaining prior statuses", "error", err)
		return
	}

	online, degraded := 0, 0
	for _, id := range w.order {
		account := w.accounts[id]
		rec, ok := records[id]
		if !ok {
			continue
		}

		if rec.Degraded {
			// A single failed scrape resolves to offline/unknown for
			// that account only.
			degraded++
			rec.Online = false
		}

		wasOnline := account.Online()
		account.Observe(rec, now, w.config.SendInterval)
		if account.Online() != wasOnline {
			w.logger.Info("presence transition",
				"target_id", id,
				"display_name", account.DisplayName,
				"status", account.Status.String())
		}
		if account.Online() {
			online++
		}

		w.sink.UpdateStatus(account.Online(), account.DisplayName, account.Code, account.LastChannel)
	}

	w.journal.BufferStats(journal.PollStats{
		ID:            uuid.NewString(),
		PolledAt:      now,
		Duration:      pollDuration,
		TargetCount:   len(w.targets),
		OnlineCount:   online,
		DegradedCount: degraded,
		DispatchCount: w.dispatchCount,
		VerifiedCount: w.verifiedCount,
	})
	w.dispatchCount, w.verifiedCount = 0, 0

	w.logger.Debug("presence poll complete",
		"online", online,
		"degraded", degraded,
		"duration", pollDuration,
		"next_poll", w.nextPoll)
}

// scheduleNextPoll recomputes the jittered poll deadline.
func (w *Watcher) scheduleNextPoll(now time.Time) {
	w.nextPoll = now.Add(w.config.PollInterval + w.jitter())
}

// jitter draws a uniform offset in [-PollJitter, +PollJitter].
func (w *Watcher) jitter() time.Duration {
	j := int64(w.config.PollJitter)
	if j <= 0 {
		return 0
	}
	return time.Duration(w.rng.Int63n(2*j+1) - j)
}

// dispatchPass dispatches to every account whose guard condition holds.
func (w *Watcher) dispatchPass(ctx context.Context, now time.Time) {
	for _, id := range w.order {
		account := w.accounts[id]
		if !account.DispatchDue(now, w.config.SendInterval) {
			continue
		}
		w.dispatch(ctx, now, account)
	}
}

// dispatch sends the two-part message to one account and verifies the
// rendered echo. The throttle window starts as soon as the header whisper
// is out: a verification miss means the message plausibly arrived anyway,
// and re-sending inside the window would double up on the recipient.
func (w *Watcher) dispatch(ctx context.Context, now time.Time, account *AccountState) {
	if account.Code == "" {
		// No code scraped yet; the whisper cannot be addressed.
		w.logger.Warn("skipping dispatch, no code known for target",
			"target_id", account.TargetID)
		return
	}

	stamp := Stamp(now)
	header, marker := BuildWhispers(account.DisplayName, account.Code, w.config.Greeting, stamp)

	w.logger.Info("dispatching",
		"target_id", account.TargetID,
		"display_name", account.DisplayName,
		"code", account.Code,
		"stamp", stamp)

	if err := w.dispatcher.SendMessage(ctx, header); err != nil {
		// Nothing went out; the guard stays open and the next tick
		// retries.
		w.logger.Error("dispatch failed",
			"target_id", account.TargetID,
			"error", err)
		return
	}

	account.MarkDispatched(now)
	w.dispatchCount++

	rec := journal.DispatchRecord{
		ID:          uuid.NewString(),
		TargetID:    account.TargetID,
		DisplayName: account.DisplayName,
		Code:        account.Code,
		SentAt:      now,
		Stamp:       stamp,
	}

	if err := w.dispatcher.SendMessage(ctx, marker); err != nil {
		// The header went out, so the dispatch stands, but without the
		// marker on screen there is nothing to verify.
		w.logger.Error("marker whisper failed, skipping verification",
			"target_id", account.TargetID,
			"error", err)
		w.journal.BufferDispatch(rec)
		return
	}

	verdict, err := w.verifier.Verify(ctx, account.Code, stamp)
	switch {
	case err != nil:
		w.logger.Error("verification aborted",
			"target_id", account.TargetID,
			"error", err)
	case verdict.Verified:
		account.RecordChannel(verdict.Channel)
		rec.Verified = true
		rec.Channel = verdict.Channel
		w.verifiedCount++
		w.logger.Info("dispatch verified",
			"target_id", account.TargetID,
			"channel", verdict.Channel)
	default:
		w.logger.Warn("dispatch unverified",
			"target_id", account.TargetID,
			"raw_text", verdict.RawText)
	}

	w.journal.BufferDispatch(rec)
	w.sink.UpdateStatus(account.Online(), account.DisplayName, account.Code, account.LastChannel)
}
