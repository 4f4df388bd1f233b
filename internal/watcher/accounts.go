package watcher

import (
	"time"

	"github.com/hankw/whisperwatch/internal/presence"
)

// Status is the per-account presence state.
type Status int

const (
	// StatusOffline: last poll observed the account offline (or has not
	// observed it yet).
	StatusOffline Status = iota

	// StatusOnlinePendingSend: online with the throttle window elapsed or
	// never started; the dispatch guard will fire on the next tick.
	StatusOnlinePendingSend

	// StatusOnlineThrottled: online but within the throttle window since
	// the last dispatch.
	StatusOnlineThrottled
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusOffline:
		return "offline"
	case StatusOnlinePendingSend:
		return "online_pending_send"
	case StatusOnlineThrottled:
		return "online_throttled"
	default:
		return "unknown"
	}
}

// AccountState tracks one configured target for the lifetime of the
// process. TargetID is the durable identity key; DisplayName is cosmetic
// and refreshed from each poll, never compared.
type AccountState struct {
	TargetID    string
	DisplayName string
	Code        string

	Status Status

	// LastDispatch is the throttle anchor. The zero value means "never
	// dispatched while continuously online": it is cleared whenever the
	// account is observed offline, which guarantees the next online
	// sighting dispatches immediately instead of waiting out a stale
	// window.
	LastDispatch time.Time

	// LastChannel is the most recently verified channel, kept across
	// polls until a newer verification replaces it.
	LastChannel string
}

// Online reports whether the account is in either online state.
func (a *AccountState) Online() bool {
	return a.Status != StatusOffline
}

// Observe applies one poll result.
func (a *AccountState) Observe(rec presence.Record, now time.Time, sendInterval time.Duration) {
	if !rec.Online {
		a.Status = StatusOffline
		a.LastDispatch = time.Time{}
		return
	}

	if rec.Name != "" {
		a.DisplayName = rec.Name
	}
	if rec.Code != "" {
		a.Code = rec.Code
	}

	if a.throttleElapsed(now, sendInterval) {
		a.Status = StatusOnlinePendingSend
	} else {
		a.Status = StatusOnlineThrottled
	}
}

// DispatchDue is the guard condition for dispatching: online, with the
// throttle window elapsed. Evaluated against wall-clock time every tick,
// not only on poll ticks.
func (a *AccountState) DispatchDue(now time.Time, sendInterval time.Duration) bool {
	return a.Status != StatusOffline && a.throttleElapsed(now, sendInterval)
}

// MarkDispatched starts a new throttle window. Called after the send
// completes, before verification: a verification miss does not retract the
// dispatch.
func (a *AccountState) MarkDispatched(now time.Time) {
	a.LastDispatch = now
	a.Status = StatusOnlineThrottled
}

// RecordChannel stores a verified channel number.
func (a *AccountState) RecordChannel(channel string) {
	a.LastChannel = channel
}

func (a *AccountState) throttleElapsed(now time.Time, sendInterval time.Duration) bool {
	return a.LastDispatch.IsZero() || now.Sub(a.LastDispatch) >= sendInterval
}
