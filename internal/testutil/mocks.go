package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/hankw/whisperwatch/internal/journal"
	"github.com/hankw/whisperwatch/internal/ocr"
	"github.com/hankw/whisperwatch/internal/presence"
)

// MockScraper returns canned presence records per target ID. Targets
// without a canned record come back degraded, and FailAll degrades the
// whole batch.
type MockScraper struct {
	mu      sync.Mutex
	records map[string]presence.Record
	failAll bool
	calls   int
}

func NewMockScraper() *MockScraper {
	return &MockScraper{
		records: make(map[string]presence.Record),
	}
}

// SetRecord cans a scrape result for a target.
func (m *MockScraper) SetRecord(rec presence.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.TargetID] = rec
}

// SetOnline cans a minimal online/offline record for a target.
func (m *MockScraper) SetOnline(targetID, name, code string, online bool) {
	m.SetRecord(presence.Record{
		TargetID: targetID,
		Online:   online,
		Name:     name,
		Code:     code,
	})
}

// SetFailAll makes every subsequent scrape degrade, which CheckAll reports
// as a batch failure.
func (m *MockScraper) SetFailAll(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}

func (m *MockScraper) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockScraper) Scrape(ctx context.Context, target presence.Target) presence.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.failAll {
		return presence.Record{TargetID: target.ID, Degraded: true}
	}
	if rec, ok := m.records[target.ID]; ok {
		return rec
	}
	return presence.Record{TargetID: target.ID, Degraded: true}
}

// MockDispatcher records sent messages and can be made to fail.
type MockDispatcher struct {
	mu        sync.Mutex
	sent      []string
	err       error
	failAfter int
	delayed   error
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{sent: make([]string, 0), failAfter: -1}
}

func (m *MockDispatcher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	if err == nil {
		m.failAfter = -1
		m.delayed = nil
	}
}

// FailAfter allows n more sends to succeed, then fails every send with
// err until SetError(nil) resets it.
func (m *MockDispatcher) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.delayed = err
}

func (m *MockDispatcher) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

func (m *MockDispatcher) SendMessage(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.failAfter == 0 {
		return m.delayed
	}
	if m.failAfter > 0 {
		m.failAfter--
	}
	m.sent = append(m.sent, text)
	return nil
}

// VerifyCall records the expectations passed to one verification.
type VerifyCall struct {
	Code  string
	Stamp string
}

// MockVerifier returns a canned verdict and records the expectations it
// was asked to verify.
type MockVerifier struct {
	mu      sync.Mutex
	verdict ocr.Verdict
	err     error
	calls   []VerifyCall
}

func NewMockVerifier() *MockVerifier {
	return &MockVerifier{calls: make([]VerifyCall, 0)}
}

func (m *MockVerifier) SetVerdict(verdict ocr.Verdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdict = verdict
}

func (m *MockVerifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockVerifier) Calls() []VerifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]VerifyCall(nil), m.calls...)
}

func (m *MockVerifier) Verify(ctx context.Context, expectedCode, expectedTS string) (ocr.Verdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, VerifyCall{Code: expectedCode, Stamp: expectedTS})
	if m.err != nil {
		return ocr.Verdict{}, m.err
	}
	return m.verdict, nil
}

// StatusUpdate is one captured sink notification.
type StatusUpdate struct {
	Online       bool
	DisplayLabel string
	Code         string
	Channel      string
}

// MockSink captures status updates.
type MockSink struct {
	mu      sync.Mutex
	updates []StatusUpdate
}

func NewMockSink() *MockSink {
	return &MockSink{updates: make([]StatusUpdate, 0)}
}

func (m *MockSink) Updates() []StatusUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StatusUpdate(nil), m.updates...)
}

func (m *MockSink) UpdateStatus(online bool, displayLabel, code, channel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, StatusUpdate{
		Online:       online,
		DisplayLabel: displayLabel,
		Code:         code,
		Channel:      channel,
	})
}

// MockJournal captures buffered records without a database.
type MockJournal struct {
	mu         sync.Mutex
	dispatches []journal.DispatchRecord
	stats      []journal.PollStats
	flushes    int
}

func NewMockJournal() *MockJournal {
	return &MockJournal{
		dispatches: make([]journal.DispatchRecord, 0),
		stats:      make([]journal.PollStats, 0),
	}
}

func (m *MockJournal) BufferDispatch(rec journal.DispatchRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatches = append(m.dispatches, rec)
}

func (m *MockJournal) BufferStats(stats journal.PollStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, stats)
}

func (m *MockJournal) MaybeFlush(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

func (m *MockJournal) Dispatches() []journal.DispatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.DispatchRecord(nil), m.dispatches...)
}

func (m *MockJournal) Stats() []journal.PollStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.PollStats(nil), m.stats...)
}

func (m *MockJournal) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}
