package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hankw/whisperwatch/internal/presence"
)

var (
	t0           = time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC)
	sendInterval = 10 * time.Minute
)

func onlineRecord(id string) presence.Record {
	return presence.Record{TargetID: id, Online: true, Name: "dancer", Code: "#aHe5L"}
}

func offlineRecord(id string) presence.Record {
	return presence.Record{TargetID: id, Online: false}
}

func TestObserveOnlineFirstTimeIsPendingSend(t *testing.T) {
	account := &AccountState{TargetID: "aHe5L"}

	account.Observe(onlineRecord("aHe5L"), t0, sendInterval)

	assert.Equal(t, StatusOnlinePendingSend, account.Status)
	assert.True(t, account.DispatchDue(t0, sendInterval))
	assert.Equal(t, "dancer", account.DisplayName)
	assert.Equal(t, "#aHe5L", account.Code)
}

func TestObserveOnlineInsideThrottleWindow(t *testing.T) {
	account := &AccountState{TargetID: "aHe5L"}

	account.Observe(onlineRecord("aHe5L"), t0, sendInterval)
	account.MarkDispatched(t0)

	later := t0.Add(sendInterval / 2)
	account.Observe(onlineRecord("aHe5L"), later, sendInterval)

	assert.Equal(t, StatusOnlineThrottled, account.Status)
	assert.False(t, account.DispatchDue(later, sendInterval))
}

func TestObserveOnlineAfterThrottleWindowElapsed(t *testing.T) {
	account := &AccountState{TargetID: "aHe5L"}

	account.MarkDispatched(t0)

	later := t0.Add(sendInterval)
	account.Observe(onlineRecord("aHe5L"), later, sendInterval)

	assert.Equal(t, StatusOnlinePendingSend, account.Status)
	assert.True(t, account.DispatchDue(later, sendInterval))
}

func TestOfflineClearsThrottleTimer(t *testing.T) {
	account := &AccountState{TargetID: "aHe5L"}

	account.Observe(onlineRecord("aHe5L"), t0, sendInterval)
	account.MarkDispatched(t0)

	// Goes offline well inside the window...
	account.Observe(offlineRecord("aHe5L"), t0.Add(time.Minute), sendInterval)
	assert.Equal(t, StatusOffline, account.Status)
	assert.True(t, account.LastDispatch.IsZero())

	// ...and coming back online dispatches immediately, long before the
	// old window would have elapsed.
	back := t0.Add(2 * time.Minute)
	account.Observe(onlineRecord("aHe5L"), back, sendInterval)
	assert.Equal(t, StatusOnlinePendingSend, account.Status)
	assert.True(t, account.DispatchDue(back, sendInterval))
}

func TestOfflineAccountIsNeverDue(t *testing.T) {
	account := &AccountState{TargetID: "aHe5L"}
	assert.False(t, account.DispatchDue(t0, sendInterval))
}

func TestObserveKeepsNameAndCodeWhenScrapeDropsThem(t *testing.T) {
	account := &AccountState{TargetID: "aHe5L"}
	account.Observe(onlineRecord("aHe5L"), t0, sendInterval)

	// A later poll that failed to extract name/code must not erase the
	// known values.
	account.Observe(presence.Record{TargetID: "aHe5L", Online: true}, t0.Add(time.Minute), sendInterval)

	assert.Equal(t, "dancer", account.DisplayName)
	assert.Equal(t, "#aHe5L", account.Code)
}

func TestRecordChannelSurvivesPolls(t *testing.T) {
	account := &AccountState{TargetID: "aHe5L"}
	account.Observe(onlineRecord("aHe5L"), t0, sendInterval)
	account.RecordChannel("7")

	account.Observe(onlineRecord("aHe5L"), t0.Add(time.Minute), sendInterval)
	assert.Equal(t, "7", account.LastChannel)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "offline", StatusOffline.String())
	assert.Equal(t, "online_pending_send", StatusOnlinePendingSend.String())
	assert.Equal(t, "online_throttled", StatusOnlineThrottled.String())
	assert.Equal(t, "unknown", Status(99).String())
}

func TestStamp(t *testing.T) {
	assert.Equal(t, "01021504", Stamp(t0))
	assert.Len(t, Stamp(time.Now()), 8)
}

func TestBuildWhispers(t *testing.T) {
	header, marker := BuildWhispers("dancer", "#aHe5L", "hello!", "01021504")
	assert.Equal(t, "/w dancer#aHe5L hello!", header)
	assert.Equal(t, "/w dancer#aHe5L <<01021504", marker)
}
