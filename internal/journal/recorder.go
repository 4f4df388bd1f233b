package journal

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Config holds write-behind buffering settings for the recorder.
type Config struct {
	// Flush when this much time has passed since the last flush...
	FlushInterval time.Duration `toml:"flush_interval"`

	// ...or when this many records are buffered, whichever comes first.
	FlushThreshold int `toml:"flush_threshold"`

	// Write channel capacities.
	DispatchChannelSize int `toml:"dispatch_channel_size"`
	StatsChannelSize    int `toml:"stats_channel_size"`
}

// DefaultConfig returns recorder defaults.
func DefaultConfig() Config {
	return Config{
		FlushInterval:       30 * time.Second,
		FlushThreshold:      50,
		DispatchChannelSize: 1000,
		StatsChannelSize:    100,
	}
}

// validateConfig validates recorder configuration.
func validateConfig(config Config) error {
	if config.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive, got %v", config.FlushInterval)
	}
	if config.FlushThreshold <= 0 {
		return fmt.Errorf("flush_threshold must be positive, got %d", config.FlushThreshold)
	}
	if config.DispatchChannelSize <= 0 {
		return fmt.Errorf("dispatch_channel_size must be positive, got %d", config.DispatchChannelSize)
	}
	if config.StatsChannelSize <= 0 {
		return fmt.Errorf("stats_channel_size must be positive, got %d", config.StatsChannelSize)
	}
	return nil
}

// Recorder buffers dispatch records and poll stats and writes them behind
// the watcher loop. Buffer methods and MaybeFlush are called only from the
// watcher's control loop; the background writers own the database handle.
// A journal write failure is logged and dropped, never surfaced to the loop.
type Recorder struct {
	config Config
	logger *slog.Logger
	db     *DB

	dispatchBuffer    []DispatchRecord
	dispatchChannel   chan DispatchRecord
	lastDispatchFlush time.Time

	statsBuffer    []PollStats
	statsChannel   chan []PollStats
	lastStatsFlush time.Time

	wg sync.WaitGroup
}

// NewRecorder creates a recorder writing to the given journal database.
func NewRecorder(config Config, db *DB, logger *slog.Logger) (*Recorder, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid journal config: %w", err)
	}

	return &Recorder{
		config:            config,
		logger:            logger,
		db:                db,
		dispatchBuffer:    make([]DispatchRecord, 0),
		dispatchChannel:   make(chan DispatchRecord, config.DispatchChannelSize),
		lastDispatchFlush: time.Now(),
		statsBuffer:       make([]PollStats, 0),
		statsChannel:      make(chan []PollStats, config.StatsChannelSize),
		lastStatsFlush:    time.Now(),
	}, nil
}

// Start launches the background writer goroutines.
func (r *Recorder) Start() {
	r.wg.Add(2)
	go r.runDispatchWriter()
	go r.runStatsWriter()
}

// BufferDispatch adds a dispatch record to the buffer.
func (r *Recorder) BufferDispatch(rec DispatchRecord) {
	r.dispatchBuffer = append(r.dispatchBuffer, rec)
}

// BufferStats adds poll cycle stats to the buffer.
func (r *Recorder) BufferStats(stats PollStats) {
	r.statsBuffer = append(r.statsBuffer, stats)
}

// Buffered returns the current buffer depths (dispatches, stats).
func (r *Recorder) Buffered() (int, int) {
	return len(r.dispatchBuffer), len(r.statsBuffer)
}

// MaybeFlush flushes each buffer whose time or size threshold is met.
func (r *Recorder) MaybeFlush(now time.Time) {
	dispatchDue := now.Sub(r.lastDispatchFlush) >= r.config.FlushInterval ||
		len(r.dispatchBuffer) >= r.config.FlushThreshold
	if dispatchDue && len(r.dispatchBuffer) > 0 {
		if err := r.flushDispatches(now); err != nil {
			r.logger.Error("failed to flush dispatch records",
				"error", err,
				"buffered_count", len(r.dispatchBuffer))
		}
	}

	statsDue := now.Sub(r.lastStatsFlush) >= r.config.FlushInterval ||
		len(r.statsBuffer) >= r.config.FlushThreshold
	if statsDue && len(r.statsBuffer) > 0 {
		if err := r.flushStats(now); err != nil {
			r.logger.Error("failed to flush poll stats",
				"error", err,
				"buffered_count", len(r.statsBuffer))
		}
	}
}

// flushDispatches moves buffered dispatch records onto the write channel.
func (r *Recorder) flushDispatches(now time.Time) error {
	for i, rec := range r.dispatchBuffer {
		select {
		case r.dispatchChannel <- rec:
			// Successfully sent
		default:
			// Keep what did not fit for the next flush.
			r.dispatchBuffer = r.dispatchBuffer[i:]
			return fmt.Errorf("dispatch channel full, %d records still buffered", len(r.dispatchBuffer))
		}
	}

	r.dispatchBuffer = make([]DispatchRecord, 0)
	r.lastDispatchFlush = now
	return nil
}

// flushStats moves the buffered stats batch onto the write channel.
func (r *Recorder) flushStats(now time.Time) error {
	batch := r.statsBuffer

	select {
	case r.statsChannel <- batch:
		r.statsBuffer = make([]PollStats, 0)
		r.lastStatsFlush = now
		return nil
	default:
		return fmt.Errorf("stats channel full, %d stats buffered", len(batch))
	}
}

// runDispatchWriter drains dispatch records into the database.
func (r *Recorder) runDispatchWriter() {
	defer r.wg.Done()

	for rec := range r.dispatchChannel {
		if err := r.db.InsertDispatch(rec); err != nil {
			r.logger.Error("failed to write dispatch record",
				"dispatch_id", rec.ID,
				"target_id", rec.TargetID,
				"error", err)
		} else {
			r.logger.Debug("wrote dispatch record",
				"dispatch_id", rec.ID,
				"target_id", rec.TargetID)
		}
	}

	r.logger.Debug("dispatch writer shut down")
}

// runStatsWriter drains poll stats batches into the database.
func (r *Recorder) runStatsWriter() {
	defer r.wg.Done()

	for batch := range r.statsChannel {
		if err := r.db.InsertPollStats(batch); err != nil {
			// Just log, stats writes are not critical
			r.logger.Error("failed to write poll stats", "error", err)
		}
	}

	r.logger.Debug("stats writer shut down")
}

// Shutdown flushes remaining buffers, closes the write channels and waits
// for the writers to drain.
func (r *Recorder) Shutdown() error {
	r.logger.Info("starting journal shutdown",
		"buffered_dispatches", len(r.dispatchBuffer),
		"buffered_stats", len(r.statsBuffer))

	now := time.Now()
	if err := r.flushDispatches(now); err != nil {
		r.logger.Warn("failed to flush dispatch records on shutdown", "error", err)
	}
	if err := r.flushStats(now); err != nil {
		r.logger.Warn("failed to flush poll stats on shutdown", "error", err)
	}

	// Closing the channels signals "no more data"; the writers drain what
	// is left and exit.
	close(r.dispatchChannel)
	close(r.statsChannel)
	r.wg.Wait()

	r.logger.Info("journal shutdown complete")
	return nil
}

// Discard is a no-op recorder used when the journal is disabled.
type Discard struct{}

func (Discard) BufferDispatch(DispatchRecord) {}
func (Discard) BufferStats(PollStats)         {}
func (Discard) MaybeFlush(time.Time)          {}
