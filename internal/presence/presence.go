package presence

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Target identifies one profile to watch. ID is the durable key used for
// account identity; the display name scraped from the page is cosmetic and
// may change between polls.
type Target struct {
	ID  string `toml:"id"`
	URL string `toml:"url"`
}

// Record is the result of one scrape of one target. All fields degrade to
// their zero values on extraction failure; a scrape never surfaces an error
// past this boundary.
type Record struct {
	TargetID string
	Online   bool
	Name     string
	Code     string

	// Degraded marks a record whose scrape failed outright (navigation
	// error, renderer unavailable) as opposed to a cleanly-observed
	// offline target.
	Degraded bool
}

// Scraper checks the presence of a single target.
type Scraper interface {
	Scrape(ctx context.Context, target Target) Record
}

// Config holds scraper settings.
type Config struct {
	// Overall bound on a single target scrape, navigation included.
	ScrapeTimeout time.Duration `toml:"scrape_timeout"`

	// Bound on the wait for the presence indicator element.
	ElementTimeout time.Duration `toml:"element_timeout"`

	// Worker pool cap for batch scrapes. Workers are purely for I/O-bound
	// render latency; each writes its own result slot.
	MaxWorkers int `toml:"max_workers"`

	Headless bool `toml:"headless"`

	// CSS selectors for the profile page, and the computed background
	// color that marks the online indicator as active.
	NameSelector      string `toml:"name_selector"`
	CodeSelector      string `toml:"code_selector"`
	IndicatorSelector string `toml:"indicator_selector"`
	OnlineColor       string `toml:"online_color"`
}

// DefaultConfig returns scraper defaults matching the known profile layout.
func DefaultConfig() Config {
	return Config{
		ScrapeTimeout:     30 * time.Second,
		ElementTimeout:    5 * time.Second,
		MaxWorkers:        5,
		Headless:          true,
		NameSelector:      ".txt_name.clamp",
		CodeSelector:      ".txt_code",
		IndicatorSelector: ".banner_user .alarm_status",
		OnlineColor:       "rgb(0, 156, 254)",
	}
}

// Validate checks scraper configuration.
func (c Config) Validate() error {
	if c.ScrapeTimeout <= 0 {
		return fmt.Errorf("scrape_timeout must be positive, got %v", c.ScrapeTimeout)
	}
	if c.ElementTimeout <= 0 {
		return fmt.Errorf("element_timeout must be positive, got %v", c.ElementTimeout)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max_workers must be positive, got %d", c.MaxWorkers)
	}
	if c.NameSelector == "" || c.CodeSelector == "" || c.IndicatorSelector == "" {
		return fmt.Errorf("all selectors must be specified")
	}
	if c.OnlineColor == "" {
		return fmt.Errorf("online_color must be specified")
	}
	return nil
}

// CheckAll scrapes every target through a bounded worker pool and returns
// the results keyed by target ID.
//
// Individual failures degrade to per-target records. Only a whole-batch
// failure returns an error: context cancellation, or every single record
// coming back degraded (renderer down, network gone). Callers retain their
// prior statuses in that case rather than forcing everything offline.
func CheckAll(ctx context.Context, scraper Scraper, targets []Target, maxWorkers int) (map[string]Record, error) {
	if len(targets) == 0 {
		return map[string]Record{}, nil
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	slots := make([]Record, len(targets))
	sem := make(chan struct{}, maxWorkers)

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			slots[i] = scraper.Scrape(ctx, target)
		}(i, target)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("presence poll cancelled: %w", err)
	}

	results := make(map[string]Record, len(slots))
	degraded := 0
	for _, rec := range slots {
		if rec.Degraded {
			degraded++
		}
		results[rec.TargetID] = rec
	}

	if degraded == len(slots) {
		return nil, fmt.Errorf("presence poll failed for all %d targets", degraded)
	}

	return results, nil
}
