package presence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chromedp/chromedp"
)

// ChromeScraper renders profile pages in a headless browser and reads the
// presence indicator's computed style. Each scrape runs in its own browser
// context, so instances are safe for the concurrent fan-out in CheckAll.
type ChromeScraper struct {
	config Config
	logger *slog.Logger
}

// NewChromeScraper creates a scraper with validated configuration.
func NewChromeScraper(config Config, logger *slog.Logger) (*ChromeScraper, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scraper config: %w", err)
	}

	return &ChromeScraper{
		config: config,
		logger: logger,
	}, nil
}

// Scrape checks one target and returns a presence record. Extraction
// failures degrade individual fields; only a failure to render the page at
// all marks the record degraded.
func (s *ChromeScraper) Scrape(ctx context.Context, target Target) Record {
	rec := Record{TargetID: target.ID}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.config.Headless),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, s.config.ScrapeTimeout)
	defer cancelRun()

	if err := chromedp.Run(runCtx, chromedp.Navigate(target.URL)); err != nil {
		s.logger.Warn("failed to render profile page",
			"target_id", target.ID,
			"url", target.URL,
			"error", err)
		rec.Degraded = true
		return rec
	}

	// Name and code are scraped best-effort before the indicator check;
	// a profile without them still yields a usable presence result.
	rec.Name = s.elementText(runCtx, s.config.NameSelector)
	rec.Code = s.elementText(runCtx, s.config.CodeSelector)

	bg, err := s.indicatorColor(runCtx)
	if err != nil {
		s.logger.Debug("presence indicator not found, treating as offline",
			"target_id", target.ID,
			"error", err)
		return rec
	}

	rec.Online = bg == s.config.OnlineColor
	if !rec.Online {
		s.logger.Debug("indicator present but inactive",
			"target_id", target.ID,
			"background_color", bg)
	}
	return rec
}

// elementText reads the trimmed inner text of the first element matching
// the selector, bounded by the element timeout. Missing elements yield "".
func (s *ChromeScraper) elementText(ctx context.Context, selector string) string {
	ectx, cancel := context.WithTimeout(ctx, s.config.ElementTimeout)
	defer cancel()

	var text string
	err := chromedp.Run(ectx,
		chromedp.Text(selector, &text, chromedp.ByQuery),
	)
	if err != nil {
		return ""
	}
	return text
}

// indicatorColor waits for the presence indicator element and returns its
// computed background color.
func (s *ChromeScraper) indicatorColor(ctx context.Context) (string, error) {
	ectx, cancel := context.WithTimeout(ctx, s.config.ElementTimeout)
	defer cancel()

	js := fmt.Sprintf(
		`window.getComputedStyle(document.querySelector(%q)).backgroundColor`,
		s.config.IndicatorSelector)

	var bg string
	err := chromedp.Run(ectx,
		chromedp.WaitReady(s.config.IndicatorSelector, chromedp.ByQuery),
		chromedp.Evaluate(js, &bg),
	)
	if err != nil {
		return "", err
	}
	return bg, nil
}
