package form

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const defaultRenderTimeout = 30 * time.Second

// Browser renders live SharePoint forms in headless Chromium. Forms build
// their date pickers with script, so the static HTML is not enough.
type Browser struct {
	// Timeout bounds a whole Render call. Zero uses 30s.
	Timeout time.Duration

	// WaitSelector is awaited before the DOM is read. Empty waits for the
	// first date field.
	WaitSelector string
}

// Render navigates to url and returns the document's outer HTML once the
// date fields are present. The result can be passed to ParseDateTimes.
func (b Browser) Render(parentCtx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("form: URL is required")
	}
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	wait := b.WaitSelector
	if wait == "" {
		wait = `input[id$="` + dateInputSuffix + `"]`
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, timeout)
	defer timeoutCancel()

	var doc string
	tasks := chromedp.Tasks{
		chromedp.Navigate(url),
		chromedp.WaitReady(wait, chromedp.ByQuery),
		chromedp.OuterHTML("html", &doc, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", fmt.Errorf("form: chromedp run failed: %w", err)
	}
	return doc, nil
}
