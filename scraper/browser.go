package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"rental-scraper/utils"
)

// BrowserFetcher renders JavaScript-only pages in headless Chrome. One
// browser process is started lazily and shared; each fetch uses its own tab.
type BrowserFetcher struct {
	chromeBin string
	userAgent string
	timeout   time.Duration
	settle    time.Duration
	logger    *utils.Logger

	once      sync.Once
	startErr  error
	browser   context.Context
	cancelAll []context.CancelFunc
}

// NewBrowserFetcher returns a fetcher using the Chrome binary at chromeBin,
// or the first one found on the system when empty.
func NewBrowserFetcher(chromeBin, userAgent string, timeout time.Duration, logger *utils.Logger) *BrowserFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &BrowserFetcher{
		chromeBin: chromeBin,
		userAgent: userAgent,
		timeout:   timeout,
		settle:    3 * time.Second,
		logger:    logger.With("browser"),
	}
}

func (b *BrowserFetcher) start() error {
	b.once.Do(func() {
		bin := findChromeBinary(b.chromeBin)
		b.logger.Info("Using browser binary: %s", bin)

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
			chromedp.UserAgent(b.userAgent),
		)
		if bin != "" {
			opts = append(opts, chromedp.ExecPath(bin))
		}

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
		// Suppress chromedp log noise
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			b.startErr = fmt.Errorf("browser: start: %w", err)
			return
		}
		b.browser = browserCtx
		b.cancelAll = []context.CancelFunc{cancelBrowser, cancelAlloc}
	})
	return b.startErr
}

// Fetch navigates a new tab to url, waits for scripts to settle, scrolls to
// trigger lazy loading and returns the rendered HTML.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	if err := b.start(); err != nil {
		return nil, &FetchError{URL: url, Cause: err}
	}

	tab, cancelTab := chromedp.NewContext(b.browser)
	defer cancelTab()
	tab, cancelTimeout := context.WithTimeout(tab, b.timeout)
	defer cancelTimeout()

	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var html string
	err := chromedp.Run(tab,
		chromedp.Navigate(url),
		chromedp.Sleep(b.settle),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if tab.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, &FetchError{URL: url, Cause: err}
	}
	return &Page{URL: url, StatusCode: 200, HTML: html, FetchedAt: time.Now()}, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	for _, cancel := range b.cancelAll {
		cancel()
	}
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
