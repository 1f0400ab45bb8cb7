package fetch

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserTransport renders pages in headless Chrome. It is slower than
// HTTPTransport but passes the JavaScript checks some marketplaces put in
// front of their listing pages. Status and headers of the main document are
// reported so the Fetcher classifies failures the same way.
type BrowserTransport struct {
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
	timeout       time.Duration
}

// NewBrowserTransport starts a Chrome allocator with a fresh profile, so one
// instance is one browser session. The process is launched lazily on the
// first Get.
func NewBrowserTransport(chromeBin string, timeout time.Duration) *BrowserTransport {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(DefaultHeaders.Get("User-Agent")),
	)
	if bin := FindChromeBinary(chromeBin); bin != "" {
		opts = append(opts, chromedp.ExecPath(bin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	return &BrowserTransport{
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		timeout:       timeout,
	}
}

func (b *BrowserTransport) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	extra := network.Headers{}
	for k := range header {
		if strings.EqualFold(k, "User-Agent") {
			continue
		}
		extra[k] = header.Get(k)
	}

	if err := chromedp.Run(tabCtx, network.Enable(), network.SetExtraHTTPHeaders(extra)); err != nil {
		return nil, fmt.Errorf("browser: set headers: %w", err)
	}

	nav, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(rawURL))
	if err != nil {
		return nil, fmt.Errorf("browser: navigate: %w", err)
	}

	var html string
	if err := chromedp.Run(tabCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("browser: read document: %w", err)
	}

	out := &Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: html}
	if nav != nil {
		out.StatusCode = int(nav.Status)
		for k, v := range nav.Headers {
			out.Header.Set(k, fmt.Sprint(v))
		}
	}
	return out, nil
}

// Close shuts down the browser and its allocator.
func (b *BrowserTransport) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

// FindChromeBinary locates a Chrome/Chromium binary, preferring the explicit path.
func FindChromeBinary(explicit string) string {
	if explicit != "" {
		return explicit
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
