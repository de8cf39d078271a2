package holidays

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

// DefaultUserAgent identifies the bot to the remote page.
const DefaultUserAgent = "HolidayBot/1.0 (+https://github.com/gleb/WelcomeBot)"

// ErrFetchStatus wraps non-2xx responses.
var ErrFetchStatus = errors.New("unexpected response status")

const maxPageBytes = 8 << 20

// Fetcher downloads the holiday page markup.
type Fetcher interface {
	Fetch(ctx context.Context) (string, error)
}

// HTTPFetcher performs one GET per call. There are no retries; callers fall
// back to cached data.
type HTTPFetcher struct {
	url       string
	userAgent string
	client    *http.Client
}

func NewHTTPFetcher(url, userAgent string, timeout time.Duration) *HTTPFetcher {
	if url == "" {
		url = DefaultSourceURL
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{
		url:       url,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
	}
}

func (f *HTTPFetcher) URL() string { return f.url }

func (f *HTTPFetcher) Fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("fetch %s: %w: %s", f.url, ErrFetchStatus, resp.Status)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, maxPageBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("fetch %s: decode: %w", f.url, err)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("fetch %s: read body: %w", f.url, err)
	}
	return string(b), nil
}
