package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	status int
	header http.Header
	body   string
	err    error
}

type fakeTransport struct {
	mu    sync.Mutex
	steps []scripted
	urls  []string
}

func (t *fakeTransport) Get(_ context.Context, rawURL string, _ http.Header) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.urls = append(t.urls, rawURL)
	if len(t.steps) == 0 {
		return nil, errors.New("no scripted response")
	}
	s := t.steps[0]
	t.steps = t.steps[1:]
	if s.err != nil {
		return nil, s.err
	}
	h := s.header
	if h == nil {
		h = http.Header{}
	}
	return &Response{StatusCode: s.status, Header: h, Body: s.body}, nil
}

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func newTestFetcher(tr Transport, opts Options) (*Fetcher, *sleepRecorder) {
	rec := &sleepRecorder{}
	f := New(tr, opts, nil)
	f.sleep = rec.sleep
	f.jitter = func() float64 { return 0 }
	return f, rec
}

func TestFetchRateLimitedThenOK(t *testing.T) {
	tr := &fakeTransport{steps: []scripted{
		{status: 429, header: http.Header{"Retry-After": {"7"}}},
		{status: 200, body: "<html>ok</html>"},
	}}
	f, rec := newTestFetcher(tr, Options{Source: "tug", DelayMin: 2 * time.Second, DelayMax: 5 * time.Second})

	body, err := f.Fetch(context.Background(), "https://example.test/search", nil)
	require.NoError(t, err)
	assert.Equal(t, "<html>ok</html>", body)

	// delay, retry-after, delay
	assert.Equal(t, []time.Duration{2 * time.Second, 7 * time.Second, 2 * time.Second}, rec.waits)
}

func TestFetchRateLimitedDefaultsToSixtySeconds(t *testing.T) {
	tr := &fakeTransport{steps: []scripted{
		{status: 429},
		{status: 200, body: "x"},
	}}
	f, rec := newTestFetcher(tr, Options{DelayMin: time.Millisecond, DelayMax: time.Millisecond})

	_, err := f.Fetch(context.Background(), "https://example.test/", nil)
	require.NoError(t, err)
	assert.Contains(t, rec.waits, 60*time.Second)
}

func TestFetchBlockedBacksOffExponentially(t *testing.T) {
	tr := &fakeTransport{steps: []scripted{
		{status: 403},
		{status: 403},
		{status: 403},
	}}
	f, rec := newTestFetcher(tr, Options{DelayMin: time.Millisecond, DelayMax: time.Millisecond})

	_, err := f.Fetch(context.Background(), "https://example.test/", nil)
	require.Error(t, err)

	var fail *Failure
	require.True(t, errors.As(err, &fail))
	assert.Equal(t, ClassBlocked, fail.Class)
	assert.Equal(t, 3, fail.Attempts)
	assert.Equal(t, 403, fail.StatusCode)

	assert.Contains(t, rec.waits, 30*time.Second)
	assert.Contains(t, rec.waits, 60*time.Second)
	assert.NotContains(t, rec.waits, 120*time.Second, "no wait after the final attempt")
}

func TestFetchTransientErrorsExhaust(t *testing.T) {
	boom := errors.New("connection reset")
	tr := &fakeTransport{steps: []scripted{{err: boom}, {err: boom}, {err: boom}}}
	f, rec := newTestFetcher(tr, Options{DelayMin: time.Millisecond, DelayMax: time.Millisecond})

	_, err := f.Fetch(context.Background(), "https://example.test/", nil)
	require.Error(t, err)
	assert.True(t, IsFailure(err))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, tr.urls, 3)

	// three polite delays and two backoffs of 1s and 2s
	assert.Equal(t, []time.Duration{
		time.Millisecond, time.Second,
		time.Millisecond, 2 * time.Second,
		time.Millisecond,
	}, rec.waits)
}

func TestFetchServerErrorIsTransient(t *testing.T) {
	tr := &fakeTransport{steps: []scripted{{status: 500}, {status: 200, body: "fine"}}}
	f, _ := newTestFetcher(tr, Options{DelayMin: time.Millisecond, DelayMax: time.Millisecond})

	body, err := f.Fetch(context.Background(), "https://example.test/", nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", body)
}

func TestFetchEncodesParams(t *testing.T) {
	tr := &fakeTransport{steps: []scripted{{status: 200}}}
	f, _ := newTestFetcher(tr, Options{DelayMin: time.Millisecond, DelayMax: time.Millisecond})

	params := url.Values{"ForSale": {"True"}, "q": {"HGVC"}}
	_, err := f.Fetch(context.Background(), "https://example.test/search", params)
	require.NoError(t, err)
	require.Len(t, tr.urls, 1)
	assert.Equal(t, "https://example.test/search?ForSale=True&q=HGVC", tr.urls[0])
}

func TestFetchCachesWithinNamespace(t *testing.T) {
	cache := NewMemoryCache()
	tr := &fakeTransport{steps: []scripted{{status: 200, body: "first"}, {status: 200, body: "second"}}}

	f, _ := newTestFetcher(tr, Options{DelayMin: time.Millisecond, DelayMax: time.Millisecond, Cache: cache, Namespace: "run-a"})
	for i := 0; i < 2; i++ {
		body, err := f.Fetch(context.Background(), "https://example.test/", nil)
		require.NoError(t, err)
		assert.Equal(t, "first", body)
	}
	assert.Len(t, tr.urls, 1)

	other, _ := newTestFetcher(tr, Options{DelayMin: time.Millisecond, DelayMax: time.Millisecond, Cache: cache, Namespace: "run-b"})
	body, err := other.Fetch(context.Background(), "https://example.test/", nil)
	require.NoError(t, err)
	assert.Equal(t, "second", body, "a different run must not see another run's cache")
}

func TestMemoryCacheExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), "k", "v", time.Minute))
	v, ok, _ := c.Get(context.Background(), "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	now = now.Add(2 * time.Minute)
	_, ok, _ = c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestMemoryCacheSweepsExpiredRuns(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for run := 0; run < 50; run++ {
		ns := fmt.Sprintf("run-%d", run)
		for page := 0; page < 20; page++ {
			key := CacheKey(ns, fmt.Sprintf("https://example.test/resort/%d", page))
			require.NoError(t, c.Set(ctx, key, "<html></html>", time.Minute))
		}
		assert.LessOrEqual(t, c.Len(), 20, "run %d: only the live run's pages remain", run)
		now = now.Add(time.Hour)
	}
}

type closingTransport struct {
	fakeTransport
	closed int
}

func (t *closingTransport) Close() error {
	t.closed++
	return nil
}

func TestFetcherCloseReleasesSession(t *testing.T) {
	tr := &closingTransport{}
	require.NoError(t, New(tr, Options{}, nil).Close())
	assert.Equal(t, 1, tr.closed)

	assert.NoError(t, New(&fakeTransport{}, Options{}, nil).Close(), "plain transports need no release")
}

func TestFetchCancelledContext(t *testing.T) {
	tr := &fakeTransport{steps: []scripted{{status: 200}}}
	f := New(tr, Options{DelayMin: time.Hour, DelayMax: time.Hour}, nil)
	f.jitter = func() float64 { return 0 }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "https://example.test/", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.urls)
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"missing", "", 60 * time.Second},
		{"seconds", "12", 12 * time.Second},
		{"http date", now.Add(90 * time.Second).Format(http.TimeFormat), 90 * time.Second},
		{"garbage", "soon", 60 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			if got := RetryAfter(h, now); got != tt.want {
				t.Errorf("RetryAfter(%q): got %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestHTTPTransportSendsHeadersAndKeepsCookies(t *testing.T) {
	var gotUA, gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			return
		}
		gotUA = r.Header.Get("User-Agent")
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(5 * time.Second)
	_, err := tr.Get(context.Background(), srv.URL+"/login", DefaultHeaders.Clone())
	require.NoError(t, err)

	resp, err := tr.Get(context.Background(), srv.URL+"/page", DefaultHeaders.Clone())
	require.NoError(t, err)
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "body", resp.Body)
	assert.Contains(t, gotUA, "Chrome/120")
	assert.Equal(t, "abc", gotCookie)
}
