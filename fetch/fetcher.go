package fetch

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"timeshare-deals/metrics"
	"timeshare-deals/utils"
)

// Options tune one Fetcher. Zero values fall back to the defaults below.
type Options struct {
	Source            string
	DelayMin          time.Duration
	DelayMax          time.Duration
	MaxRetries        int
	RequestsPerMinute int
	Cache             PageCache
	CacheTTL          time.Duration
	Namespace         string
}

const (
	defaultDelayMin   = 2 * time.Second
	defaultDelayMax   = 5 * time.Second
	defaultMaxRetries = 3
	defaultCacheTTL   = 15 * time.Minute
)

// Fetcher wraps a Transport with politeness delays, retries and an optional
// page cache. A Fetcher is owned by a single run and is not meant to be
// shared between concurrent runs.
type Fetcher struct {
	transport Transport
	opts      Options
	logger    *utils.Logger
	limiter   *rate.Limiter

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
	now    func() time.Time
}

// New builds a Fetcher around transport.
func New(transport Transport, opts Options, logger *utils.Logger) *Fetcher {
	if opts.DelayMin <= 0 && opts.DelayMax <= 0 {
		opts.DelayMin, opts.DelayMax = defaultDelayMin, defaultDelayMax
	}
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Source == "" {
		opts.Source = "unknown"
	}
	if logger == nil {
		logger = utils.NewDiscardLogger()
	}

	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}

	return &Fetcher{
		transport: transport,
		opts:      opts,
		logger:    logger,
		limiter:   rate.NewLimiter(limit, 1),
		sleep:     utils.SleepContext,
		jitter:    rand.Float64,
		now:       time.Now,
	}
}

// Close releases the transport when it holds a session, such as a browser.
func (f *Fetcher) Close() error {
	if c, ok := f.transport.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Fetch GETs rawURL with params and returns the body of the first 2xx
// response. Once MaxRetries attempts fail it returns a *Failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, params url.Values) (string, error) {
	full := rawURL
	if len(params) > 0 {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", &Failure{URL: rawURL, Class: ClassTransient, Err: err}
		}
		q := u.Query()
		for k, vals := range params {
			for _, v := range vals {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
		full = u.String()
	}

	key := CacheKey(f.opts.Namespace, full)
	if f.opts.Cache != nil {
		body, ok, err := f.opts.Cache.Get(ctx, key)
		if err != nil {
			f.logger.Warn("[fetch] cache read failed for %s: %v", full, err)
		} else if ok {
			metrics.RecordFetch(f.opts.Source, metrics.OutcomeCacheHit)
			f.logger.Debug("[fetch] cache hit %s", full)
			return body, nil
		}
	}

	last := &Failure{URL: full, Class: ClassTransient}
	max := f.opts.MaxRetries
	for attempt := 0; attempt < max; attempt++ {
		if err := f.politeDelay(ctx); err != nil {
			return "", err
		}

		last.Attempts = attempt + 1
		start := f.now()
		resp, err := f.transport.Get(ctx, full, DefaultHeaders.Clone())
		metrics.ObserveFetch(f.opts.Source, f.now().Sub(start))

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			last.Class, last.StatusCode, last.Err = ClassTransient, 0, err
			metrics.RecordFetch(f.opts.Source, metrics.OutcomeTransient)
			f.logger.Warn("[fetch] %s attempt %d/%d: %v", full, attempt+1, max, err)
			if err := f.backoffTransient(ctx, attempt); err != nil {
				return "", err
			}
			continue
		}

		class, ok := Classify(resp.StatusCode)
		if ok {
			metrics.RecordFetch(f.opts.Source, metrics.OutcomeOK)
			if f.opts.Cache != nil {
				if err := f.opts.Cache.Set(ctx, key, resp.Body, f.opts.CacheTTL); err != nil {
					f.logger.Warn("[fetch] cache write failed for %s: %v", full, err)
				}
			}
			return resp.Body, nil
		}

		last.Class, last.StatusCode, last.Err = class, resp.StatusCode, nil
		final := attempt == max-1

		switch class {
		case ClassRateLimited:
			metrics.RecordFetch(f.opts.Source, metrics.OutcomeRateLimited)
			wait := RetryAfter(resp.Header, f.now())
			f.logger.Warn("[fetch] rate limited on %s, waiting %s", full, wait)
			if !final {
				if err := f.sleep(ctx, wait); err != nil {
					return "", err
				}
			}
		case ClassBlocked:
			metrics.RecordFetch(f.opts.Source, metrics.OutcomeBlocked)
			wait := BlockedBackoff(attempt)
			f.logger.Warn("[fetch] blocked (403) on %s, backing off %s", full, wait)
			if !final {
				if err := f.sleep(ctx, wait); err != nil {
					return "", err
				}
			}
		default:
			metrics.RecordFetch(f.opts.Source, metrics.OutcomeTransient)
			f.logger.Warn("[fetch] %s attempt %d/%d: status %d", full, attempt+1, max, resp.StatusCode)
			if err := f.backoffTransient(ctx, attempt); err != nil {
				return "", err
			}
		}
	}

	metrics.RecordFetch(f.opts.Source, metrics.OutcomeExhausted)
	f.logger.Error("[fetch] giving up on %s after %d attempts", full, last.Attempts)
	return "", last
}

func (f *Fetcher) politeDelay(ctx context.Context) error {
	if err := f.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	span := f.opts.DelayMax - f.opts.DelayMin
	d := f.opts.DelayMin + time.Duration(f.jitter()*float64(span))
	return f.sleep(ctx, d)
}

func (f *Fetcher) backoffTransient(ctx context.Context, attempt int) error {
	if attempt >= f.opts.MaxRetries-1 {
		return nil
	}
	return f.sleep(ctx, TransientBackoff(attempt, f.jitter()))
}

// IsFailure reports whether err is an exhausted fetch.
func IsFailure(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}
