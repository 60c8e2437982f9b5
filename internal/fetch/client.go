package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"

// ErrLinkExpired marks a rejected or expired manifest URL. The export
// links are time-limited; once the vendor rejects one, retrying is
// pointless.
var ErrLinkExpired = errors.New("download link expired")

// ErrTransient marks a network or server condition that a later run
// may succeed on. In-process retries are already exhausted when this
// surfaces.
var ErrTransient = errors.New("transient fetch failure")

type Options struct {
	// MaxRetries bounds in-process retry attempts beyond the first
	// request. Zero keeps the default of 3.
	MaxRetries int
	// RetryWaitMin/Max bound the backoff between attempts. Tests
	// inject near-zero waits.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	// LimitMBps throttles body reads when positive.
	LimitMBps float64
	Timeout   time.Duration
	UserAgent string
}

// Client fetches one download descriptor's bytes. It touches neither
// the ledger nor the filesystem.
type Client struct {
	http      *retryablehttp.Client
	limiter   *rate.Limiter
	userAgent string
}

func NewClient(opts Options) *Client {
	rc := retryablehttp.NewClient()
	rc.Logger = nil
	rc.RetryMax = 3
	if opts.MaxRetries > 0 {
		rc.RetryMax = opts.MaxRetries
	}
	rc.RetryWaitMin = time.Second
	rc.RetryWaitMax = 10 * time.Second
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc.HTTPClient.Timeout = timeout
	rc.CheckRetry = checkRetry

	var limiter *rate.Limiter
	if opts.LimitMBps > 0 {
		bytesPerSec := opts.LimitMBps * 1024 * 1024
		limiter = rate.NewLimiter(rate.Limit(bytesPerSec), 256*1024)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &Client{http: rc, limiter: limiter, userAgent: userAgent}
}

// checkRetry keeps retryablehttp's default policy but never retries
// statuses that mean the link itself is dead.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if resp != nil && isExpiredStatus(resp.StatusCode) {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func isExpiredStatus(code int) bool {
	switch code {
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return true
	}
	return false
}

// Fetch retrieves the raw bytes behind one URL. Failures are
// classified: ErrLinkExpired is permanent, ErrTransient covers
// everything the next run might recover from.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if isExpiredStatus(resp.StatusCode) {
		return nil, fmt.Errorf("%w: server returned %s", ErrLinkExpired, resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: server returned %s", ErrTransient, resp.Status)
	}

	body, err := c.readAll(ctx, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}
	return body, nil
}

func (c *Client) readAll(ctx context.Context, r io.Reader) ([]byte, error) {
	if c.limiter == nil {
		return io.ReadAll(r)
	}

	var out []byte
	buf := make([]byte, 64*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if waitErr := c.limiter.WaitN(ctx, n); waitErr != nil {
				return nil, waitErr
			}
			out = append(out, buf[:n]...)
		}
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
