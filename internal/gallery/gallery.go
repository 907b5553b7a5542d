// Package gallery defines the remote-site surface the engine crawls
// against. Listing and image resolution stay behind the Source
// interface so the engine never depends on site markup; byte fetching
// is implemented here with rate limiting and retry handling.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Sentinel errors classifying remote failures.
var (
	// ErrNotFound means the resource does not exist remotely.
	ErrNotFound = errors.New("remote resource not found")
	// ErrTransient means the fetch failed in a retryable way.
	ErrTransient = errors.New("transient remote failure")
	// ErrPermanent means the fetch failed and retrying will not help.
	ErrPermanent = errors.New("permanent remote failure")
	// ErrEndOfPages signals a page past the end of a folder listing.
	ErrEndOfPages = errors.New("no more pages")
)

// Audit failure depths, recorded when a known image stops resolving.
const (
	LevelImagePage     = 1 // the image's own page is gone
	LevelURLExtraction = 2 // page exists but yields no full-res URL
	LevelFullRes       = 3 // URL exists but the content fetch fails
)

// ResolvedImage is the outcome of resolving an image ID to fetchable
// content.
type ResolvedImage struct {
	URL      string
	Filename string
}

// ResolveError reports at which depth resolution failed. It wraps one
// of the sentinel errors above.
type ResolveError struct {
	Level int
	URL   string
	Err   error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("resolve failed at level %d: %v", e.Level, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Source lists folder pages and resolves image IDs for one remote
// gallery site.
type Source interface {
	// ListPage returns the image IDs on one page of a user's folder, in
	// site order. Pages are zero-based; a page past the end returns
	// ErrEndOfPages.
	ListPage(ctx context.Context, userID, folderID int64, page int) ([]int64, error)

	// ResolveImage maps an image ID to its full-resolution URL and
	// suggested filename. Failures carry a *ResolveError with the depth
	// reached.
	ResolveImage(ctx context.Context, imageID int64) (ResolvedImage, error)

	// ListFolders returns the user's favorite folder IDs and names.
	ListFolders(ctx context.Context, userID int64) (map[int64]string, error)

	// LookupUser resolves a user name to its numeric ID.
	LookupUser(ctx context.Context, name string) (int64, error)
}

// Fetcher downloads image bytes with pacing and bounded retries.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	retries int
}

// NewFetcher builds a Fetcher. ratePerSec bounds request frequency,
// timeout bounds each attempt, maxRetries bounds transient retries.
func NewFetcher(ratePerSec float64, timeout time.Duration, maxRetries int) *Fetcher {
	if ratePerSec <= 0 {
		ratePerSec = 1.0
	}
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		retries: maxRetries,
	}
}

// Fetch downloads the content at url, retrying transient failures with
// linear backoff. Classified failures wrap the package sentinels.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrTransient) {
			return nil, err
		}
		lastErr = err
		if attempt == f.retries {
			break
		}
		log.WithError(err).Warnf("Attempt %d/%d fetching %s failed, retrying", attempt, f.retries, url)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return nil, fmt.Errorf("%w: retries exhausted: %v", ErrPermanent, lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrPermanent, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: status %d for %s", ErrNotFound, resp.StatusCode, url)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status %d for %s", ErrTransient, resp.StatusCode, url)
	default:
		return nil, fmt.Errorf("%w: status %d for %s", ErrPermanent, resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrTransient, err)
	}
	return data, nil
}

// Check probes url without downloading the body, for the deepest audit
// level. Returns nil when the content is still reachable.
func (f *Fetcher) Check(ctx context.Context, url string) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("%w: building request: %v", ErrPermanent, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d for %s", ErrNotFound, resp.StatusCode, url)
	}
	return nil
}
