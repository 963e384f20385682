// Package downloader fetches snapshot archives from the publisher and
// discovers which shards have been published.
package downloader

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"slices"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/brensch/pscparquet/internal/config"
	"github.com/brensch/pscparquet/internal/partition"
	"github.com/brensch/pscparquet/internal/util"
)

// --- List of Realistic User Agents ---
var commonUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/115.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/113.0.0.0 Safari/537.36",
}

func getRandomUserAgent() string {
	return commonUserAgents[rand.Intn(len(commonUserAgents))]
}

// Client downloads files published under a base URL. It is safe for
// concurrent use; all workers share one limiter.
type Client struct {
	http    *http.Client
	baseURL *url.URL
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New builds a Client from cfg. A zero DownloadRateLimit disables throttling.
func New(cfg config.Config, logger *slog.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url %q: %w", cfg.BaseURL, err)
	}
	limit := rate.Inf
	if cfg.DownloadRateLimit > 0 {
		limit = rate.Limit(cfg.DownloadRateLimit)
	}
	return &Client{
		http:    util.DefaultHTTPClient(cfg.HTTPTimeout),
		baseURL: base,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// URL resolves fileName against the base URL.
func (c *Client) URL(fileName string) string {
	u := *c.baseURL
	u.Path = path.Join("/", u.Path, fileName)
	return u.String()
}

// Download streams {BaseURL}/{fileName} into w. Any transport failure or
// non-200 status is returned as an error; nothing is retried.
func (c *Client) Download(ctx context.Context, fileName string, w io.Writer) (int64, error) {
	target := c.URL(fileName)
	l := c.logger.With(slog.String("url", target))

	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("create request failed: %w", err)
	}
	req.Header.Set("User-Agent", getRandomUserAgent())
	req.Header.Set("Accept", "application/zip,application/octet-stream,*/*")

	start := time.Now()
	l.Debug("Starting download.")
	n, err := util.StreamFile(c.http, req, w)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err != nil {
		var se *util.StatusError
		if errors.As(err, &se) && se.Throttled() {
			l.Warn("Download failed (Rate limit/block suspected).", "error", err, slog.Duration("duration", elapsed))
		} else {
			l.Error("Download failed.", "error", err, slog.Duration("duration", elapsed))
		}
		return n, fmt.Errorf("download %s: %w", fileName, err)
	}
	l.Debug("Download complete.", slog.Int64("bytes", n), slog.Duration("duration", elapsed))
	return n, nil
}

// DiscoverPartitions reads the listing page and returns the shard IDs
// published for date, ordered by shard number.
func (c *Client) DiscoverPartitions(ctx context.Context, pageURL string, date time.Time) ([]partition.ID, error) {
	l := c.logger.With(slog.String("page_url", pageURL), slog.String("date", date.Format(partition.DateLayout)))

	links, err := c.fetchArchiveLinks(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	want := date.Format(partition.DateLayout)
	seen := make(map[partition.ID]bool)
	var ids []partition.ID
	for _, link := range links {
		linkDate, id, err := partition.ParseArchiveName(path.Base(link))
		if err != nil {
			l.Debug("Ignoring unrelated link.", "link", link)
			continue
		}
		if linkDate.Format(partition.DateLayout) != want || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	slices.SortStableFunc(ids, func(a, b partition.ID) int {
		sa, _ := a.Shard()
		sb, _ := b.Shard()
		return cmp.Compare(sa, sb)
	})
	l.Info("Discovered partitions.", slog.Int("count", len(ids)))
	return ids, nil
}

// LatestSnapshotDate returns the newest snapshot date linked from the listing page.
func (c *Client) LatestSnapshotDate(ctx context.Context, pageURL string) (time.Time, error) {
	links, err := c.fetchArchiveLinks(ctx, pageURL)
	if err != nil {
		return time.Time{}, err
	}
	var latest time.Time
	for _, link := range links {
		d, _, err := partition.ParseArchiveName(path.Base(link))
		if err == nil && d.After(latest) {
			latest = d
		}
	}
	if latest.IsZero() {
		return time.Time{}, fmt.Errorf("no snapshot archives linked from %s", pageURL)
	}
	return latest, nil
}

func (c *Client) fetchArchiveLinks(ctx context.Context, pageURL string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", getRandomUserAgent())

	var body bytes.Buffer
	if _, err := util.StreamFile(c.http, req, &body); err != nil {
		return nil, fmt.Errorf("discover GET %s: %w", pageURL, err)
	}
	root, err := html.Parse(&body)
	if err != nil {
		return nil, fmt.Errorf("discover parse HTML %s: %w", pageURL, err)
	}
	return util.ArchiveLinks(root, req.URL, ".zip"), nil
}
