// Package registry queries a sparse cargo registry index to decide
// whether a crate version is visible yet.
package registry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/crateherd/crateherd/pkg/cache"
	"github.com/crateherd/crateherd/pkg/errors"
	"github.com/crateherd/crateherd/pkg/httputil"
)

// DefaultIndexURL is the sparse index for crates.io.
const DefaultIndexURL = "https://index.crates.io"

const (
	defaultPollInterval = 2 * time.Second
	defaultPollTimeout  = 300 * time.Second
)

// Client reads crate version listings from a sparse registry index.
// Responses are cached so that repeated listings within one run (and
// across runs, for file-backed caches) skip the network.
type Client struct {
	Base   string
	HTTP   *http.Client
	Cache  cache.Cache
	TTL    time.Duration
	Logger *log.Logger

	// Poll cadence for Wait. Exposed for tests; zero values fall back
	// to 2s interval and 300s timeout.
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// New creates a Client for the given index base URL. An empty base
// selects crates.io; a nil store disables caching.
func New(base string, store cache.Cache, logger *log.Logger) *Client {
	if base == "" {
		base = DefaultIndexURL
	}
	if store == nil {
		store = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Client{
		Base:   strings.TrimRight(base, "/"),
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		Cache:  store,
		TTL:    5 * time.Minute,
		Logger: logger,
	}
}

// indexPath computes the sparse index layout for a crate name: one- and
// two-character names live under "1/" and "2/", three-character names
// under "3/<first char>/", everything else under "<ab>/<cd>/".
func indexPath(name string) string {
	name = strings.ToLower(name)
	switch len(name) {
	case 0:
		return name
	case 1:
		return "1/" + name
	case 2:
		return "2/" + name
	case 3:
		return "3/" + name[:1] + "/" + name
	default:
		return name[:2] + "/" + name[2:4] + "/" + name
	}
}

type indexLine struct {
	Vers string `json:"vers"`
}

// Versions lists the published versions of a crate. A crate absent from
// the index yields an empty list. refresh bypasses the cache, which the
// publish poll loop needs to observe the upload landing.
func (c *Client) Versions(ctx context.Context, name string, refresh bool) ([]string, error) {
	key := "index:" + c.Base + ":" + strings.ToLower(name)
	if !refresh {
		if data, hit, err := c.Cache.Get(ctx, key); err == nil && hit {
			return parseIndex(data)
		}
	}

	url := c.Base + "/" + indexPath(name)
	var body []byte
	err := httputil.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return &httputil.RetryableError{Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			body, err = io.ReadAll(resp.Body)
			return err
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			body = nil
			return nil
		case resp.StatusCode >= 500:
			return &httputil.RetryableError{Err: fmt.Errorf("index returned %s", resp.Status)}
		default:
			return fmt.Errorf("index returned %s", resp.Status)
		}
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "querying index for %s", name)
	}

	if body == nil {
		return nil, nil
	}
	if err := c.Cache.Set(ctx, key, body, c.TTL); err != nil {
		c.Logger.Debug("index cache write failed", "crate", name, "error", err)
	}
	return parseIndex(body)
}

func parseIndex(data []byte) ([]string, error) {
	var versions []string
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry indexLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, errors.Wrap(errors.ErrCodeNetwork, err, "decoding index entry")
		}
		versions = append(versions, entry.Vers)
	}
	return versions, scanner.Err()
}

// IsPublished reports whether the exact version of a crate is visible
// in the index. The cached listing is consulted first; a miss triggers
// one fresh fetch before concluding the version is absent.
func (c *Client) IsPublished(ctx context.Context, name, version string) (bool, error) {
	versions, err := c.Versions(ctx, name, false)
	if err != nil {
		return false, err
	}
	if contains(versions, version) {
		return true, nil
	}

	versions, err = c.Versions(ctx, name, true)
	if err != nil {
		return false, err
	}
	return contains(versions, version), nil
}

// Wait polls the index until the version becomes visible. The interval
// and overall timeout follow the registry propagation budget; expiry is
// a publish timeout error.
func (c *Client) Wait(ctx context.Context, name, version string) error {
	interval := c.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := c.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	start := time.Now()
	logged := false
	for {
		versions, err := c.Versions(ctx, name, true)
		if err != nil {
			return err
		}
		if contains(versions, version) {
			return nil
		}
		if time.Since(start) > timeout {
			return errors.New(errors.ErrCodePublishTimeout,
				"%s %s did not appear in the index within %s", name, version, timeout)
		}
		if !logged {
			c.Logger.Info("waiting for the index", "crate", name, "version", version)
			logged = true
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func contains(versions []string, version string) bool {
	for _, v := range versions {
		if v == version {
			return true
		}
	}
	return false
}
