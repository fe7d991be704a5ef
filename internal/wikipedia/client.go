// Package wikipedia implements content.Source against the public MediaWiki
// action API and the Wikimedia REST feed.
//
// Every request carries its own timeout. Responses are read with gjson so the
// dynamically keyed page maps of the action API need no intermediate structs.
package wikipedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"randomwiki/pkg/content"

	"github.com/tidwall/gjson"
	"golang.org/x/text/language"
)

const (
	// DefaultRequestTimeout bounds every upstream request.
	DefaultRequestTimeout = 10 * time.Second
	// DefaultUserAgent identifies the bot to Wikimedia servers.
	DefaultUserAgent = "randomwiki-bot/1.0 (https://github.com/randomwiki/randomwiki)"

	maxResponseBytes = 4 << 20
)

const (
	operationRandom   = "random"
	operationSummary  = "summary"
	operationSearch   = "search"
	operationMostRead = "most_read"
	operationFeatured = "featured"
)

var (
	// ErrInvalidLocale indicates a locale that is not a well-formed language tag.
	ErrInvalidLocale = errors.New("wikipedia: invalid locale")
	// ErrEmptyQuery indicates a search with a blank term.
	ErrEmptyQuery = errors.New("wikipedia: empty search query")
	// ErrMalformedResponse indicates a response body that is not JSON.
	ErrMalformedResponse = errors.New("wikipedia: malformed response")
)

// RequestObserver receives one notification per upstream request.
type RequestObserver interface {
	ObserveRequest(operation string, elapsed time.Duration, err error)
}

// SiteURLFunc maps a locale to the site root, for example https://en.wikipedia.org.
type SiteURLFunc func(locale string) string

// Option mutates client configuration.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(client *Client) {
		if httpClient != nil {
			client.http = httpClient
		}
	}
}

// WithTimeout overrides DefaultRequestTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(client *Client) {
		if timeout > 0 {
			client.timeout = timeout
		}
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(userAgent string) Option {
	return func(client *Client) {
		if trimmed := strings.TrimSpace(userAgent); trimmed != "" {
			client.userAgent = trimmed
		}
	}
}

// WithSiteURL overrides how locales map to site roots.
func WithSiteURL(site SiteURLFunc) Option {
	return func(client *Client) {
		if site != nil {
			client.site = site
		}
	}
}

// WithObserver reports per-request latency and outcome.
func WithObserver(observer RequestObserver) Option {
	return func(client *Client) {
		if observer != nil {
			client.observer = observer
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(client *Client) {
		if clock != nil {
			client.clock = clock
		}
	}
}

// Client fetches articles, search results and feed data.
type Client struct {
	http      *http.Client
	timeout   time.Duration
	userAgent string
	site      SiteURLFunc
	observer  RequestObserver
	clock     func() time.Time
}

// New creates a client for the public Wikipedia sites.
func New(options ...Option) *Client {
	client := &Client{
		http:      &http.Client{},
		timeout:   DefaultRequestTimeout,
		userAgent: DefaultUserAgent,
		site:      DefaultSiteURL,
		clock:     time.Now,
	}
	for _, option := range options {
		option(client)
	}

	return client
}

// DefaultSiteURL returns https://<locale>.wikipedia.org.
func DefaultSiteURL(locale string) string {
	return "https://" + locale + ".wikipedia.org"
}

// ArticleURL returns the canonical page link for title.
func (c *Client) ArticleURL(locale string, title string) string {
	return c.site(locale) + "/wiki/" + url.PathEscape(strings.ReplaceAll(strings.TrimSpace(title), " ", "_"))
}

// ValidateLocale reports whether locale can be used as a site subdomain.
func ValidateLocale(locale string) error {
	if locale == "" {
		return fmt.Errorf("%w: empty", ErrInvalidLocale)
	}
	for _, r := range locale {
		if (r < 'a' || r > 'z') && r != '-' {
			return fmt.Errorf("%w: %q", ErrInvalidLocale, locale)
		}
	}
	if _, err := language.Parse(locale); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidLocale, locale, err)
	}

	return nil
}

func (c *Client) fetchJSON(ctx context.Context, operation string, endpoint string) (result gjson.Result, err error) {
	started := c.clock()
	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(operation, c.clock().Sub(started), err)
		}
	}()

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("wikipedia %s build request: %w", operation, err)
	}
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("Accept", "application/json")

	response, err := c.http.Do(request)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("wikipedia %s request: %w", operation, err)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode == http.StatusNotFound {
		return gjson.Result{}, fmt.Errorf("wikipedia %s: %w", operation, content.ErrNotFound)
	}
	if response.StatusCode != http.StatusOK {
		return gjson.Result{}, fmt.Errorf("wikipedia %s: unexpected status %d", operation, response.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("wikipedia %s read body: %w", operation, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("wikipedia %s: %w", operation, ErrMalformedResponse)
	}

	return gjson.ParseBytes(body), nil
}

var _ content.Source = (*Client)(nil)
