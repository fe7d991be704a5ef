package wikipedia

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"randomwiki/pkg/content"

	"github.com/tidwall/gjson"
)

// DefaultSearchLimit is used when Search receives a non-positive limit.
const DefaultSearchLimit = 5

// RandomTitle returns the title of one random main-namespace article.
func (c *Client) RandomTitle(ctx context.Context, locale string) (string, error) {
	params := url.Values{}
	params.Set("list", "random")
	params.Set("rnnamespace", "0")
	params.Set("rnlimit", "1")

	result, err := c.query(ctx, operationRandom, locale, params)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(result.Get("query.random.0.title").String())
	if title == "" {
		return "", fmt.Errorf("wikipedia %s: %w", operationRandom, content.ErrNotFound)
	}

	return title, nil
}

// Summary returns the plain-text introduction of title.
func (c *Client) Summary(ctx context.Context, title string, locale string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("wikipedia %s: %w", operationSummary, content.ErrEmptyTitle)
	}

	params := url.Values{}
	params.Set("prop", "extracts")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("redirects", "1")
	params.Set("titles", title)

	result, err := c.query(ctx, operationSummary, locale, params)
	if err != nil {
		return "", err
	}

	// pages is keyed by page id, or "-1" when the title does not exist.
	var extract string
	result.Get("query.pages").ForEach(func(_, page gjson.Result) bool {
		if page.Get("missing").Exists() || page.Get("invalid").Exists() {
			return false
		}
		extract = strings.TrimSpace(page.Get("extract").String())
		return false
	})
	if extract == "" {
		return "", fmt.Errorf("wikipedia %s %q: %w", operationSummary, title, content.ErrNotFound)
	}

	return extract, nil
}

// Search runs a full-text search and returns up to limit hits with plain-text snippets.
func (c *Client) Search(ctx context.Context, term string, locale string, limit int) ([]content.SearchResult, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("wikipedia %s: %w", operationSearch, ErrEmptyQuery)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	params := url.Values{}
	params.Set("list", "search")
	params.Set("srsearch", term)
	params.Set("srlimit", strconv.Itoa(limit))
	params.Set("srprop", "snippet")

	result, err := c.query(ctx, operationSearch, locale, params)
	if err != nil {
		return nil, err
	}

	hits := result.Get("query.search").Array()
	results := make([]content.SearchResult, 0, len(hits))
	for _, hit := range hits {
		title := strings.TrimSpace(hit.Get("title").String())
		if title == "" {
			continue
		}
		results = append(results, content.SearchResult{
			Title:   title,
			Snippet: plainSnippet(hit.Get("snippet").String()),
			URL:     c.ArticleURL(locale, title),
		})
		if len(results) == limit {
			break
		}
	}

	return results, nil
}

func (c *Client) query(ctx context.Context, operation string, locale string, params url.Values) (gjson.Result, error) {
	if err := ValidateLocale(locale); err != nil {
		return gjson.Result{}, fmt.Errorf("wikipedia %s: %w", operation, err)
	}

	params.Set("action", "query")
	params.Set("format", "json")
	endpoint := c.site(locale) + "/w/api.php?" + params.Encode()

	result, err := c.fetchJSON(ctx, operation, endpoint)
	if err != nil {
		return gjson.Result{}, err
	}
	if apiErr := result.Get("error.info"); apiErr.Exists() {
		return gjson.Result{}, fmt.Errorf("wikipedia %s: api error: %s", operation, apiErr.String())
	}

	return result, nil
}
