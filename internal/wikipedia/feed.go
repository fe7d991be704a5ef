package wikipedia

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"randomwiki/pkg/content"

	"github.com/tidwall/gjson"
)

// MostRead returns the top limit articles of the most-read ranking.
//
// The feed for the current UTC day is published with a delay, so an empty
// ranking falls back to the previous day.
func (c *Client) MostRead(ctx context.Context, locale string, limit int) ([]content.TrendingArticle, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	today := c.clock().UTC()
	var lastErr error
	for _, date := range []time.Time{today, today.AddDate(0, 0, -1)} {
		feed, err := c.featuredFeed(ctx, operationMostRead, locale, date)
		if err != nil {
			if errors.Is(err, content.ErrNotFound) {
				lastErr = err
				continue
			}
			return nil, err
		}

		articles := c.parseMostRead(feed.Get("mostread.articles"), locale, limit)
		if len(articles) > 0 {
			return articles, nil
		}
		lastErr = fmt.Errorf("wikipedia %s %s: %w", operationMostRead, date.Format(time.DateOnly), content.ErrNotFound)
	}

	return nil, lastErr
}

// Featured returns the featured article for date.
func (c *Client) Featured(ctx context.Context, locale string, date time.Time) (content.FeaturedArticle, error) {
	feed, err := c.featuredFeed(ctx, operationFeatured, locale, date)
	if err != nil {
		return content.FeaturedArticle{}, err
	}

	tfa := feed.Get("tfa")
	title := articleTitle(tfa)
	if !tfa.Exists() || title == "" {
		return content.FeaturedArticle{}, fmt.Errorf(
			"wikipedia %s %s: %w", operationFeatured, date.Format(time.DateOnly), content.ErrNotFound,
		)
	}

	articleURL := tfa.Get("content_urls.desktop.page").String()
	if articleURL == "" {
		articleURL = c.ArticleURL(locale, title)
	}

	return content.FeaturedArticle{
		Title:        title,
		Extract:      strings.TrimSpace(tfa.Get("extract").String()),
		ThumbnailURL: tfa.Get("thumbnail.source").String(),
		URL:          articleURL,
	}, nil
}

func (c *Client) featuredFeed(ctx context.Context, operation string, locale string, date time.Time) (gjson.Result, error) {
	if err := ValidateLocale(locale); err != nil {
		return gjson.Result{}, fmt.Errorf("wikipedia %s: %w", operation, err)
	}

	endpoint := fmt.Sprintf("%s/api/rest_v1/feed/featured/%s", c.site(locale), date.UTC().Format("2006/01/02"))

	return c.fetchJSON(ctx, operation, endpoint)
}

func (c *Client) parseMostRead(list gjson.Result, locale string, limit int) []content.TrendingArticle {
	articles := make([]content.TrendingArticle, 0, limit)
	for _, entry := range list.Array() {
		title := articleTitle(entry)
		if title == "" {
			continue
		}
		articles = append(articles, content.TrendingArticle{
			Rank:  len(articles) + 1,
			Title: title,
			Views: entry.Get("views").Int(),
			URL:   c.ArticleURL(locale, title),
		})
		if len(articles) == limit {
			break
		}
	}

	return articles
}

// articleTitle prefers the display title over the underscored page key.
func articleTitle(page gjson.Result) string {
	for _, path := range []string{"normalizedtitle", "titles.normalized", "title"} {
		if value := strings.TrimSpace(page.Get(path).String()); value != "" {
			return strings.ReplaceAll(value, "_", " ")
		}
	}

	return ""
}
