// Package content declares the Wikipedia domain types and the service
// contracts shared by the content API client, the in-memory stores and the
// bot modules.
package content

import (
	"context"
	"errors"
	"time"
)

const (
	// ServiceSource is the service registry key for the content API client.
	ServiceSource = "content.source"
	// ServiceCache is the service registry key for the article body cache.
	ServiceCache = "content.cache"
	// ServiceHistory is the service registry key for per-owner reading history.
	ServiceHistory = "content.history"
	// ServiceShares is the service registry key for the share token registry.
	ServiceShares = "content.shares"
	// ServiceLocales is the service registry key for per-owner locale selection.
	ServiceLocales = "content.locales"
)

var (
	// ErrNotFound indicates the upstream API has no content for the request.
	ErrNotFound = errors.New("content: not found")
	// ErrEmptyBody indicates an attempt to cache an empty article body.
	ErrEmptyBody = errors.New("content: empty body")
	// ErrEmptyTitle indicates an operation received an empty article title.
	ErrEmptyTitle = errors.New("content: empty title")
)

// SearchResult is one full-text search hit.
type SearchResult struct {
	Title string
	// Snippet is plain text with markup removed.
	Snippet string
	URL     string
}

// TrendingArticle is one entry of the most-read ranking.
type TrendingArticle struct {
	Rank  int
	Title string
	Views int64
	URL   string
}

// FeaturedArticle is the daily featured article.
type FeaturedArticle struct {
	Title        string
	Extract      string
	ThumbnailURL string
	URL          string
}

// HistoryEntry records one article view.
type HistoryEntry struct {
	Title    string
	Locale   string
	ViewedAt time.Time
}

// ShareToken is an immutable link between a token id and a shared article.
type ShareToken struct {
	ID        string
	Article   string
	Locale    string
	SharedBy  string
	CreatedAt time.Time
}

// Source fetches content from the upstream encyclopedia API.
//
// Every call is bounded by a timeout. Callers treat any error as absence.
type Source interface {
	RandomTitle(ctx context.Context, locale string) (string, error)
	Summary(ctx context.Context, title string, locale string) (string, error)
	Search(ctx context.Context, term string, locale string, limit int) ([]SearchResult, error)
	MostRead(ctx context.Context, locale string, limit int) ([]TrendingArticle, error)
	Featured(ctx context.Context, locale string, date time.Time) (FeaturedArticle, error)
	ArticleURL(locale string, title string) string
}

// FetchFunc loads one article body on a cache miss.
type FetchFunc func(ctx context.Context) (string, error)

// Cache stores article bodies for a bounded time.
type Cache interface {
	Get(key string) (string, bool)
	Put(key string, body string) error
	// GetOrFetch returns a cached body or loads it with fetch. Failed or empty
	// fetches are not stored; ok is false and err carries the failure when any.
	GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (body string, ok bool, err error)
}

// History keeps the most recent article views per owner.
type History interface {
	Append(owner string, entry HistoryEntry)
	Recent(owner string, limit int) []HistoryEntry
}

// Shares maps share token ids to shared articles.
type Shares interface {
	Create(article string, locale string, sharedBy string) (ShareToken, error)
	Resolve(id string) (ShareToken, bool)
}

// Locales tracks the language each owner reads in.
type Locales interface {
	// Lookup returns the explicitly selected locale for owner.
	Lookup(owner string) (string, bool)
	Set(owner string, locale string)
}
