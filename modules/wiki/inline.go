package wiki

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"randomwiki/pkg/content"
	"randomwiki/pkg/relay"
)

const (
	inlineCacheTime        = time.Minute
	inlineDescriptionRunes = 120
)

// handleInlineQuery answers with search results for a non-empty query and
// with trending articles otherwise. Upstream failures answer an empty list.
func (m *Module) handleInlineQuery(ctx context.Context, event *relay.Event) error {
	if event == nil || event.InlineQuery == nil || event.Kind != relay.EventKindInlineQueryReceived {
		return nil
	}

	locale := m.resolveLocale(event)
	query := strings.TrimSpace(event.InlineQuery.Query)

	var results []relay.InlineResult
	if query != "" {
		hits, err := m.source.Search(ctx, query, locale, m.cfg.SearchLimit)
		if err != nil {
			m.logUpstreamFailure(ctx, "inline_search", locale, err)
		}
		results = searchInlineResults(hits)
	} else {
		articles, err := m.source.MostRead(ctx, locale, m.cfg.TrendingLimit)
		if err != nil {
			m.logUpstreamFailure(ctx, "inline_most_read", locale, err)
		}
		results = trendingInlineResults(locale, articles)
	}

	if err := m.dispatcher.AnswerInlineQuery(ctx, relay.AnswerInlineQueryRequest{
		QueryID:   event.InlineQuery.QueryID,
		Results:   results,
		CacheTime: inlineCacheTime,
		Personal:  true,
	}); err != nil {
		return fmt.Errorf("wiki answer inline query: %w", err)
	}

	return nil
}

func searchInlineResults(hits []content.SearchResult) []relay.InlineResult {
	results := make([]relay.InlineResult, 0, len(hits))
	for index, hit := range hits {
		if strings.TrimSpace(hit.Title) == "" {
			continue
		}
		builder := &relay.TextBuilder{}
		builder.Plain("📑 ").Bold(hit.Title).Plain("\n" + hit.Snippet + "\n🔗 " + hit.URL)

		results = append(results, relay.InlineResult{
			ID:          strconv.Itoa(index),
			Title:       hit.Title,
			Description: truncateRunes(hit.Snippet, inlineDescriptionRunes),
			URL:         hit.URL,
			Text:        builder.Text(),
			Entities:    builder.Entities(),
		})
	}

	return results
}

func trendingInlineResults(locale string, articles []content.TrendingArticle) []relay.InlineResult {
	results := make([]relay.InlineResult, 0, len(articles))
	for index, article := range articles {
		if strings.TrimSpace(article.Title) == "" {
			continue
		}
		views := formatViews(locale, article.Views) + " views"
		builder := &relay.TextBuilder{}
		builder.Plain(rankEmoji(index) + " ").
			Bold(article.Title).
			Plain("\n└ " + views + "\n🔗 ").
			Link("Read full article", article.URL)

		results = append(results, relay.InlineResult{
			ID:          strconv.Itoa(index),
			Title:       rankEmoji(index) + " " + article.Title,
			Description: views,
			URL:         article.URL,
			Text:        builder.Text(),
			Entities:    builder.Entities(),
		})
	}

	return results
}
