package wiki

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"randomwiki/pkg/content"
	"randomwiki/pkg/relay"
)

const (
	summaryRuneLimit   = 3000
	captionRuneLimit   = 1000
	historyDateLayout  = "2006-01-02"
	featuredDateLayout = "2006-01-02"
)

const (
	textSearchPrompt     = "❌ Please provide a search term. Example: /search Albert Einstein"
	textSearching        = "🔍 Searching..."
	textNoResults        = "❌ No results found. Try a different search term."
	textSearchFailed     = "❌ Error searching Wikipedia. Please try again later."
	textRandomProgress   = "🔄 Fetching random article..."
	textRandomFailed     = "❌ Error fetching random article. Please try again."
	textFeaturedProgress = "🔄 Fetching today's featured article..."
	textFeaturedEnglish  = "❌ Featured articles are only available in English. Please use /setlang en to switch to English."
	textFeaturedFailed   = "❌ Error fetching today's featured article. Please try again later."
	textHistoryEmpty     = "📚 Your reading history is empty.\n\nTry getting a random article with 🎲!"
	textSharePrompt      = "❌ Please provide an article title. Example: /share Albert Einstein"
	textShareFailed      = "Failed to share article"
	textShareAnswer      = "📤 Article shared successfully!"
	textSharedPrompt     = "❌ Please provide a share code. Example: /shared lz2k9x0a1b2c3d4"
	textShareUnknown     = "❌ This share code is invalid or has expired."
	textGenericError     = "❌ An error occurred. Please try again later."
	textCallbackError    = "❌ An error occurred"
	textInvalidLanguage  = "❌ Invalid language code. Available languages:\n"
	textCallbackNoLang   = "❌ Invalid language code"
)

func renderWelcome() *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Bold("🎉 Welcome to RandomWiki Bot!").
		Plain("\n\nExplore Wikipedia articles with ease:\n\n" +
			"• Get random articles 🎲\n" +
			"• Search for specific topics 🔍\n" +
			"• View trending articles 📈\n" +
			"• Track your reading history 📚\n" +
			"• Share interesting finds 📤\n\n" +
			"Use the keyboard below to get started! 👇")

	return builder
}

func renderSearchHowTo() *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Bold("🔎 How to search:").
		Plain("\nUse ").
		Code("/search").
		Plain(" followed by your search term.\n\nExample: ").
		Code("/search Albert Einstein")

	return builder
}

func renderLanguagePrompt() *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Bold("🌍 Select your preferred language:")

	return builder
}

func renderLanguageChanged(name string) *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Plain("🌍 Language changed to ").
		Bold(name).
		Plain("\nTry getting a random article!")

	return builder
}

func renderProgress(text string) *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Bold(text)

	return builder
}

// renderArticle formats one article with its summary, link and share hint.
func renderArticle(title string, summary string, articleURL string) *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	appendArticle(builder, title, summary, articleURL)

	return builder
}

func renderSharedArticle(token content.ShareToken, summary string, articleURL string) *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Plain("📤 An article was shared with you\n\n")
	appendArticle(builder, token.Article, summary, articleURL)

	return builder
}

func appendArticle(builder *relay.TextBuilder, title string, summary string, articleURL string) {
	builder.Plain("📖 ").
		Bold(title).
		Plain("\n\n" + truncateRunes(summary, summaryRuneLimit) + "\n\n🔗 ").
		Link("Read full article", articleURL).
		Plain("\n\nShare this article: /share " + title)
}

// renderFeatured formats the daily featured article. Photo captions get a
// shorter extract.
func renderFeatured(date time.Time, article content.FeaturedArticle, asCaption bool) *relay.TextBuilder {
	limit := summaryRuneLimit
	if asCaption {
		limit = max(captionRuneLimit-utf8.RuneCountInString(article.Title)-80, 1)
	}

	builder := &relay.TextBuilder{}
	builder.Plain(fmt.Sprintf("📌 Today's Featured Article (%s):\n\n", date.Format(featuredDateLayout))).
		Bold(article.Title).
		Plain("\n\n" + truncateRunes(article.Extract, limit) + "\n\n🔗 ").
		Link("Read full article", article.URL)

	return builder
}

func renderSearchResults(term string, results []content.SearchResult) *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Plain("🔍 Search results for \"" + term + "\":")
	for _, result := range results {
		builder.Plain("\n\n📑 ").
			Bold(result.Title).
			Plain("\n" + result.Snippet + "\n🔗 " + result.URL)
	}

	return builder
}

func renderTrending(locale string, articles []content.TrendingArticle) *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Bold("📈 Trending Articles Today")
	for index, article := range articles {
		builder.Plain("\n\n" + rankEmoji(index) + " ").
			Bold(article.Title).
			Plain("\n└ " + formatViews(locale, article.Views) + " views")
	}

	return builder
}

func rankEmoji(index int) string {
	switch index {
	case 0:
		return "🏆"
	case 1:
		return "🥈"
	case 2:
		return "🥉"
	default:
		return "📊"
	}
}

func renderHistory(entries []content.HistoryEntry, pageSize int) *relay.TextBuilder {
	builder := &relay.TextBuilder{}
	builder.Bold("📚 Your Recent Reading History")
	for index, entry := range entries {
		builder.Plain(fmt.Sprintf("\n\n%d. ", index+1)).
			Bold(entry.Title).
			Plain("\n└ Read on: " + entry.ViewedAt.UTC().Format(historyDateLayout))
	}
	builder.Plain("\n\n").Italic(fmt.Sprintf("Showing last %d articles", pageSize))

	return builder
}

// renderShareLink tells the sharer how others redeem the token. The link
// line is left out when no public base is known.
func renderShareLink(title string, linkBase string, id string) string {
	var text strings.Builder
	text.WriteString("📤 Share this article:\n")
	text.WriteString(title)
	if linkBase != "" {
		text.WriteString("\n\nShare link: ")
		text.WriteString(shareLink(linkBase, id))
	}
	text.WriteString("\n\nOthers can access this article by clicking the link or starting the bot and entering the code: ")
	text.WriteString(id)

	return text.String()
}

func shareLink(linkBase string, id string) string {
	return strings.TrimRight(linkBase, "/") + "?start=" + sharePayloadPrefix + id
}

func renderInvalidLanguage() string {
	return textInvalidLanguage + availableLanguagesText()
}

// truncateRunes shortens text to at most limit runes, marking the cut.
func truncateRunes(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	runes := []rune(text)

	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
