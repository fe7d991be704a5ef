package wiki

import (
	"context"
	"fmt"
	"strings"

	"randomwiki/pkg/relay"
)

const (
	startCommandName    = "start"
	randomCommandName   = "randomwiki"
	searchCommandName   = "search"
	setLangCommandName  = "setlang"
	todayCommandName    = "today"
	historyCommandName  = "history"
	shareCommandName    = "share"
	sharedCommandName   = "shared"
	trendingCommandName = "trending"

	// sharePayloadPrefix marks a /start deep-link payload that redeems a share token.
	sharePayloadPrefix = "share_"
	englishLocale      = "en"
)

// commandRoute binds one registered command to its handler. Routes with a
// feature are dropped when that feature is disabled.
type commandRoute struct {
	feature Feature
	spec    relay.CommandSpec
	handle  func(ctx context.Context, event *relay.Event) error
}

func (m *Module) commandRoutes() []commandRoute {
	return []commandRoute{
		{
			spec:   ordinaryCommand(startCommandName, "Get started with the bot", ""),
			handle: m.handleStart,
		},
		{
			feature: FeatureRandom,
			spec:    ordinaryCommand(randomCommandName, "Get a random Wikipedia article", "", randomButtonLabel),
			handle:  m.handleRandom,
		},
		{
			feature: FeatureSearch,
			spec:    ordinaryCommand(searchCommandName, "Search Wikipedia articles", "<term>", searchButtonLabel),
			handle:  m.handleSearch,
		},
		{
			feature: FeatureLocale,
			spec:    ordinaryCommand(setLangCommandName, "Set Wikipedia language", "[code]", languageButtonLabel),
			handle:  m.handleSetLang,
		},
		{
			feature: FeatureFeatured,
			spec:    ordinaryCommand(todayCommandName, "Get featured article of the day", ""),
			handle:  m.handleToday,
		},
		{
			feature: FeatureHistory,
			spec:    ordinaryCommand(historyCommandName, "View your reading history", "", historyButtonLabel),
			handle:  m.handleHistory,
		},
		{
			feature: FeatureShare,
			spec:    ordinaryCommand(shareCommandName, "Share an article", "<title>"),
			handle:  m.handleShare,
		},
		{
			feature: FeatureShare,
			spec:    ordinaryCommand(sharedCommandName, "View articles shared with you", "<code>"),
			handle:  m.handleShared,
		},
		{
			feature: FeatureTrending,
			spec:    ordinaryCommand(trendingCommandName, "View most read articles", "", trendingButtonLabel),
			handle:  m.handleTrending,
		},
	}
}

func ordinaryCommand(name string, description string, usage string, aliases ...string) relay.CommandSpec {
	return relay.CommandSpec{
		Prefix:      relay.CommandPrefixOrdinary,
		Name:        name,
		Description: description,
		Usage:       usage,
		Aliases:     aliases,
	}
}

func (m *Module) handleCommand(ctx context.Context, event *relay.Event) error {
	if event == nil || event.Command == nil || event.Kind != relay.EventKindCommandReceived {
		return nil
	}
	route, ok := m.routes[event.Command.Name]
	if !ok {
		return nil
	}

	err := route.handle(ctx, event)
	if m.observer != nil {
		m.observer.ObserveCommand(event.Command.Name, err)
	}
	if err != nil {
		return fmt.Errorf("wiki handle /%s: %w", event.Command.Name, err)
	}

	return nil
}

func (m *Module) handleStart(ctx context.Context, event *relay.Event) error {
	payload := strings.TrimSpace(event.Command.Value)
	if m.enabled[FeatureShare] && strings.HasPrefix(payload, sharePayloadPrefix) {
		return m.redeemShare(ctx, event, strings.TrimPrefix(payload, sharePayloadPrefix))
	}

	return m.sendBuilt(ctx, event, renderWelcome(), m.mainKeyboardRef(), false)
}

func (m *Module) handleRandom(ctx context.Context, event *relay.Event) error {
	if err := m.sendText(ctx, event, textRandomProgress); err != nil {
		return err
	}

	return m.sendRandomArticle(ctx, event)
}

// sendRandomArticle picks a random title, loads its summary through the
// cache and records the view.
func (m *Module) sendRandomArticle(ctx context.Context, event *relay.Event) error {
	locale := m.resolveLocale(event)
	title, err := m.source.RandomTitle(ctx, locale)
	if err != nil {
		m.logUpstreamFailure(ctx, "random_title", locale, err)
		return m.sendText(ctx, event, textRandomFailed)
	}
	summary, ok := m.articleSummary(ctx, locale, title)
	if !ok {
		return m.sendText(ctx, event, textRandomFailed)
	}

	m.recordView(event, locale, title)

	return m.sendBuilt(ctx, event,
		renderArticle(title, summary, m.source.ArticleURL(locale, title)),
		articleKeyboard(title, locale, m.enabled),
		false,
	)
}

func (m *Module) handleSearch(ctx context.Context, event *relay.Event) error {
	term := strings.TrimSpace(event.Command.Value)
	if term == "" {
		if event.Command.Alias != "" {
			return m.sendBuilt(ctx, event, renderSearchHowTo(), nil, false)
		}
		return m.sendText(ctx, event, textSearchPrompt)
	}

	if err := m.sendText(ctx, event, textSearching); err != nil {
		return err
	}

	locale := m.resolveLocale(event)
	results, err := m.source.Search(ctx, term, locale, m.cfg.SearchLimit)
	if err != nil {
		m.logUpstreamFailure(ctx, "search", locale, err)
		return m.sendText(ctx, event, textSearchFailed)
	}
	if len(results) == 0 {
		return m.sendText(ctx, event, textNoResults)
	}

	return m.sendBuilt(ctx, event, renderSearchResults(term, results), nil, true)
}

func (m *Module) handleSetLang(ctx context.Context, event *relay.Event) error {
	code := strings.ToLower(strings.TrimSpace(event.Command.Value))
	if code == "" {
		keyboard := languageKeyboard.Clone()
		return m.sendBuilt(ctx, event, renderLanguagePrompt(), &keyboard, false)
	}

	name, ok := languageName(code)
	if !ok {
		return m.sendText(ctx, event, renderInvalidLanguage())
	}
	m.locales.Set(ownerKey(event), code)

	return m.sendText(ctx, event, "✅ Language set to "+name)
}

func (m *Module) handleToday(ctx context.Context, event *relay.Event) error {
	if err := m.sendText(ctx, event, textFeaturedProgress); err != nil {
		return err
	}

	locale := m.resolveLocale(event)
	date := m.clock()
	article, err := m.source.Featured(ctx, locale, date)
	if err != nil {
		m.logUpstreamFailure(ctx, "featured", locale, err)
		if locale != englishLocale {
			return m.sendText(ctx, event, textFeaturedEnglish)
		}
		return m.sendText(ctx, event, textFeaturedFailed)
	}

	if article.ThumbnailURL != "" {
		caption := renderFeatured(date, article, true)
		photoErr := m.sendPhoto(ctx, event, article.ThumbnailURL, caption)
		if photoErr == nil {
			return nil
		}
		m.logger.WarnContext(ctx, "wiki featured photo send failed, falling back to text",
			"locale", locale,
			"error", photoErr,
		)
	}

	return m.sendBuilt(ctx, event, renderFeatured(date, article, false), nil, false)
}

func (m *Module) sendPhoto(ctx context.Context, event *relay.Event, photoURL string, caption *relay.TextBuilder) error {
	target, err := relay.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("wiki derive outbound target: %w", err)
	}
	if _, err := m.dispatcher.SendPhoto(ctx, relay.SendPhotoRequest{
		Target:   target,
		PhotoURL: photoURL,
		Caption:  caption.Text(),
		Entities: caption.Entities(),
	}); err != nil {
		return fmt.Errorf("wiki send photo: %w", err)
	}

	return nil
}

func (m *Module) handleHistory(ctx context.Context, event *relay.Event) error {
	entries := m.history.Recent(ownerKey(event), m.cfg.HistoryPageSize)
	if len(entries) == 0 {
		return m.send(ctx, event, relay.SendMessageRequest{
			Text:     textHistoryEmpty,
			Keyboard: m.mainKeyboardRef(),
		})
	}

	return m.sendBuilt(ctx, event, renderHistory(entries, m.cfg.HistoryPageSize), nil, false)
}

func (m *Module) handleShare(ctx context.Context, event *relay.Event) error {
	title := strings.TrimSpace(event.Command.Value)
	if title == "" {
		return m.sendText(ctx, event, textSharePrompt)
	}

	_, err := m.shareArticle(ctx, event, m.resolveLocale(event), title)

	return err
}

// shareArticle verifies title exists in locale, creates a token and replies
// with the deep link. shared reports whether a token was created.
func (m *Module) shareArticle(ctx context.Context, event *relay.Event, locale string, title string) (shared bool, err error) {
	if _, ok := m.articleSummary(ctx, locale, title); !ok {
		return false, m.sendText(ctx, event, textShareFailed)
	}

	token, err := m.shares.Create(title, locale, ownerKey(event))
	if err != nil {
		m.logger.WarnContext(ctx, "wiki share token create failed", "title", title, "error", err)
		return false, m.sendText(ctx, event, textShareFailed)
	}

	return true, m.sendText(ctx, event, renderShareLink(title, m.shareLinkBase(), token.ID))
}

func (m *Module) handleShared(ctx context.Context, event *relay.Event) error {
	code := strings.TrimSpace(event.Command.Value)
	code = strings.TrimPrefix(code, sharePayloadPrefix)
	if code == "" {
		return m.sendText(ctx, event, textSharedPrompt)
	}

	return m.redeemShare(ctx, event, code)
}

// redeemShare opens a shared article in the locale it was shared in.
func (m *Module) redeemShare(ctx context.Context, event *relay.Event, id string) error {
	token, ok := m.shares.Resolve(strings.TrimSpace(id))
	if !ok {
		return m.sendText(ctx, event, textShareUnknown)
	}

	summary, ok := m.articleSummary(ctx, token.Locale, token.Article)
	if !ok {
		return m.sendText(ctx, event, textGenericError)
	}
	m.recordView(event, token.Locale, token.Article)

	return m.sendBuilt(ctx, event,
		renderSharedArticle(token, summary, m.source.ArticleURL(token.Locale, token.Article)),
		articleKeyboard(token.Article, token.Locale, m.enabled),
		false,
	)
}

func (m *Module) handleTrending(ctx context.Context, event *relay.Event) error {
	if err := m.sendBuilt(ctx, event, renderProgress("🔄 Fetching trending articles..."), nil, false); err != nil {
		return err
	}

	locale := m.resolveLocale(event)
	articles, err := m.source.MostRead(ctx, locale, m.cfg.TrendingLimit)
	if err != nil || len(articles) == 0 {
		if err != nil {
			m.logUpstreamFailure(ctx, "most_read", locale, err)
		}
		return m.sendText(ctx, event, textGenericError)
	}

	return m.sendBuilt(ctx, event, renderTrending(locale, articles), nil, true)
}
