package wiki

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"randomwiki/pkg/relay"
)

// supportedLanguage is one locale users can read in.
type supportedLanguage struct {
	Code string
	Name string
	Flag string
}

var supportedLanguages = []supportedLanguage{
	{Code: "en", Name: "English", Flag: "🇬🇧"},
	{Code: "es", Name: "Spanish", Flag: "🇪🇸"},
	{Code: "fr", Name: "French", Flag: "🇫🇷"},
	{Code: "de", Name: "German", Flag: "🇩🇪"},
	{Code: "it", Name: "Italian", Flag: "🇮🇹"},
	{Code: "pt", Name: "Portuguese", Flag: "🇵🇹"},
	{Code: "ru", Name: "Russian", Flag: "🇷🇺"},
	{Code: "ja", Name: "Japanese", Flag: "🇯🇵"},
}

func languageName(code string) (string, bool) {
	for _, supported := range supportedLanguages {
		if supported.Code == code {
			return supported.Name, true
		}
	}

	return "", false
}

// clientLocale maps a client language tag such as "pt-BR" to a supported locale.
func clientLocale(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	tag, err := language.Parse(code)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	if _, ok := languageName(base.String()); !ok {
		return "", false
	}

	return base.String(), true
}

// resolveLocale picks the locale content is fetched in for one event.
func (m *Module) resolveLocale(event *relay.Event) string {
	if locale, ok := m.locales.Lookup(ownerKey(event)); ok {
		return locale
	}
	if locale, ok := clientLocale(event.Actor.LanguageCode); ok {
		return locale
	}

	return m.cfg.DefaultLocale
}

// ownerKey identifies whose history and locale an event touches.
func ownerKey(event *relay.Event) string {
	return event.Conversation.ID
}

// formatViews renders a view count with the locale's digit grouping.
func formatViews(locale string, views int64) string {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}

	return message.NewPrinter(tag).Sprintf("%d", views)
}

func availableLanguagesText() string {
	lines := make([]string, 0, len(supportedLanguages))
	for _, supported := range supportedLanguages {
		lines = append(lines, supported.Code+" - "+supported.Name)
	}

	return strings.Join(lines, "\n")
}
