package wiki

import (
	"strings"

	"randomwiki/modules/help"
	"randomwiki/pkg/relay"
)

const (
	randomButtonLabel   = "🎲 Random Article"
	searchButtonLabel   = "🔍 Search"
	trendingButtonLabel = "📈 Trending"
	historyButtonLabel  = "📚 History"
	languageButtonLabel = "🌍 Change Language"

	callbackRandom       = "random"
	callbackLangPrefix   = "lang_"
	callbackSharePrefix  = "share_"
	shareLocaleSeparator = ":"
)

type menuButton struct {
	label   string
	feature Feature
}

var mainMenu = [][]menuButton{
	{{label: randomButtonLabel, feature: FeatureRandom}, {label: searchButtonLabel, feature: FeatureSearch}},
	{{label: trendingButtonLabel, feature: FeatureTrending}, {label: historyButtonLabel, feature: FeatureHistory}},
	{{label: languageButtonLabel, feature: FeatureLocale}, {label: help.HelpButtonLabel}},
}

// buildMainKeyboard returns the reply keyboard with buttons for enabled features only.
func buildMainKeyboard(enabled map[Feature]bool) relay.Keyboard {
	rows := make([][]relay.Button, 0, len(mainMenu))
	for _, menuRow := range mainMenu {
		row := make([]relay.Button, 0, len(menuRow))
		for _, button := range menuRow {
			if button.feature != "" && !enabled[button.feature] {
				continue
			}
			row = append(row, relay.Button{Label: button.label})
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}

	return relay.NewReplyKeyboard(rows...)
}

// languageKeyboard offers every supported locale, two per row.
var languageKeyboard = func() relay.Keyboard {
	rows := make([][]relay.Button, 0, (len(supportedLanguages)+1)/2)
	for index := 0; index < len(supportedLanguages); index += 2 {
		end := min(index+2, len(supportedLanguages))
		row := make([]relay.Button, 0, 2)
		for _, supported := range supportedLanguages[index:end] {
			row = append(row, relay.Button{
				Label:  supported.Flag + " " + supported.Name,
				Action: callbackLangPrefix + supported.Code,
			})
		}
		rows = append(rows, row)
	}

	return relay.NewInlineKeyboard(rows...)
}()

// articleKeyboard attaches share and another-random buttons to an article
// shown in locale.
//
// The share button is omitted when the title does not fit the action limit.
func articleKeyboard(title string, locale string, enabled map[Feature]bool) *relay.Keyboard {
	row := make([]relay.Button, 0, 2)
	shareAction := shareCallbackAction(locale, title)
	if enabled[FeatureShare] && len(shareAction) <= relay.MaxActionBytes {
		row = append(row, relay.Button{Label: "📤 Share Article", Action: shareAction})
	}
	if enabled[FeatureRandom] {
		row = append(row, relay.Button{Label: "🎲 Another Random", Action: callbackRandom})
	}
	if len(row) == 0 {
		return nil
	}

	keyboard := relay.NewInlineKeyboard(row)

	return &keyboard
}

// shareCallbackAction encodes the article and the locale it was rendered in
// as share_<locale>:<title>.
func shareCallbackAction(locale string, title string) string {
	return callbackSharePrefix + locale + shareLocaleSeparator + strings.TrimSpace(title)
}

// parseShareCallback splits a share action into locale and title. Actions
// without a supported locale carry only the title.
func parseShareCallback(payload string) (locale string, title string) {
	code, rest, found := strings.Cut(payload, shareLocaleSeparator)
	if !found {
		return "", payload
	}
	if _, ok := languageName(code); !ok {
		return "", payload
	}

	return code, rest
}
