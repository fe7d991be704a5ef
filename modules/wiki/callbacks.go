package wiki

import (
	"context"
	"fmt"
	"strings"

	"randomwiki/pkg/relay"
)

// handleCallback routes inline button presses. Every callback query is
// answered, including ones that fail.
func (m *Module) handleCallback(ctx context.Context, event *relay.Event) error {
	if event == nil || event.Callback == nil || event.Kind != relay.EventKindCallbackReceived {
		return nil
	}

	answer, err := m.routeCallback(ctx, event)
	if err != nil && answer == "" {
		answer = textCallbackError
	}

	answerErr := m.dispatcher.AnswerCallback(ctx, relay.AnswerCallbackRequest{
		QueryID: event.Callback.QueryID,
		Text:    answer,
	})
	if err != nil {
		return fmt.Errorf("wiki handle callback %q: %w", event.Callback.Data, err)
	}
	if answerErr != nil {
		return fmt.Errorf("wiki answer callback: %w", answerErr)
	}

	return nil
}

// routeCallback runs the button action and returns the short answer text.
func (m *Module) routeCallback(ctx context.Context, event *relay.Event) (string, error) {
	data := event.Callback.Data
	switch {
	case m.enabled[FeatureLocale] && strings.HasPrefix(data, callbackLangPrefix):
		return m.selectLanguage(ctx, event, strings.TrimPrefix(data, callbackLangPrefix))
	case m.enabled[FeatureRandom] && data == callbackRandom:
		return "", m.sendRandomArticle(ctx, event)
	case m.enabled[FeatureShare] && strings.HasPrefix(data, callbackSharePrefix):
		locale, title := parseShareCallback(strings.TrimPrefix(data, callbackSharePrefix))
		if locale == "" {
			locale = m.resolveLocale(event)
		}
		shared, err := m.shareArticle(ctx, event, locale, title)
		if err != nil || !shared {
			return textCallbackError, err
		}
		return textShareAnswer, nil
	default:
		return "", nil
	}
}

func (m *Module) selectLanguage(ctx context.Context, event *relay.Event, code string) (string, error) {
	name, ok := languageName(code)
	if !ok {
		return textCallbackNoLang, nil
	}
	m.locales.Set(ownerKey(event), code)

	if err := m.sendBuilt(ctx, event, renderLanguageChanged(name), m.mainKeyboardRef(), false); err != nil {
		return "", err
	}

	return "✅ Language set to " + name, nil
}
