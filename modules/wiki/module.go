// Package wiki routes bot commands, inline buttons and inline queries to the
// Wikipedia content services and renders the replies.
//
// Every handler keys per-user state by conversation id. Upstream failures are
// reported to the user as retryable text and never stored.
package wiki

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"randomwiki/pkg/content"
	"randomwiki/pkg/relay"
)

// CommandObserver records the outcome of each handled command.
type CommandObserver interface {
	ObserveCommand(command string, err error)
}

// Option mutates wiki module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithCommandObserver reports command outcomes, typically to metrics.
func WithCommandObserver(observer CommandObserver) Option {
	return func(module *Module) {
		if observer != nil {
			module.observer = observer
		}
	}
}

// WithShareLinkBase configures how the public deep-link base is resolved.
//
// The function is called per share so it may depend on state that becomes
// known after startup, such as the authenticated bot username.
func WithShareLinkBase(resolve func() string) Option {
	return func(module *Module) {
		if resolve != nil {
			module.shareLinkBase = resolve
		}
	}
}

func withClock(clock func() time.Time) Option {
	return func(module *Module) {
		if clock != nil {
			module.clock = clock
		}
	}
}

// Module serves Wikipedia content through chat commands.
type Module struct {
	cfg           Config
	enabled       map[Feature]bool
	mainKeyboard  relay.Keyboard
	logger        *slog.Logger
	observer      CommandObserver
	shareLinkBase func() string
	clock         func() time.Time
	routes        map[string]commandRoute

	dispatcher relay.Dispatcher
	source     content.Source
	cache      content.Cache
	history    content.History
	shares     content.Shares
	locales    content.Locales
}

// New creates a wiki module from cfg.
func New(cfg Config, options ...Option) (*Module, error) {
	normalized, err := cfg.normalize()
	if err != nil {
		return nil, err
	}

	module := &Module{
		cfg:           normalized,
		enabled:       normalized.enabledFeatures(),
		logger:        slog.Default(),
		shareLinkBase: func() string { return "" },
		clock:         time.Now,
	}
	for _, option := range options {
		option(module)
	}
	module.mainKeyboard = buildMainKeyboard(module.enabled)
	module.routes = make(map[string]commandRoute)
	for _, route := range module.commandRoutes() {
		if route.feature != "" && !module.enabled[route.feature] {
			continue
		}
		module.routes[route.spec.Name] = route
	}

	return module, nil
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "wiki"
}

// Spec declares command, callback and inline query handlers for enabled features.
func (m *Module) Spec() relay.ModuleSpec {
	required := []string{
		relay.ServiceDispatcher,
		content.ServiceSource,
		content.ServiceCache,
		content.ServiceHistory,
		content.ServiceShares,
		content.ServiceLocales,
	}

	commands := make([]relay.CommandSpec, 0, len(m.routes))
	commandNames := make([]string, 0, len(m.routes))
	for _, route := range m.commandRoutes() {
		if _, ok := m.routes[route.spec.Name]; !ok {
			continue
		}
		commands = append(commands, route.spec)
		commandNames = append(commandNames, route.spec.Name)
	}

	handlers := []relay.ModuleHandler{
		{
			Capability: relay.Capability{
				Name:        "wiki-command-handler",
				Description: "serves random, search, featured, trending, history, language and share commands",
				Interest: relay.InterestSet{
					Kinds:          []relay.EventKind{relay.EventKindCommandReceived},
					RequireCommand: true,
					CommandNames:   commandNames,
				},
				RequiredServices: required,
			},
			Subscription: relay.NewDefaultSubscriptionSpec("wiki-commands"),
			Handler:      m.handleCommand,
		},
	}

	if prefixes := m.callbackPrefixes(); len(prefixes) > 0 {
		handlers = append(handlers, relay.ModuleHandler{
			Capability: relay.Capability{
				Name:        "wiki-callback-handler",
				Description: "answers language, random article and share button presses",
				Interest: relay.InterestSet{
					Kinds:            []relay.EventKind{relay.EventKindCallbackReceived},
					CallbackPrefixes: prefixes,
				},
				RequiredServices: required,
			},
			Subscription: relay.NewDefaultSubscriptionSpec("wiki-callbacks"),
			Handler:      m.handleCallback,
		})
	}

	if m.enabled[FeatureInline] {
		handlers = append(handlers, relay.ModuleHandler{
			Capability: relay.Capability{
				Name:        "wiki-inline-handler",
				Description: "answers inline queries with search results or trending articles",
				Interest: relay.InterestSet{
					Kinds: []relay.EventKind{relay.EventKindInlineQueryReceived},
				},
				RequiredServices: required,
			},
			Subscription: relay.NewDefaultSubscriptionSpec("wiki-inline"),
			Handler:      m.handleInlineQuery,
		})
	}

	return relay.ModuleSpec{
		Handlers: handlers,
		Commands: commands,
	}
}

// OnRegister resolves dependencies required by this module.
func (m *Module) OnRegister(_ context.Context, runtime relay.ModuleRuntime) error {
	services := runtime.Services()

	logger, err := relay.ResolveAs[*slog.Logger](services, relay.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, relay.ErrServiceNotFound):
	default:
		return fmt.Errorf("wiki resolve logger: %w", err)
	}

	if m.dispatcher, err = relay.ResolveAs[relay.Dispatcher](services, relay.ServiceDispatcher); err != nil {
		return fmt.Errorf("wiki resolve outbound dispatcher: %w", err)
	}
	if m.source, err = relay.ResolveAs[content.Source](services, content.ServiceSource); err != nil {
		return fmt.Errorf("wiki resolve content source: %w", err)
	}
	if m.cache, err = relay.ResolveAs[content.Cache](services, content.ServiceCache); err != nil {
		return fmt.Errorf("wiki resolve content cache: %w", err)
	}
	if m.history, err = relay.ResolveAs[content.History](services, content.ServiceHistory); err != nil {
		return fmt.Errorf("wiki resolve history: %w", err)
	}
	if m.shares, err = relay.ResolveAs[content.Shares](services, content.ServiceShares); err != nil {
		return fmt.Errorf("wiki resolve shares: %w", err)
	}
	if m.locales, err = relay.ResolveAs[content.Locales](services, content.ServiceLocales); err != nil {
		return fmt.Errorf("wiki resolve locales: %w", err)
	}

	return nil
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	m.logger.InfoContext(ctx, "wiki module started",
		"default_locale", m.cfg.DefaultLocale,
		"commands", len(m.routes),
		"disabled_features", m.cfg.DisabledFeatures,
	)

	return nil
}

// OnShutdown stops the module lifecycle.
func (m *Module) OnShutdown(_ context.Context) error {
	return nil
}

func (m *Module) callbackPrefixes() []string {
	prefixes := make([]string, 0, 3)
	if m.enabled[FeatureLocale] {
		prefixes = append(prefixes, callbackLangPrefix)
	}
	if m.enabled[FeatureRandom] {
		prefixes = append(prefixes, callbackRandom)
	}
	if m.enabled[FeatureShare] {
		prefixes = append(prefixes, callbackSharePrefix)
	}

	return prefixes
}

// articleSummary returns the cached body for title, fetching it on a miss.
func (m *Module) articleSummary(ctx context.Context, locale string, title string) (string, bool) {
	body, ok, err := m.cache.GetOrFetch(ctx, cacheKey(locale, title), func(ctx context.Context) (string, error) {
		return m.source.Summary(ctx, title, locale)
	})
	if err != nil {
		m.logger.WarnContext(ctx, "wiki summary fetch failed",
			"locale", locale,
			"title", title,
			"error", err,
		)
	}

	return body, ok
}

func (m *Module) recordView(event *relay.Event, locale string, title string) {
	m.history.Append(ownerKey(event), content.HistoryEntry{
		Title:    title,
		Locale:   locale,
		ViewedAt: m.clock(),
	})
}

func cacheKey(locale string, title string) string {
	return locale + "/" + title
}

func (m *Module) sendText(ctx context.Context, event *relay.Event, text string) error {
	return m.send(ctx, event, relay.SendMessageRequest{Text: text})
}

func (m *Module) sendBuilt(
	ctx context.Context,
	event *relay.Event,
	builder *relay.TextBuilder,
	keyboard *relay.Keyboard,
	disablePreview bool,
) error {
	return m.send(ctx, event, relay.SendMessageRequest{
		Text:               builder.Text(),
		Entities:           builder.Entities(),
		Keyboard:           keyboard,
		DisableLinkPreview: disablePreview,
	})
}

func (m *Module) send(ctx context.Context, event *relay.Event, request relay.SendMessageRequest) error {
	if m.dispatcher == nil {
		return fmt.Errorf("wiki send message: outbound dispatcher not configured")
	}
	target, err := relay.OutboundTargetFromEvent(event)
	if err != nil {
		return fmt.Errorf("wiki derive outbound target: %w", err)
	}
	request.Target = target
	if _, err := m.dispatcher.SendMessage(ctx, request); err != nil {
		return fmt.Errorf("wiki send message: %w", err)
	}

	return nil
}

func (m *Module) mainKeyboardRef() *relay.Keyboard {
	keyboard := m.mainKeyboard.Clone()

	return &keyboard
}

func (m *Module) logUpstreamFailure(ctx context.Context, operation string, locale string, err error) {
	m.logger.WarnContext(ctx, "wiki upstream request failed",
		"operation", operation,
		"locale", locale,
		"error", err,
	)
}

var (
	_ relay.Module          = (*Module)(nil)
	_ relay.ModuleRegistrar = (*Module)(nil)
)
