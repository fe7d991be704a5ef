package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gotd/td/session"
	gotdtelegram "github.com/gotd/td/telegram"
)

const (
	defaultRuntimeSessionFile  = ".cache/telegram/session.json"
	defaultRuntimePublishDelay = 2 * time.Second
	defaultRuntimeAuthTimeout  = time.Minute
	defaultRuntimeUpdateBuffer = 256
)

// Credentials carries the secrets needed to log in as a bot.
//
// They are kept out of the JSON runtime config and sourced from the environment.
type Credentials struct {
	AppID    int
	AppHash  string
	BotToken string
}

// Validate checks that every credential is present.
func (c Credentials) Validate() error {
	if c.AppID <= 0 {
		return fmt.Errorf("app id must be > 0")
	}
	if strings.TrimSpace(c.AppHash) == "" {
		return fmt.Errorf("app hash is required")
	}
	if strings.TrimSpace(c.BotToken) == "" {
		return fmt.Errorf("bot token is required")
	}

	return nil
}

type runtimeConfig struct {
	PublishTimeout string `json:"publish_timeout"`
	UpdateBuffer   int    `json:"update_buffer"`
	AuthTimeout    string `json:"auth_timeout"`
	SessionFile    string `json:"session_file"`
	Username       string `json:"username"`
}

type parsedRuntimeConfig struct {
	publishTimeout time.Duration
	updateBuffer   int
	authTimeout    time.Duration
	sessionFile    string
	username       string
}

// Runtime bundles the pieces built for one Telegram bot connection.
type Runtime struct {
	Driver     *Driver
	Dispatcher *OutboundDispatcher
	Identity   *BotIdentity
}

// BuildRuntime builds one telegram driver runtime from credentials and an
// optional JSON tuning payload.
func BuildRuntime(
	name string,
	logger *slog.Logger,
	credentials Credentials,
	rawConfig []byte,
) (Runtime, error) {
	if err := credentials.Validate(); err != nil {
		return Runtime{}, fmt.Errorf("validate telegram credentials: %w", err)
	}
	cfg, err := parseRuntimeConfig(rawConfig)
	if err != nil {
		return Runtime{}, fmt.Errorf("parse telegram runtime config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	updateChannel := NewGotdUpdateChannel(cfg.updateBuffer)
	sessionStorage, err := newGotdSessionStorage(cfg.sessionFile)
	if err != nil {
		return Runtime{}, fmt.Errorf("new gotd session storage: %w", err)
	}

	client := gotdtelegram.NewClient(credentials.AppID, credentials.AppHash, gotdtelegram.Options{
		UpdateHandler:  updateChannel,
		SessionStorage: sessionStorage,
	})

	identity := NewBotIdentity(cfg.username)
	peers := NewPeerCache()
	source, err := NewGotdBotSource(
		gotdAuthenticatedClient{
			client: client,
			authenticate: func(ctx context.Context) error {
				return authenticateGotdBot(ctx, logger, client, credentials.BotToken, identity, cfg)
			},
		},
		updateChannel,
		NewDefaultGotdUpdateMapper(WithPeerCache(peers)),
		func(ctx context.Context, err error) {
			logger.WarnContext(ctx, "telegram update mapping failed", "error", err)
		},
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("new gotd bot source: %w", err)
	}

	driver, err := NewDriver(
		source,
		NewDefaultDecoder(),
		WithName(name),
		WithPublishTimeout(cfg.publishTimeout),
		WithBotIdentity(identity),
		WithErrorHandler(func(ctx context.Context, err error) {
			logger.ErrorContext(ctx, "telegram driver async error", "error", err)
		}),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("new telegram driver: %w", err)
	}

	dispatcher, err := NewOutboundDispatcher(
		client,
		peers,
		WithOutboundTimeout(cfg.publishTimeout),
		WithOutboundLogger(logger),
	)
	if err != nil {
		return Runtime{}, fmt.Errorf("new telegram outbound dispatcher: %w", err)
	}

	return Runtime{
		Driver:     driver,
		Dispatcher: dispatcher,
		Identity:   identity,
	}, nil
}

func parseRuntimeConfig(raw []byte) (parsedRuntimeConfig, error) {
	cfg := parsedRuntimeConfig{
		publishTimeout: defaultRuntimePublishDelay,
		updateBuffer:   defaultRuntimeUpdateBuffer,
		authTimeout:    defaultRuntimeAuthTimeout,
		sessionFile:    defaultRuntimeSessionFile,
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return cfg, nil
	}

	var parsed runtimeConfig
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return parsedRuntimeConfig{}, fmt.Errorf("unmarshal: %w", err)
	}

	if parsed.UpdateBuffer > 0 {
		cfg.updateBuffer = parsed.UpdateBuffer
	}
	if sessionFile := strings.TrimSpace(parsed.SessionFile); sessionFile != "" {
		cfg.sessionFile = sessionFile
	}
	cfg.username = strings.TrimSpace(parsed.Username)

	var err error
	if cfg.publishTimeout, err = parsePositiveDuration("publish_timeout", parsed.PublishTimeout, cfg.publishTimeout); err != nil {
		return parsedRuntimeConfig{}, err
	}
	if cfg.authTimeout, err = parsePositiveDuration("auth_timeout", parsed.AuthTimeout, cfg.authTimeout); err != nil {
		return parsedRuntimeConfig{}, err
	}

	return cfg, nil
}

func parsePositiveDuration(field string, raw string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("parse %s: must be > 0", field)
	}

	return parsed, nil
}

func newGotdSessionStorage(path string) (*session.FileStorage, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return nil, fmt.Errorf("empty session file path")
	}

	absPath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return nil, fmt.Errorf("resolve absolute session file path: %w", err)
	}
	sessionDir := filepath.Dir(absPath)
	if err := os.MkdirAll(sessionDir, 0o700); err != nil {
		return nil, fmt.Errorf("create session directory %s: %w", sessionDir, err)
	}

	return &session.FileStorage{Path: absPath}, nil
}

type gotdAuthenticatedClient struct {
	client       *gotdtelegram.Client
	authenticate func(ctx context.Context) error
}

// Run executes client runtime and performs authentication before invoking fn.
func (c gotdAuthenticatedClient) Run(ctx context.Context, fn func(runCtx context.Context) error) error {
	if c.client == nil {
		return fmt.Errorf("run gotd authenticated client: nil client")
	}
	if c.authenticate == nil {
		return fmt.Errorf("run gotd authenticated client: nil authenticate callback")
	}
	if fn == nil {
		return fmt.Errorf("run gotd authenticated client: nil run callback")
	}

	if err := c.client.Run(ctx, func(runCtx context.Context) error {
		if err := c.authenticate(runCtx); err != nil {
			return fmt.Errorf("authenticate gotd client: %w", err)
		}
		if err := fn(runCtx); err != nil {
			return fmt.Errorf("run gotd client callback: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("run gotd authenticated client: %w", err)
	}

	return nil
}

// authenticateGotdBot logs in with the bot token unless the stored session is
// already authorized, then records the bot's own identity.
func authenticateGotdBot(
	ctx context.Context,
	logger *slog.Logger,
	client *gotdtelegram.Client,
	botToken string,
	identity *BotIdentity,
	cfg parsedRuntimeConfig,
) error {
	if client == nil {
		return fmt.Errorf("authenticate gotd bot: nil client")
	}

	authCtx, cancel := context.WithTimeout(ctx, cfg.authTimeout)
	defer cancel()

	status, err := client.Auth().Status(authCtx)
	if err != nil {
		return fmt.Errorf("check auth status: %w", err)
	}
	if status.Authorized {
		logger.InfoContext(ctx, "telegram session restored from local storage", "session_file", cfg.sessionFile)
	} else {
		if _, err := client.Auth().Bot(authCtx, botToken); err != nil {
			return fmt.Errorf("authorize bot: %w", err)
		}
		logger.InfoContext(ctx, "telegram authorized with bot token", "session_file", cfg.sessionFile)
	}

	self, err := client.Self(authCtx)
	if err != nil {
		return fmt.Errorf("resolve bot self: %w", err)
	}
	identity.set(self.ID, self.Username)
	logger.InfoContext(ctx, "telegram bot identity resolved", "bot_id", self.ID, "username", self.Username)

	return nil
}
