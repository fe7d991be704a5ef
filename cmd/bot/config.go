package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"randomwiki/internal/driver/telegram"
	"randomwiki/internal/store"
	"randomwiki/internal/wikipedia"
	"randomwiki/modules/wiki"
)

const (
	envBotToken      = "TELEGRAM_BOT_TOKEN"
	envAppID         = "TELEGRAM_APP_ID"
	envAppHash       = "TELEGRAM_APP_HASH"
	envPublicBaseURL = "PUBLIC_BASE_URL"
	envConfigFile    = "RANDOMWIKI_CONFIG_FILE"

	defaultDotEnvPath         = ".env"
	defaultConfigFilePath     = "config/bot.json"
	defaultModuleHookTimeout  = 3 * time.Second
	defaultShutdownTimeout    = 10 * time.Second
	defaultHandlerTimeout     = 30 * time.Second
	defaultSubscriptionBuffer = 256
	defaultSubscriptionWorker = 4
	defaultShareTTL           = 30 * 24 * time.Hour
	defaultShareCapacity      = 10000
)

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	handlerTimeout      time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	credentials   telegram.Credentials
	publicBaseURL string
	telegram      json.RawMessage

	wiki          wiki.Config
	contentTTL    time.Duration
	shareTTL      time.Duration
	shareCapacity int
	upstream      upstreamConfig

	opsListenAddr string
}

type upstreamConfig struct {
	requestTimeout time.Duration
	userAgent      string
}

type fileConfig struct {
	LogLevel string           `json:"log_level"`
	Kernel   fileKernelConfig `json:"kernel"`
	Telegram json.RawMessage  `json:"telegram"`
	Wiki     fileWikiConfig   `json:"wiki"`
	Ops      fileOpsConfig    `json:"ops"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	HandlerTimeout      string `json:"handler_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileWikiConfig struct {
	DefaultLocale    string   `json:"default_locale"`
	RequestTimeout   string   `json:"request_timeout"`
	CacheTTL         string   `json:"cache_ttl"`
	ShareTTL         string   `json:"share_ttl"`
	ShareCapacity    *int     `json:"share_capacity"`
	HistoryPageSize  *int     `json:"history_page_size"`
	DisabledFeatures []string `json:"disabled_features"`
	UserAgent        string   `json:"user_agent"`
}

type fileOpsConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}

func loadConfig(getenv func(string) string) (appConfig, error) {
	cfg := defaultAppConfig()
	if err := applyEnv(&cfg, getenv); err != nil {
		return appConfig{}, err
	}

	configFile, err := resolveConfigFilePath(getenv)
	if err != nil {
		return appConfig{}, err
	}
	if configFile == "" {
		return cfg, nil
	}
	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}

	return cfg, nil
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		handlerTimeout:      defaultHandlerTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		contentTTL:    store.DefaultContentTTL,
		shareTTL:      defaultShareTTL,
		shareCapacity: defaultShareCapacity,
		upstream: upstreamConfig{
			requestTimeout: wikipedia.DefaultRequestTimeout,
			userAgent:      wikipedia.DefaultUserAgent,
		},
	}
}

// applyEnv reads secrets and deployment values. The bot token is checked
// first so a missing token fails with the clearest message.
func applyEnv(cfg *appConfig, getenv func(string) string) error {
	token := strings.TrimSpace(getenv(envBotToken))
	if token == "" {
		return fmt.Errorf("%s is not set", envBotToken)
	}

	rawAppID := strings.TrimSpace(getenv(envAppID))
	if rawAppID == "" {
		return fmt.Errorf("%s is not set", envAppID)
	}
	appID, err := strconv.Atoi(rawAppID)
	if err != nil || appID <= 0 {
		return fmt.Errorf("%s must be a positive integer", envAppID)
	}

	appHash := strings.TrimSpace(getenv(envAppHash))
	if appHash == "" {
		return fmt.Errorf("%s is not set", envAppHash)
	}

	cfg.credentials = telegram.Credentials{
		AppID:    appID,
		AppHash:  appHash,
		BotToken: token,
	}
	cfg.publicBaseURL = strings.TrimRight(strings.TrimSpace(getenv(envPublicBaseURL)), "/")

	return nil
}

// resolveConfigFilePath returns the tuning file to read, or "" when none is
// configured and the default path does not exist.
func resolveConfigFilePath(getenv func(string) string) (string, error) {
	if configFile := strings.TrimSpace(getenv(envConfigFile)); configFile != "" {
		return configFile, nil
	}

	info, err := os.Stat(defaultConfigFilePath)
	switch {
	case err == nil && info.IsDir():
		return "", fmt.Errorf("config file %s is a directory", defaultConfigFilePath)
	case err == nil:
		return defaultConfigFilePath, nil
	case errors.Is(err, os.ErrNotExist):
		return "", nil
	default:
		return "", fmt.Errorf("stat config file %s: %w", defaultConfigFilePath, err)
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := applyFileConfig(cfg, parsed); err != nil {
		return fmt.Errorf("validate config file %s: %w", path, err)
	}

	return nil
}

func applyFileConfig(cfg *appConfig, parsed fileConfig) error {
	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	durations := []struct {
		field  string
		raw    string
		target *time.Duration
	}{
		{field: "kernel.module_hook_timeout", raw: parsed.Kernel.ModuleHookTimeout, target: &cfg.moduleHookTimeout},
		{field: "kernel.shutdown_timeout", raw: parsed.Kernel.ShutdownTimeout, target: &cfg.shutdownTimeout},
		{field: "kernel.handler_timeout", raw: parsed.Kernel.HandlerTimeout, target: &cfg.handlerTimeout},
		{field: "wiki.request_timeout", raw: parsed.Wiki.RequestTimeout, target: &cfg.upstream.requestTimeout},
		{field: "wiki.cache_ttl", raw: parsed.Wiki.CacheTTL, target: &cfg.contentTTL},
		{field: "wiki.share_ttl", raw: parsed.Wiki.ShareTTL, target: &cfg.shareTTL},
	}
	for _, duration := range durations {
		if err := parseDurationField(duration.field, duration.raw, duration.target); err != nil {
			return err
		}
	}

	counts := []struct {
		field  string
		value  *int
		target *int
	}{
		{field: "kernel.subscription_buffer", value: parsed.Kernel.SubscriptionBuffer, target: &cfg.subscriptionBuffer},
		{field: "kernel.subscription_workers", value: parsed.Kernel.SubscriptionWorkers, target: &cfg.subscriptionWorkers},
		{field: "wiki.share_capacity", value: parsed.Wiki.ShareCapacity, target: &cfg.shareCapacity},
		{field: "wiki.history_page_size", value: parsed.Wiki.HistoryPageSize, target: &cfg.wiki.HistoryPageSize},
	}
	for _, count := range counts {
		if count.value == nil {
			continue
		}
		if *count.value <= 0 {
			return fmt.Errorf("parse %s: must be > 0", count.field)
		}
		*count.target = *count.value
	}

	cfg.wiki.DefaultLocale = strings.TrimSpace(parsed.Wiki.DefaultLocale)
	if cfg.wiki.DefaultLocale != "" {
		if err := wikipedia.ValidateLocale(cfg.wiki.DefaultLocale); err != nil {
			return fmt.Errorf("parse wiki.default_locale: %w", err)
		}
	}
	cfg.wiki.DisabledFeatures = append([]string(nil), parsed.Wiki.DisabledFeatures...)
	if userAgent := strings.TrimSpace(parsed.Wiki.UserAgent); userAgent != "" {
		cfg.upstream.userAgent = userAgent
	}

	cfg.telegram = append(json.RawMessage(nil), parsed.Telegram...)
	cfg.opsListenAddr = strings.TrimSpace(parsed.Ops.ListenAddr)

	return nil
}

func parseDurationField(field string, raw string, target *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	duration, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	if duration <= 0 {
		return fmt.Errorf("parse %s: must be > 0", field)
	}
	*target = duration

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}
