package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"randomwiki/internal/kernel"
	"randomwiki/internal/ops"
	"randomwiki/pkg/relay"
)

func writeConfigFile(t *testing.T, path string, contents string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("create config dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
}

func envLookup(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		envBotToken: "123:abc",
		envAppID:    "123456",
		envAppHash:  "sample_hash",
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    slog.Level
		wantErr bool
	}{
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "info", input: "info", want: slog.LevelInfo},
		{name: "warn", input: "warn", want: slog.LevelWarn},
		{name: "warning", input: "WARNING", want: slog.LevelWarn},
		{name: "error", input: "error", want: slog.LevelError},
		{name: "invalid", input: "trace", wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseLogLevel(testCase.input)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if testCase.wantErr {
				return
			}
			if got != testCase.want {
				t.Fatalf("level = %v, want %v", got, testCase.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	tests := []struct {
		name             string
		env              map[string]string
		wantErrSubstring string
	}{
		{
			name: "defaults with credentials",
			env:  baseEnv(),
		},
		{
			name:             "missing bot token fails fast",
			env:              map[string]string{envAppID: "1", envAppHash: "hash"},
			wantErrSubstring: envBotToken + " is not set",
		},
		{
			name:             "missing app id",
			env:              map[string]string{envBotToken: "123:abc", envAppHash: "hash"},
			wantErrSubstring: envAppID + " is not set",
		},
		{
			name:             "non numeric app id",
			env:              map[string]string{envBotToken: "123:abc", envAppID: "abc", envAppHash: "hash"},
			wantErrSubstring: envAppID + " must be a positive integer",
		},
		{
			name:             "missing app hash",
			env:              map[string]string{envBotToken: "123:abc", envAppID: "1"},
			wantErrSubstring: envAppHash + " is not set",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := loadConfig(envLookup(testCase.env))
			if testCase.wantErrSubstring != "" {
				if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstring) {
					t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if cfg.credentials.AppID != 123456 || cfg.credentials.AppHash != "sample_hash" || cfg.credentials.BotToken != "123:abc" {
				t.Fatalf("credentials = %+v", cfg.credentials)
			}
			if cfg.logLevel != slog.LevelInfo {
				t.Fatalf("log level = %v, want info", cfg.logLevel)
			}
			if cfg.shareTTL != defaultShareTTL || cfg.shareCapacity != defaultShareCapacity {
				t.Fatalf("share settings = %v/%d, want defaults", cfg.shareTTL, cfg.shareCapacity)
			}
			if cfg.opsListenAddr != "" {
				t.Fatalf("ops listen addr = %q, want empty", cfg.opsListenAddr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	configPath := filepath.Join(t.TempDir(), "bot.json")
	writeConfigFile(t, configPath, `{
		"log_level":"warn",
		"kernel":{
			"module_hook_timeout":"7s",
			"shutdown_timeout":"15s",
			"handler_timeout":"20s",
			"subscription_buffer":64,
			"subscription_workers":5
		},
		"telegram":{
			"publish_timeout":"3s",
			"session_file":"state/telegram/session.json"
		},
		"wiki":{
			"default_locale":"de",
			"request_timeout":"4s",
			"cache_ttl":"30m",
			"share_ttl":"72h",
			"share_capacity":500,
			"history_page_size":5,
			"disabled_features":["inline"],
			"user_agent":"RandomWikiTest/1.0"
		},
		"ops":{"listen_addr":":9090"}
	}`)

	env := baseEnv()
	env[envConfigFile] = configPath
	env[envPublicBaseURL] = "https://bots.example.com/"

	cfg, err := loadConfig(envLookup(env))
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}

	if cfg.logLevel != slog.LevelWarn {
		t.Fatalf("log level = %v, want warn", cfg.logLevel)
	}
	if cfg.moduleHookTimeout != 7*time.Second || cfg.shutdownTimeout != 15*time.Second || cfg.handlerTimeout != 20*time.Second {
		t.Fatalf("kernel timeouts = %v/%v/%v", cfg.moduleHookTimeout, cfg.shutdownTimeout, cfg.handlerTimeout)
	}
	if cfg.subscriptionBuffer != 64 || cfg.subscriptionWorkers != 5 {
		t.Fatalf("subscription settings = %d/%d, want 64/5", cfg.subscriptionBuffer, cfg.subscriptionWorkers)
	}
	if !strings.Contains(string(cfg.telegram), "session.json") {
		t.Fatalf("telegram config = %s, want raw section", cfg.telegram)
	}
	if cfg.wiki.DefaultLocale != "de" || cfg.wiki.HistoryPageSize != 5 {
		t.Fatalf("wiki config = %+v", cfg.wiki)
	}
	if len(cfg.wiki.DisabledFeatures) != 1 || cfg.wiki.DisabledFeatures[0] != "inline" {
		t.Fatalf("disabled features = %v, want [inline]", cfg.wiki.DisabledFeatures)
	}
	if cfg.upstream.requestTimeout != 4*time.Second || cfg.upstream.userAgent != "RandomWikiTest/1.0" {
		t.Fatalf("upstream config = %+v", cfg.upstream)
	}
	if cfg.contentTTL != 30*time.Minute || cfg.shareTTL != 72*time.Hour || cfg.shareCapacity != 500 {
		t.Fatalf("store config = %v/%v/%d", cfg.contentTTL, cfg.shareTTL, cfg.shareCapacity)
	}
	if cfg.opsListenAddr != ":9090" {
		t.Fatalf("ops listen addr = %q, want :9090", cfg.opsListenAddr)
	}
	if cfg.publicBaseURL != "https://bots.example.com" {
		t.Fatalf("public base url = %q, want trailing slash trimmed", cfg.publicBaseURL)
	}
}

func TestLoadConfigFileRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name             string
		contents         string
		wantErrSubstring string
	}{
		{
			name:             "invalid json",
			contents:         `{`,
			wantErrSubstring: "parse config file",
		},
		{
			name:             "unknown log level",
			contents:         `{"log_level":"trace"}`,
			wantErrSubstring: "parse log_level",
		},
		{
			name:             "bad duration",
			contents:         `{"wiki":{"cache_ttl":"soon"}}`,
			wantErrSubstring: "parse wiki.cache_ttl",
		},
		{
			name:             "non-positive duration",
			contents:         `{"kernel":{"shutdown_timeout":"0s"}}`,
			wantErrSubstring: "parse kernel.shutdown_timeout: must be > 0",
		},
		{
			name:             "non-positive count",
			contents:         `{"wiki":{"share_capacity":0}}`,
			wantErrSubstring: "parse wiki.share_capacity: must be > 0",
		},
		{
			name:             "invalid locale",
			contents:         `{"wiki":{"default_locale":"EN_us"}}`,
			wantErrSubstring: "parse wiki.default_locale",
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			configPath := filepath.Join(t.TempDir(), "bot.json")
			writeConfigFile(t, configPath, testCase.contents)
			env := baseEnv()
			env[envConfigFile] = configPath

			_, err := loadConfig(envLookup(env))
			if err == nil || !strings.Contains(err.Error(), testCase.wantErrSubstring) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSubstring)
			}
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	env := baseEnv()
	env[envConfigFile] = filepath.Join(t.TempDir(), "missing.json")

	if _, err := loadConfig(envLookup(env)); err == nil || !strings.Contains(err.Error(), "read config file") {
		t.Fatalf("error = %v, want read failure", err)
	}
}

func TestLoadDotEnvKeepsExistingEnvironment(t *testing.T) {
	const (
		fileOnlyKey = "RANDOMWIKI_TEST_DOTENV_FILE_ONLY"
		existingKey = "RANDOMWIKI_TEST_DOTENV_EXISTING"
	)
	t.Setenv(fileOnlyKey, "")
	if err := os.Unsetenv(fileOnlyKey); err != nil {
		t.Fatalf("unset %s: %v", fileOnlyKey, err)
	}
	t.Setenv(existingKey, "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	writeConfigFile(t, path, fileOnlyKey+"=from-file\n"+existingKey+"=from-file\n")

	if err := loadDotEnv(path); err != nil {
		t.Fatalf("loadDotEnv failed: %v", err)
	}
	if got := os.Getenv(fileOnlyKey); got != "from-file" {
		t.Fatalf("%s = %q, want from-file", fileOnlyKey, got)
	}
	if got := os.Getenv(existingKey); got != "from-env" {
		t.Fatalf("%s = %q, want from-env", existingKey, got)
	}

	if err := loadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("missing .env should be ignored: %v", err)
	}
}

func TestResolveShareLinkBase(t *testing.T) {
	tests := []struct {
		name          string
		publicBaseURL string
		username      string
		want          string
	}{
		{name: "public url wins", publicBaseURL: "https://bots.example.com", username: "randomwiki_bot", want: "https://bots.example.com"},
		{name: "falls back to bot username", username: "randomwiki_bot", want: "https://t.me/randomwiki_bot"},
		{name: "unknown before login", want: ""},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if got := resolveShareLinkBase(testCase.publicBaseURL, testCase.username); got != testCase.want {
				t.Fatalf("resolveShareLinkBase() = %q, want %q", got, testCase.want)
			}
		})
	}
}

func TestRegisterRuntimeWiresModules(t *testing.T) {
	t.Parallel()

	cfg := defaultAppConfig()
	metrics := ops.NewMetrics()
	kernelRuntime := kernel.New(kernel.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, nil))))

	services, err := buildContentServices(cfg, metrics)
	if err != nil {
		t.Fatalf("buildContentServices failed: %v", err)
	}
	if err := registerRuntimeServices(kernelRuntime, slog.Default(), noopDispatcher{}, services); err != nil {
		t.Fatalf("registerRuntimeServices failed: %v", err)
	}
	if err := registerRuntimeModules(context.Background(), kernelRuntime, cfg, slog.Default(), metrics, func() string {
		return ""
	}); err != nil {
		t.Fatalf("registerRuntimeModules failed: %v", err)
	}

	catalog, err := relay.ResolveAs[relay.CommandCatalog](kernelRuntime.Services(), relay.ServiceCommandCatalog)
	if err != nil {
		t.Fatalf("resolve command catalog: %v", err)
	}
	commands, err := catalog.ListCommands(context.Background())
	if err != nil {
		t.Fatalf("ListCommands failed: %v", err)
	}
	names := make(map[string]bool, len(commands))
	for _, command := range commands {
		names[command.Command.Name] = true
	}
	for _, want := range []string{"start", "randomwiki", "search", "setlang", "today", "history", "share", "shared", "trending", "help"} {
		if !names[want] {
			t.Fatalf("command %s not registered; got %v", want, names)
		}
	}
}

func TestRunServicesStopsOnCancel(t *testing.T) {
	t.Parallel()

	cfg := defaultAppConfig()
	cfg.opsListenAddr = "127.0.0.1:0"
	cfg.shutdownTimeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runServices(ctx, slog.Default(), cfg, kernel.New(), ops.NewMetrics())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runServices error = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServices did not stop after cancellation")
	}
}

type noopDispatcher struct{}

func (noopDispatcher) SendMessage(_ context.Context, request relay.SendMessageRequest) (*relay.OutboundMessage, error) {
	return &relay.OutboundMessage{ID: "1", Target: request.Target}, nil
}

func (noopDispatcher) SendPhoto(_ context.Context, request relay.SendPhotoRequest) (*relay.OutboundMessage, error) {
	return &relay.OutboundMessage{ID: "1", Target: request.Target}, nil
}

func (noopDispatcher) AnswerCallback(context.Context, relay.AnswerCallbackRequest) error {
	return nil
}

func (noopDispatcher) AnswerInlineQuery(context.Context, relay.AnswerInlineQueryRequest) error {
	return nil
}
