package telegram

import (
	"path/filepath"
	"testing"
	"time"
)

func TestParseRuntimeConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		raw             string
		wantErr         bool
		wantBuffer      int
		wantPublish     time.Duration
		wantSessionFile string
		wantUsername    string
	}{
		{
			name:            "empty payload uses defaults",
			raw:             "",
			wantBuffer:      defaultRuntimeUpdateBuffer,
			wantPublish:     defaultRuntimePublishDelay,
			wantSessionFile: defaultRuntimeSessionFile,
		},
		{
			name:            "overrides",
			raw:             `{"update_buffer":32,"publish_timeout":"5s","session_file":"/tmp/s.json","username":"random_wiki_bot"}`,
			wantBuffer:      32,
			wantPublish:     5 * time.Second,
			wantSessionFile: "/tmp/s.json",
			wantUsername:    "random_wiki_bot",
		},
		{
			name:    "bad duration",
			raw:     `{"publish_timeout":"bad"}`,
			wantErr: true,
		},
		{
			name:    "non positive duration",
			raw:     `{"auth_timeout":"-1s"}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{`,
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := parseRuntimeConfig([]byte(testCase.raw))
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse runtime config failed: %v", err)
			}
			if cfg.updateBuffer != testCase.wantBuffer {
				t.Fatalf("update buffer = %d, want %d", cfg.updateBuffer, testCase.wantBuffer)
			}
			if cfg.publishTimeout != testCase.wantPublish {
				t.Fatalf("publish timeout = %v, want %v", cfg.publishTimeout, testCase.wantPublish)
			}
			if cfg.sessionFile != testCase.wantSessionFile {
				t.Fatalf("session file = %q, want %q", cfg.sessionFile, testCase.wantSessionFile)
			}
			if cfg.username != testCase.wantUsername {
				t.Fatalf("username = %q, want %q", cfg.username, testCase.wantUsername)
			}
		})
	}
}

func TestCredentialsValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		credentials Credentials
		wantErr     bool
	}{
		{name: "complete", credentials: Credentials{AppID: 1, AppHash: "hash", BotToken: "1:abc"}},
		{name: "missing app id", credentials: Credentials{AppHash: "hash", BotToken: "1:abc"}, wantErr: true},
		{name: "missing hash", credentials: Credentials{AppID: 1, BotToken: "1:abc"}, wantErr: true},
		{name: "missing token", credentials: Credentials{AppID: 1, AppHash: "hash", BotToken: "  "}, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.credentials.Validate()
			if testCase.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestBuildRuntimeRejectsMissingCredentials(t *testing.T) {
	t.Parallel()

	if _, err := BuildRuntime("telegram", nil, Credentials{}, nil); err == nil {
		t.Fatal("expected credential error")
	}
}

func TestNewGotdSessionStorage(t *testing.T) {
	t.Parallel()

	sessionPath := filepath.Join(t.TempDir(), "nested", "telegram", "session.json")
	storage, err := newGotdSessionStorage(sessionPath)
	if err != nil {
		t.Fatalf("new gotd session storage failed: %v", err)
	}
	if !filepath.IsAbs(storage.Path) {
		t.Fatalf("session path = %q, want absolute", storage.Path)
	}
	if _, err := newGotdSessionStorage("   "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestBotIdentity(t *testing.T) {
	t.Parallel()

	identity := NewBotIdentity("@seeded_bot")
	if got := identity.Username(); got != "seeded_bot" {
		t.Fatalf("username = %q, want seeded_bot", got)
	}

	identity.set(99, "random_wiki_bot")
	if got := identity.Username(); got != "random_wiki_bot" {
		t.Fatalf("username = %q, want random_wiki_bot", got)
	}
	if got := identity.ID(); got != 99 {
		t.Fatalf("id = %d, want 99", got)
	}

	var missing *BotIdentity
	if missing.Username() != "" || missing.ID() != 0 {
		t.Fatal("nil identity should report empty values")
	}
}
