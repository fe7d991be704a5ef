package telegram

import (
	"strings"
	"sync"

	"randomwiki/pkg/relay"
)

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the neutral platform produced by the Telegram runtime.
	DriverPlatform relay.Platform = relay.PlatformTelegram
)

// BotIdentity holds the bot account learned after login.
//
// It is empty until the runtime has authenticated and is safe for concurrent use.
type BotIdentity struct {
	mu       sync.RWMutex
	id       int64
	username string
}

// NewBotIdentity creates an identity, optionally pre-seeded with a username.
func NewBotIdentity(username string) *BotIdentity {
	return &BotIdentity{username: strings.TrimPrefix(strings.TrimSpace(username), "@")}
}

// Username returns the bot username without the leading @, or "" when unknown.
func (i *BotIdentity) Username() string {
	if i == nil {
		return ""
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.username
}

// ID returns the bot user id, or 0 when unknown.
func (i *BotIdentity) ID() int64 {
	if i == nil {
		return 0
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	return i.id
}

func (i *BotIdentity) set(id int64, username string) {
	if i == nil {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.id = id
	if username = strings.TrimSpace(username); username != "" {
		i.username = username
	}
}
