package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"randomwiki/pkg/content"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultShareTTL is how long a share token can be redeemed.
	DefaultShareTTL = 30 * 24 * time.Hour
	// DefaultShareCapacity bounds live tokens; the least recently used are evicted first.
	DefaultShareCapacity = 10000

	shareRandomLength  = 12
	shareCreateRetries = 8
)

// ErrShareCollision indicates token generation kept producing ids already in use.
var ErrShareCollision = errors.New("share registry: token id collision")

// ShareOption mutates share registry configuration.
type ShareOption func(*ShareRegistry)

// WithShareTTL overrides DefaultShareTTL.
func WithShareTTL(ttl time.Duration) ShareOption {
	return func(registry *ShareRegistry) {
		if ttl > 0 {
			registry.ttl = ttl
		}
	}
}

// WithShareCapacity overrides DefaultShareCapacity.
func WithShareCapacity(capacity int) ShareOption {
	return func(registry *ShareRegistry) {
		if capacity > 0 {
			registry.capacity = capacity
		}
	}
}

func withShareClock(clock func() time.Time) ShareOption {
	return func(registry *ShareRegistry) {
		if clock != nil {
			registry.clock = clock
		}
	}
}

// ShareRegistry issues and resolves share tokens.
//
// Tokens are immutable once created. Expired tokens are dropped when resolved.
type ShareRegistry struct {
	ttl      time.Duration
	capacity int
	clock    func() time.Time

	mu     sync.Mutex
	tokens *lru.Cache[string, content.ShareToken]
}

// NewShareRegistry creates an empty registry.
func NewShareRegistry(options ...ShareOption) (*ShareRegistry, error) {
	registry := &ShareRegistry{
		ttl:      DefaultShareTTL,
		capacity: DefaultShareCapacity,
		clock:    time.Now,
	}
	for _, option := range options {
		option(registry)
	}

	tokens, err := lru.New[string, content.ShareToken](registry.capacity)
	if err != nil {
		return nil, fmt.Errorf("new share registry: %w", err)
	}
	registry.tokens = tokens

	return registry, nil
}

// Create stores a fresh token for article in locale.
func (r *ShareRegistry) Create(article string, locale string, sharedBy string) (content.ShareToken, error) {
	if strings.TrimSpace(article) == "" {
		return content.ShareToken{}, fmt.Errorf("share registry create: %w", content.ErrEmptyTitle)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock().UTC()
	for range shareCreateRetries {
		id := newShareID(now)
		if r.tokens.Contains(id) {
			continue
		}

		token := content.ShareToken{
			ID:        id,
			Article:   article,
			Locale:    locale,
			SharedBy:  sharedBy,
			CreatedAt: now,
		}
		r.tokens.Add(id, token)

		return token, nil
	}

	return content.ShareToken{}, fmt.Errorf("share registry create: %w", ErrShareCollision)
}

// Resolve returns the token stored under id when it has not expired.
func (r *ShareRegistry) Resolve(id string) (content.ShareToken, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return content.ShareToken{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.tokens.Get(id)
	if !ok {
		return content.ShareToken{}, false
	}
	if r.clock().UTC().Sub(token.CreatedAt) >= r.ttl {
		r.tokens.Remove(id)
		return content.ShareToken{}, false
	}

	return token, true
}

// Len returns the number of stored tokens, including expired ones not yet purged.
func (r *ShareRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tokens.Len()
}

// newShareID joins a base-36 millisecond timestamp with random hex.
//
// The result only contains [0-9a-z], so it is safe in deep links and
// callback payloads.
func newShareID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")

	return strconv.FormatInt(now.UnixMilli(), 36) + random[:shareRandomLength]
}

var _ content.Shares = (*ShareRegistry)(nil)
