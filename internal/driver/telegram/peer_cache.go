package telegram

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"

	"randomwiki/pkg/relay"

	"github.com/gotd/td/tg"
)

// DefaultPeerCacheSize bounds how many conversations keep a resolvable peer.
const DefaultPeerCacheSize = 50000

// PeerCacheOption configures a PeerCache.
type PeerCacheOption func(*peerCacheConfig)

type peerCacheConfig struct {
	size int
}

// WithPeerCacheSize overrides the number of remembered conversations.
func WithPeerCacheSize(size int) PeerCacheOption {
	return func(cfg *peerCacheConfig) {
		if size > 0 {
			cfg.size = size
		}
	}
}

// PeerCache maps neutral conversations back to the Telegram input peers seen
// in inbound updates. Least recently used conversations are evicted first;
// a conversation that writes to the bot again is simply relearned.
type PeerCache struct {
	peers *lru.Cache[string, tg.InputPeerClass]
}

// NewPeerCache creates an empty peer cache safe for concurrent use.
func NewPeerCache(options ...PeerCacheOption) *PeerCache {
	cfg := peerCacheConfig{size: DefaultPeerCacheSize}
	for _, option := range options {
		option(&cfg)
	}

	peers, err := lru.New[string, tg.InputPeerClass](cfg.size)
	if err != nil {
		// lru.New only fails for non-positive sizes, which options reject.
		panic(fmt.Sprintf("new peer cache: %v", err))
	}

	return &PeerCache{peers: peers}
}

// RememberEnvelope learns the users and chats attached to one update.
func (c *PeerCache) RememberEnvelope(envelope gotdUpdateEnvelope) {
	if c == nil {
		return
	}

	for userID, user := range envelope.usersByID {
		if user == nil {
			continue
		}
		if peer := user.AsInputPeer(); peer != nil {
			c.store(relay.ConversationTypePrivate, strconv.FormatInt(userID, 10), peer)
		}
	}
	for chatID, chat := range envelope.chatsByID {
		if chat.inputPeer != nil {
			c.store(chat.kind, strconv.FormatInt(chatID, 10), chat.inputPeer)
		}
	}
}

// RememberConversation stores one explicit conversation-to-peer mapping.
func (c *PeerCache) RememberConversation(chat ChatRef, peer tg.InputPeerClass) {
	if c == nil || peer == nil || chat.ID == "" {
		return
	}

	c.store(chat.Type, chat.ID, peer)
}

// store records peer under kind. Megagroups are neutral groups but take
// channel peers for outbound RPC, so they are indexed under both kinds.
func (c *PeerCache) store(kind relay.ConversationType, id string, peer tg.InputPeerClass) {
	c.peers.Add(conversationKey(kind, id), cloneInputPeer(peer))
	if _, isChannel := peer.(*tg.InputPeerChannel); isChannel && kind == relay.ConversationTypeGroup {
		c.peers.Add(conversationKey(relay.ConversationTypeChannel, id), cloneInputPeer(peer))
	}
}

// Resolve returns the input peer for an outbound conversation. Groups and
// channels fall back to each other's entry.
func (c *PeerCache) Resolve(conversation relay.Conversation) (tg.InputPeerClass, error) {
	if c == nil {
		return nil, fmt.Errorf("resolve peer: nil cache")
	}
	if conversation.ID == "" || conversation.Type == "" {
		return nil, fmt.Errorf("resolve peer: invalid conversation")
	}

	candidates := []relay.ConversationType{conversation.Type}
	switch conversation.Type {
	case relay.ConversationTypeGroup:
		candidates = append(candidates, relay.ConversationTypeChannel)
	case relay.ConversationTypeChannel:
		candidates = append(candidates, relay.ConversationTypeGroup)
	}

	for _, kind := range candidates {
		if peer, ok := c.peers.Get(conversationKey(kind, conversation.ID)); ok {
			return cloneInputPeer(peer), nil
		}
	}

	return nil, fmt.Errorf("resolve peer: conversation %s/%s not found", conversation.Type, conversation.ID)
}

// Len reports how many conversation keys are cached.
func (c *PeerCache) Len() int {
	return c.peers.Len()
}

func conversationKey(conversationType relay.ConversationType, id string) string {
	return string(conversationType) + ":" + id
}

func cloneInputPeer(peer tg.InputPeerClass) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.InputPeerUser:
		copied := *typed
		return &copied
	case *tg.InputPeerChat:
		copied := *typed
		return &copied
	case *tg.InputPeerChannel:
		copied := *typed
		return &copied
	case *tg.InputPeerSelf:
		copied := *typed
		return &copied
	default:
		return peer
	}
}
