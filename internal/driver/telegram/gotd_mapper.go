package telegram

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"randomwiki/pkg/relay"

	"github.com/gotd/td/tg"
)

const gotdUnknownActorID = "unknown"

// DefaultGotdUpdateMapper maps gotd updates into adapter DTO updates.
type DefaultGotdUpdateMapper struct {
	peerCache *PeerCache
}

// GotdUpdateMapperOption mutates DefaultGotdUpdateMapper behavior.
type GotdUpdateMapperOption func(*DefaultGotdUpdateMapper)

// WithPeerCache records entity-derived peer mappings for outbound dispatch.
func WithPeerCache(cache *PeerCache) GotdUpdateMapperOption {
	return func(mapper *DefaultGotdUpdateMapper) {
		if cache != nil {
			mapper.peerCache = cache
		}
	}
}

// NewDefaultGotdUpdateMapper creates the default gotd mapper.
func NewDefaultGotdUpdateMapper(options ...GotdUpdateMapperOption) DefaultGotdUpdateMapper {
	mapper := DefaultGotdUpdateMapper{}
	for _, option := range options {
		option(&mapper)
	}

	return mapper
}

// Map converts a gotd raw update value into an adapter update.
//
// Only incoming messages, callback queries and inline queries are accepted;
// everything else is skipped.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, raw any) (Update, bool, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, false, fmt.Errorf("map gotd update context: %w", err)
	}

	envelope, err := normalizeGotdRaw(raw)
	if err != nil {
		return Update{}, false, fmt.Errorf("map gotd raw update: %w", err)
	}
	if m.peerCache != nil {
		m.peerCache.RememberEnvelope(envelope)
	}

	switch update := envelope.update.(type) {
	case *tg.UpdateNewMessage:
		return m.mapNewMessage(update.Message, envelope)
	case *tg.UpdateNewChannelMessage:
		return m.mapNewMessage(update.Message, envelope)
	case *tg.UpdateBotCallbackQuery:
		return m.mapCallbackQuery(update, envelope)
	case *tg.UpdateBotInlineQuery:
		return m.mapInlineQuery(update, envelope)
	default:
		return Update{}, false, nil
	}
}

func normalizeGotdRaw(raw any) (gotdUpdateEnvelope, error) {
	switch typed := raw.(type) {
	case gotdUpdateEnvelope:
		return typed, nil
	case *gotdUpdateEnvelope:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil envelope")
		}
		return *typed, nil
	case tg.UpdateClass:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil update class")
		}
		return gotdUpdateEnvelope{
			update:      typed,
			occurredAt:  time.Now().UTC(),
			updateClass: typed.TypeName(),
		}, nil
	default:
		return gotdUpdateEnvelope{}, fmt.Errorf("unsupported raw type %T", raw)
	}
}

func (m DefaultGotdUpdateMapper) mapNewMessage(
	messageClass tg.MessageClass,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	message, ok := messageClass.(*tg.Message)
	if !ok || message == nil || message.Out {
		return Update{}, false, nil
	}

	chat := resolveChatFromPeer(message.PeerID, envelope)
	actor := resolveActorFromPeer(message.FromID, envelope)
	if actor.ID == gotdUnknownActorID {
		actor = resolveActorFromPeer(message.PeerID, envelope)
	}

	payload := &MessagePayload{
		ID:       strconv.Itoa(message.ID),
		Text:     message.Message,
		Entities: mapTextEntities(message.Message, message.Entities),
	}
	if replyTo, ok := message.GetReplyTo(); ok {
		if header, ok := replyTo.(*tg.MessageReplyHeader); ok {
			if replyToMessageID, ok := header.GetReplyToMsgID(); ok {
				payload.ReplyToID = strconv.Itoa(replyToMessageID)
			}
		}
	}

	occurredAt := intToTimeUTC(message.Date)
	if occurredAt.IsZero() {
		occurredAt = envelope.occurredAt
	}
	m.rememberConversationPeer(chat, resolveInputPeerFromPeer(message.PeerID, envelope))

	return Update{
		ID:         composeUpdateID(UpdateTypeMessage, chat.ID, payload.ID),
		Type:       UpdateTypeMessage,
		OccurredAt: occurredAt,
		Chat:       chat,
		Actor:      actor,
		Message:    payload,
		Metadata:   newGotdMetadata(envelope),
	}, true, nil
}

func (m DefaultGotdUpdateMapper) mapCallbackQuery(
	update *tg.UpdateBotCallbackQuery,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	data, _ := update.GetData()
	if len(data) == 0 {
		return Update{}, false, nil
	}

	chat := resolveChatFromPeer(update.Peer, envelope)
	queryID := strconv.FormatInt(update.QueryID, 10)
	m.rememberConversationPeer(chat, resolveInputPeerFromPeer(update.Peer, envelope))

	return Update{
		ID:         composeUpdateID(UpdateTypeCallback, chat.ID, queryID),
		Type:       UpdateTypeCallback,
		OccurredAt: envelope.occurredAtOrNow(),
		Chat:       chat,
		Actor:      resolveActorByUserID(update.UserID, envelope),
		Callback: &CallbackPayload{
			QueryID:   queryID,
			MessageID: strconv.Itoa(update.MsgID),
			Data:      string(data),
		},
		Metadata: newGotdMetadata(envelope),
	}, true, nil
}

// mapInlineQuery scopes inline queries to the private conversation with the
// querying user, since they have no chat of their own.
func (m DefaultGotdUpdateMapper) mapInlineQuery(
	update *tg.UpdateBotInlineQuery,
	envelope gotdUpdateEnvelope,
) (Update, bool, error) {
	actor := resolveActorByUserID(update.UserID, envelope)
	queryID := strconv.FormatInt(update.QueryID, 10)

	return Update{
		ID:         composeUpdateID(UpdateTypeInlineQuery, actor.ID, queryID),
		Type:       UpdateTypeInlineQuery,
		OccurredAt: envelope.occurredAtOrNow(),
		Chat: ChatRef{
			ID:    actor.ID,
			Title: actor.DisplayName,
			Type:  relay.ConversationTypePrivate,
		},
		Actor: actor,
		InlineQuery: &InlineQueryPayload{
			QueryID: queryID,
			Query:   update.Query,
			Offset:  update.Offset,
		},
		Metadata: newGotdMetadata(envelope),
	}, true, nil
}

func (m DefaultGotdUpdateMapper) rememberConversationPeer(chat ChatRef, peer tg.InputPeerClass) {
	if m.peerCache != nil {
		m.peerCache.RememberConversation(chat, peer)
	}
}

type gotdUpdateEnvelope struct {
	update      tg.UpdateClass
	occurredAt  time.Time
	usersByID   map[int64]*tg.User
	chatsByID   map[int64]gotdChatInfo
	updateClass string
}

func (e gotdUpdateEnvelope) occurredAtOrNow() time.Time {
	if e.occurredAt.IsZero() {
		return time.Now().UTC()
	}

	return e.occurredAt
}

type gotdChatInfo struct {
	title     string
	kind      relay.ConversationType
	inputPeer tg.InputPeerClass
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	if len(users) == 0 {
		return nil
	}

	out := make(map[int64]*tg.User, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		notEmpty, ok := user.AsNotEmpty()
		if !ok || notEmpty == nil {
			continue
		}
		out[notEmpty.ID] = notEmpty
	}

	return out
}

func indexGotdChats(chats []tg.ChatClass) map[int64]gotdChatInfo {
	if len(chats) == 0 {
		return nil
	}

	out := make(map[int64]gotdChatInfo, len(chats))
	for _, chat := range chats {
		switch typed := chat.(type) {
		case *tg.Chat:
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				kind:      relay.ConversationTypeGroup,
				inputPeer: typed.AsInputPeer(),
			}
		case *tg.Channel:
			kind := relay.ConversationTypeChannel
			if typed.Megagroup {
				kind = relay.ConversationTypeGroup
			}
			out[typed.ID] = gotdChatInfo{
				title:     typed.Title,
				kind:      kind,
				inputPeer: typed.AsInputPeer(),
			}
		}
	}

	return out
}

func resolveChatFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) ChatRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		actor := resolveActorByUserID(typed.UserID, envelope)
		return ChatRef{
			ID:    actor.ID,
			Type:  relay.ConversationTypePrivate,
			Title: actor.DisplayName,
		}
	case *tg.PeerChat:
		return resolveChatByID(typed.ChatID, relay.ConversationTypeGroup, envelope)
	case *tg.PeerChannel:
		return resolveChatByID(typed.ChannelID, relay.ConversationTypeChannel, envelope)
	default:
		return ChatRef{Type: relay.ConversationTypePrivate}
	}
}

func resolveChatByID(chatID int64, fallback relay.ConversationType, envelope gotdUpdateEnvelope) ChatRef {
	id := strconv.FormatInt(chatID, 10)
	info, ok := envelope.chatsByID[chatID]
	if !ok {
		return ChatRef{ID: id, Type: fallback}
	}

	return ChatRef{ID: id, Title: info.title, Type: info.kind}
}

func resolveActorFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) ActorRef {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		return resolveActorByUserID(typed.UserID, envelope)
	case *tg.PeerChat:
		return ActorRef{
			ID:          strconv.FormatInt(typed.ChatID, 10),
			DisplayName: envelope.chatsByID[typed.ChatID].title,
		}
	case *tg.PeerChannel:
		return ActorRef{
			ID:          strconv.FormatInt(typed.ChannelID, 10),
			DisplayName: envelope.chatsByID[typed.ChannelID].title,
		}
	default:
		return ActorRef{ID: gotdUnknownActorID}
	}
}

func resolveActorByUserID(userID int64, envelope gotdUpdateEnvelope) ActorRef {
	if userID == 0 {
		return ActorRef{ID: gotdUnknownActorID}
	}
	id := strconv.FormatInt(userID, 10)

	user, ok := envelope.usersByID[userID]
	if !ok || user == nil {
		return ActorRef{ID: id}
	}

	username, _ := user.GetUsername()
	firstName, _ := user.GetFirstName()
	lastName, _ := user.GetLastName()
	langCode, _ := user.GetLangCode()

	displayName := strings.TrimSpace(firstName + " " + lastName)
	if displayName == "" {
		displayName = username
	}
	if displayName == "" {
		displayName = id
	}

	return ActorRef{
		ID:           id,
		Username:     username,
		DisplayName:  displayName,
		IsBot:        user.Bot,
		LanguageCode: langCode,
	}
}

func resolveInputPeerFromPeer(peer tg.PeerClass, envelope gotdUpdateEnvelope) tg.InputPeerClass {
	switch typed := peer.(type) {
	case *tg.PeerUser:
		user, ok := envelope.usersByID[typed.UserID]
		if !ok || user == nil {
			return nil
		}
		return user.AsInputPeer()
	case *tg.PeerChat:
		if typed.ChatID == 0 {
			return nil
		}
		return &tg.InputPeerChat{ChatID: typed.ChatID}
	case *tg.PeerChannel:
		info, ok := envelope.chatsByID[typed.ChannelID]
		if !ok || info.inputPeer == nil {
			return nil
		}
		return cloneInputPeer(info.inputPeer)
	default:
		return nil
	}
}

// mapTextEntities converts supported Telegram entities from UTF-16 ranges
// into rune ranges. Unsupported kinds are dropped.
func mapTextEntities(text string, entities []tg.MessageEntityClass) []relay.TextEntity {
	if len(entities) == 0 {
		return nil
	}

	offsets := buildUTF16Offsets(text)
	out := make([]relay.TextEntity, 0, len(entities))
	for _, entity := range entities {
		var mapped relay.TextEntity
		switch typed := entity.(type) {
		case *tg.MessageEntityBold:
			mapped.Type = relay.TextEntityTypeBold
		case *tg.MessageEntityItalic:
			mapped.Type = relay.TextEntityTypeItalic
		case *tg.MessageEntityCode:
			mapped.Type = relay.TextEntityTypeCode
		case *tg.MessageEntityURL:
			mapped.Type = relay.TextEntityTypeURL
		case *tg.MessageEntityTextURL:
			mapped.Type = relay.TextEntityTypeTextURL
			mapped.URL = typed.URL
		default:
			continue
		}

		start, startOK := runeIndexAtUTF16(offsets, entity.GetOffset())
		end, endOK := runeIndexAtUTF16(offsets, entity.GetOffset()+entity.GetLength())
		if !startOK || !endOK || end <= start {
			continue
		}
		mapped.Offset = start
		mapped.Length = end - start
		out = append(out, mapped)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// runeIndexAtUTF16 finds the rune index whose UTF-16 offset equals target.
func runeIndexAtUTF16(offsets []int, target int) (int, bool) {
	index := sort.SearchInts(offsets, target)
	if index >= len(offsets) || offsets[index] != target {
		return 0, false
	}

	return index, true
}

func composeUpdateID(updateType UpdateType, chatID string, parts ...string) string {
	values := []string{"tg", string(updateType)}
	if chatID != "" {
		values = append(values, chatID)
	}
	for _, part := range parts {
		if part != "" {
			values = append(values, part)
		}
	}

	return strings.Join(values, ":")
}

func newGotdMetadata(envelope gotdUpdateEnvelope) map[string]string {
	if envelope.updateClass == "" {
		return nil
	}

	return map[string]string{
		"gotd_update": envelope.updateClass,
	}
}
