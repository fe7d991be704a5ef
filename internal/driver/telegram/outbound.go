package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"randomwiki/pkg/relay"

	"github.com/gotd/td/crypto"
	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message/unpack"
	"github.com/gotd/td/tg"
)

const defaultOutboundTimeout = 3 * time.Second

// OutboundOption mutates outbound dispatcher configuration.
type OutboundOption func(*outboundConfig)

// WithOutboundTimeout configures a timeout bound for each outbound RPC call.
func WithOutboundTimeout(timeout time.Duration) OutboundOption {
	return func(cfg *outboundConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithOutboundLogger configures structured logging for outbound operations.
func WithOutboundLogger(logger *slog.Logger) OutboundOption {
	return func(cfg *outboundConfig) {
		cfg.logger = logger
	}
}

// OutboundDispatcher adapts neutral outbound operations to Telegram RPC calls.
type OutboundDispatcher struct {
	cfg      outboundConfig
	peers    *PeerCache
	telegram outboundRPC
}

type outboundConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
}

// NewOutboundDispatcher creates a Telegram outbound dispatcher using gotd client APIs.
func NewOutboundDispatcher(
	client *gotdtelegram.Client,
	peers *PeerCache,
	options ...OutboundOption,
) (*OutboundDispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil client")
	}

	return newOutboundDispatcherWithRPC(newGotdOutboundRPC(client), peers, options...)
}

func newOutboundDispatcherWithRPC(
	rpc outboundRPC,
	peers *PeerCache,
	options ...OutboundOption,
) (*OutboundDispatcher, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil rpc adapter")
	}
	if peers == nil {
		return nil, fmt.Errorf("new telegram outbound dispatcher: nil peer cache")
	}

	cfg := outboundConfig{rpcTimeout: defaultOutboundTimeout}
	for _, option := range options {
		option(&cfg)
	}

	return &OutboundDispatcher{
		cfg:      cfg,
		peers:    peers,
		telegram: rpc,
	}, nil
}

// SendMessage publishes a text message to a Telegram conversation.
func (d *OutboundDispatcher) SendMessage(
	ctx context.Context,
	request relay.SendMessageRequest,
) (*relay.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("send message validate: %w", err)
	}

	peer, err := d.resolvePeer(request.Target)
	if err != nil {
		return nil, fmt.Errorf("send message resolve peer: %w", err)
	}

	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	id, err := d.telegram.SendText(rpcCtx, peer, request)
	if err != nil {
		return nil, fmt.Errorf(
			"send message to %s: %w",
			request.Target.Conversation.ID,
			mapTelegramOutboundError(relay.OutboundOperationSendMessage, err),
		)
	}

	d.logOutbound(
		ctx,
		relay.OutboundOperationSendMessage,
		"conversation", request.Target.Conversation.ID,
		"conversation_type", request.Target.Conversation.Type,
		"message_id", id,
		"reply_to_message_id", request.ReplyToMessageID,
	)

	return &relay.OutboundMessage{
		ID:     strconv.Itoa(id),
		Target: request.Target,
	}, nil
}

// SendPhoto publishes a URL-referenced photo with an optional caption.
func (d *OutboundDispatcher) SendPhoto(
	ctx context.Context,
	request relay.SendPhotoRequest,
) (*relay.OutboundMessage, error) {
	if err := request.Validate(); err != nil {
		return nil, fmt.Errorf("send photo validate: %w", err)
	}

	peer, err := d.resolvePeer(request.Target)
	if err != nil {
		return nil, fmt.Errorf("send photo resolve peer: %w", err)
	}

	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	id, err := d.telegram.SendPhoto(rpcCtx, peer, request)
	if err != nil {
		return nil, fmt.Errorf(
			"send photo to %s: %w",
			request.Target.Conversation.ID,
			mapTelegramOutboundError(relay.OutboundOperationSendPhoto, err),
		)
	}

	d.logOutbound(
		ctx,
		relay.OutboundOperationSendPhoto,
		"conversation", request.Target.Conversation.ID,
		"conversation_type", request.Target.Conversation.Type,
		"message_id", id,
	)

	return &relay.OutboundMessage{
		ID:     strconv.Itoa(id),
		Target: request.Target,
	}, nil
}

// AnswerCallback acknowledges one inline button press.
func (d *OutboundDispatcher) AnswerCallback(ctx context.Context, request relay.AnswerCallbackRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("answer callback validate: %w", err)
	}

	queryID, err := parseQueryID(request.QueryID)
	if err != nil {
		return fmt.Errorf("answer callback parse query id %s: %w", request.QueryID, err)
	}

	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.telegram.AnswerCallback(rpcCtx, queryID, request); err != nil {
		return fmt.Errorf(
			"answer callback %s: %w",
			request.QueryID,
			mapTelegramOutboundError(relay.OutboundOperationAnswerCallback, err),
		)
	}

	d.logOutbound(ctx, relay.OutboundOperationAnswerCallback, "query_id", request.QueryID, "alert", request.Alert)

	return nil
}

// AnswerInlineQuery replies to one inline query with article results.
func (d *OutboundDispatcher) AnswerInlineQuery(ctx context.Context, request relay.AnswerInlineQueryRequest) error {
	if err := request.Validate(); err != nil {
		return fmt.Errorf("answer inline query validate: %w", err)
	}

	queryID, err := parseQueryID(request.QueryID)
	if err != nil {
		return fmt.Errorf("answer inline query parse query id %s: %w", request.QueryID, err)
	}

	rpcCtx, cancel := d.withTimeout(ctx)
	defer cancel()

	if err := d.telegram.AnswerInline(rpcCtx, queryID, request); err != nil {
		return fmt.Errorf(
			"answer inline query %s: %w",
			request.QueryID,
			mapTelegramOutboundError(relay.OutboundOperationAnswerInlineQuery, err),
		)
	}

	d.logOutbound(
		ctx,
		relay.OutboundOperationAnswerInlineQuery,
		"query_id", request.QueryID,
		"results", len(request.Results),
	)

	return nil
}

func (d *OutboundDispatcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.rpcTimeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, d.cfg.rpcTimeout)
}

func (d *OutboundDispatcher) resolvePeer(target relay.OutboundTarget) (tg.InputPeerClass, error) {
	peer, err := d.peers.Resolve(target.Conversation)
	if err != nil {
		return nil, fmt.Errorf("resolve conversation %s: %w", target.Conversation.ID, err)
	}

	return peer, nil
}

func (d *OutboundDispatcher) logOutbound(ctx context.Context, operation relay.OutboundOperation, attrs ...any) {
	if d.cfg.logger == nil {
		return
	}

	values := make([]any, 0, 4+len(attrs))
	values = append(values, "operation", operation, "platform", DriverPlatform)
	values = append(values, attrs...)
	d.cfg.logger.DebugContext(ctx, "telegram outbound operation", values...)
}

func parseMessageID(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid message id: %w", relay.ErrInvalidOutboundRequest, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: invalid message id", relay.ErrInvalidOutboundRequest)
	}

	return value, nil
}

func parseQueryID(raw string) (int64, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid query id: %w", relay.ErrInvalidOutboundRequest, err)
	}

	return value, nil
}

func mapOutboundTextEntities(text string, entities []relay.TextEntity) ([]tg.MessageEntityClass, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	utf16Offsets := buildUTF16Offsets(text)
	converted := make([]tg.MessageEntityClass, 0, len(entities))
	for index, entity := range entities {
		start := entity.Offset
		end := entity.Offset + entity.Length
		if start < 0 || end < start || end >= len(utf16Offsets) {
			return nil, fmt.Errorf(
				"entity[%d] invalid range [%d,%d) for text runes %d",
				index,
				start,
				end,
				len(utf16Offsets)-1,
			)
		}

		offset := utf16Offsets[start]
		length := utf16Offsets[end] - utf16Offsets[start]
		switch entity.Type {
		case relay.TextEntityTypeBold:
			converted = append(converted, &tg.MessageEntityBold{Offset: offset, Length: length})
		case relay.TextEntityTypeItalic:
			converted = append(converted, &tg.MessageEntityItalic{Offset: offset, Length: length})
		case relay.TextEntityTypeCode:
			converted = append(converted, &tg.MessageEntityCode{Offset: offset, Length: length})
		case relay.TextEntityTypeURL:
			converted = append(converted, &tg.MessageEntityURL{Offset: offset, Length: length})
		case relay.TextEntityTypeTextURL:
			converted = append(converted, &tg.MessageEntityTextURL{Offset: offset, Length: length, URL: entity.URL})
		default:
			return nil, fmt.Errorf("%w: unsupported text entity type %q", relay.ErrOutboundUnsupported, entity.Type)
		}
	}

	return converted, nil
}

// mapKeyboardMarkup converts a neutral keyboard into Telegram reply markup.
func mapKeyboardMarkup(keyboard *relay.Keyboard) tg.ReplyMarkupClass {
	if keyboard == nil || len(keyboard.Rows) == 0 {
		return nil
	}

	rows := make([]tg.KeyboardButtonRow, 0, len(keyboard.Rows))
	for _, row := range keyboard.Rows {
		buttons := make([]tg.KeyboardButtonClass, 0, len(row))
		for _, button := range row {
			if keyboard.Kind == relay.KeyboardKindInline {
				buttons = append(buttons, &tg.KeyboardButtonCallback{
					Text: button.Label,
					Data: []byte(button.Action),
				})
				continue
			}
			buttons = append(buttons, &tg.KeyboardButton{Text: button.Label})
		}
		rows = append(rows, tg.KeyboardButtonRow{Buttons: buttons})
	}

	if keyboard.Kind == relay.KeyboardKindInline {
		return &tg.ReplyInlineMarkup{Rows: rows}
	}

	return &tg.ReplyKeyboardMarkup{Resize: keyboard.Resize, Rows: rows}
}

func buildUTF16Offsets(text string) []int {
	offsets := make([]int, 1, len(text)+1)
	current := 0
	for _, value := range text {
		current += utf16RuneLength(value)
		offsets = append(offsets, current)
	}

	return offsets
}

func utf16RuneLength(value rune) int {
	if value >= 0x10000 && value <= 0x10FFFF {
		return 2
	}

	return 1
}

type outboundRPC interface {
	SendText(ctx context.Context, peer tg.InputPeerClass, request relay.SendMessageRequest) (int, error)
	SendPhoto(ctx context.Context, peer tg.InputPeerClass, request relay.SendPhotoRequest) (int, error)
	AnswerCallback(ctx context.Context, queryID int64, request relay.AnswerCallbackRequest) error
	AnswerInline(ctx context.Context, queryID int64, request relay.AnswerInlineQueryRequest) error
}

type gotdOutboundRPC struct {
	raw  *tg.Client
	rand io.Reader
}

func newGotdOutboundRPC(client *gotdtelegram.Client) gotdOutboundRPC {
	return gotdOutboundRPC{
		raw:  client.API(),
		rand: crypto.DefaultRand(),
	}
}

func (r gotdOutboundRPC) SendText(
	ctx context.Context,
	peer tg.InputPeerClass,
	request relay.SendMessageRequest,
) (int, error) {
	entities, err := mapOutboundTextEntities(request.Text, request.Entities)
	if err != nil {
		return 0, fmt.Errorf("map outbound entities: %w", err)
	}

	sendRequest := &tg.MessagesSendMessageRequest{
		Peer:      peer,
		Message:   request.Text,
		NoWebpage: request.DisableLinkPreview,
		Entities:  entities,
	}
	if markup := mapKeyboardMarkup(request.Keyboard); markup != nil {
		sendRequest.SetReplyMarkup(markup)
	}
	if request.ReplyToMessageID != "" {
		replyID, err := parseMessageID(request.ReplyToMessageID)
		if err != nil {
			return 0, fmt.Errorf("send text parse reply id %s: %w", request.ReplyToMessageID, err)
		}
		sendRequest.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: replyID}
	}

	randomID, err := crypto.RandInt64(r.rand)
	if err != nil {
		return 0, fmt.Errorf("send text random id: %w", err)
	}
	sendRequest.RandomID = randomID

	updates, err := r.raw.MessagesSendMessage(ctx, sendRequest)
	if err != nil {
		return 0, fmt.Errorf("send text: %w", err)
	}

	messageID, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("extract sent message id: %w", err)
	}

	return messageID, nil
}

func (r gotdOutboundRPC) SendPhoto(
	ctx context.Context,
	peer tg.InputPeerClass,
	request relay.SendPhotoRequest,
) (int, error) {
	entities, err := mapOutboundTextEntities(request.Caption, request.Entities)
	if err != nil {
		return 0, fmt.Errorf("map outbound entities: %w", err)
	}

	sendRequest := &tg.MessagesSendMediaRequest{
		Peer:     peer,
		Media:    &tg.InputMediaPhotoExternal{URL: request.PhotoURL},
		Message:  request.Caption,
		Entities: entities,
	}
	if markup := mapKeyboardMarkup(request.Keyboard); markup != nil {
		sendRequest.SetReplyMarkup(markup)
	}

	randomID, err := crypto.RandInt64(r.rand)
	if err != nil {
		return 0, fmt.Errorf("send photo random id: %w", err)
	}
	sendRequest.RandomID = randomID

	updates, err := r.raw.MessagesSendMedia(ctx, sendRequest)
	if err != nil {
		return 0, fmt.Errorf("send photo: %w", err)
	}

	messageID, err := unpack.MessageID(updates, nil)
	if err != nil {
		return 0, fmt.Errorf("extract sent photo id: %w", err)
	}

	return messageID, nil
}

func (r gotdOutboundRPC) AnswerCallback(
	ctx context.Context,
	queryID int64,
	request relay.AnswerCallbackRequest,
) error {
	answer := &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
		Alert:   request.Alert,
	}
	if request.Text != "" {
		answer.SetMessage(request.Text)
	}

	if _, err := r.raw.MessagesSetBotCallbackAnswer(ctx, answer); err != nil {
		return fmt.Errorf("set bot callback answer: %w", err)
	}

	return nil
}

func (r gotdOutboundRPC) AnswerInline(
	ctx context.Context,
	queryID int64,
	request relay.AnswerInlineQueryRequest,
) error {
	results := make([]tg.InputBotInlineResultClass, 0, len(request.Results))
	for _, result := range request.Results {
		entities, err := mapOutboundTextEntities(result.Text, result.Entities)
		if err != nil {
			return fmt.Errorf("map inline result %s entities: %w", result.ID, err)
		}

		sendMessage := &tg.InputBotInlineMessageText{
			Message:  result.Text,
			Entities: entities,
		}
		item := &tg.InputBotInlineResult{
			ID:          result.ID,
			Type:        "article",
			SendMessage: sendMessage,
		}
		item.SetTitle(result.Title)
		if result.Description != "" {
			item.SetDescription(result.Description)
		}
		if result.URL != "" {
			item.SetURL(result.URL)
		}
		results = append(results, item)
	}

	answer := &tg.MessagesSetInlineBotResultsRequest{
		QueryID:   queryID,
		Results:   results,
		CacheTime: int(request.CacheTime / time.Second),
		Private:   request.Personal,
	}
	if _, err := r.raw.MessagesSetInlineBotResults(ctx, answer); err != nil {
		return fmt.Errorf("set inline bot results: %w", err)
	}

	return nil
}
