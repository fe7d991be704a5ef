package kernel

import (
	"context"
	"fmt"

	"randomwiki/pkg/relay"
)

// replyHandlerFault tells the user that handling their event failed after a
// handler panic. Inline queries have no conversation to write to and are skipped.
func (k *Kernel) replyHandlerFault(ctx context.Context, event *relay.Event, _ error) {
	if event == nil || event.Kind == relay.EventKindInlineQueryReceived {
		return
	}

	dispatcher, err := relay.ResolveAs[relay.Dispatcher](k.services, relay.ServiceDispatcher)
	if err != nil {
		k.cfg.onAsyncError(ctx, "handler fault resolve dispatcher", err)
		return
	}
	target, err := relay.OutboundTargetFromEvent(event)
	if err != nil {
		k.cfg.onAsyncError(ctx, "handler fault derive target", err)
		return
	}

	replyCtx, cancel := context.WithTimeout(ctx, k.cfg.handlerTimeout)
	defer cancel()

	if event.Callback != nil {
		if err := dispatcher.AnswerCallback(replyCtx, relay.AnswerCallbackRequest{QueryID: event.Callback.QueryID}); err != nil {
			k.cfg.onAsyncError(ctx, "handler fault answer callback", err)
		}
	}

	request := relay.SendMessageRequest{Target: target, Text: k.cfg.handlerErrorReply}
	if event.Message != nil {
		request.ReplyToMessageID = event.Message.ID
	}
	if _, err := dispatcher.SendMessage(replyCtx, request); err != nil {
		k.cfg.onAsyncError(ctx, "handler fault reply", fmt.Errorf("event %s: %w", event.ID, err))
	}
}
