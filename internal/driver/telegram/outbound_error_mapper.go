package telegram

import (
	"errors"
	"strings"

	"randomwiki/pkg/relay"

	"github.com/gotd/td/tgerr"
)

// mapTelegramOutboundError classifies gotd RPC failures into relay.OutboundError.
func mapTelegramOutboundError(operation relay.OutboundOperation, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, relay.ErrInvalidOutboundRequest) || errors.Is(err, relay.ErrOutboundUnsupported) {
		return err
	}

	outboundErr := &relay.OutboundError{
		Operation: operation,
		Kind:      relay.OutboundErrorKindUnknown,
		Platform:  DriverPlatform,
		Cause:     err,
	}

	if retryAfter, ok := tgerr.AsFloodWait(err); ok {
		outboundErr.Kind = relay.OutboundErrorKindRateLimited
		outboundErr.RetryAfter = retryAfter
		if rpcErr, hasRPC := tgerr.As(err); hasRPC {
			outboundErr.Code = rpcErr.Code
			outboundErr.Type = rpcErr.Type
		}

		return outboundErr
	}

	rpcErr, ok := tgerr.As(err)
	if !ok {
		return outboundErr
	}

	outboundErr.Code = rpcErr.Code
	outboundErr.Type = rpcErr.Type
	outboundErr.Kind = classifyTelegramRPCError(rpcErr)

	return outboundErr
}

func classifyTelegramRPCError(rpcErr *tgerr.Error) relay.OutboundErrorKind {
	if rpcErr == nil {
		return relay.OutboundErrorKindUnknown
	}

	errorType := strings.ToUpper(strings.TrimSpace(rpcErr.Type))
	if rpcErr.Code == 420 || rpcErr.Code == 429 || strings.Contains(errorType, "FLOOD") {
		return relay.OutboundErrorKindRateLimited
	}
	// Expired callback and inline query ids cannot be answered again.
	if strings.Contains(errorType, "QUERY_ID_INVALID") {
		return relay.OutboundErrorKindPermanent
	}

	switch {
	case rpcErr.Code == 303:
		return relay.OutboundErrorKindTemporary
	case rpcErr.Code >= 400 && rpcErr.Code <= 406:
		return relay.OutboundErrorKindPermanent
	case rpcErr.Code >= 500:
		return relay.OutboundErrorKindTemporary
	default:
		return relay.OutboundErrorKindUnknown
	}
}
