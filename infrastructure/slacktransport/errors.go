package slacktransport

import (
	"context"
	"errors"
	"net"

	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/slack-go/slack"
)

var errorKinds = map[string]services.ErrorKind{
	"message_not_found":     services.KindMessageNotFound,
	"cant_update_message":   services.KindAuthorRequired,
	"cant_delete_message":   services.KindAuthorRequired,
	"edit_window_closed":    services.KindAuthorRequired,
	"channel_not_found":     services.KindChatNotFound,
	"user_not_found":        services.KindChatNotFound,
	"not_in_channel":        services.KindCantAccessChat,
	"is_archived":           services.KindCantAccessChat,
	"restricted_action":     services.KindCantAccessChat,
	"cannot_dm_bot":         services.KindCantAccessChat,
	"msg_too_long":          services.KindMessageInvalid,
	"invalid_blocks":        services.KindMessageInvalid,
	"invalid_blocks_format": services.KindMessageInvalid,
	"no_text":               services.KindMessageInvalid,
	"invalid_auth":          services.KindUnauthorized,
	"not_authed":            services.KindUnauthorized,
	"account_inactive":      services.KindUnauthorized,
	"token_revoked":         services.KindUnauthorized,
	"token_expired":         services.KindUnauthorized,
	"missing_scope":         services.KindUnauthorized,
	"ratelimited":           services.KindRetryAfter,
}

// Classify maps a slack-go error onto a services.TransportError.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var rateLimited *slack.RateLimitedError
	if errors.As(err, &rateLimited) {
		return services.RetryAfter(rateLimited.RetryAfter, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.NewTransportError(services.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.NewTransportError(services.KindTimeout, err)
	}

	if kind, ok := errorKinds[err.Error()]; ok {
		return &services.TransportError{Kind: kind, Err: err}
	}
	return services.NewTransportError(services.KindNetwork, err)
}
