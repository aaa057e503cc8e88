package discordtransport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/CedricFinance/paulpoll/domain/services"
	"github.com/bwmarrin/discordgo"
)

var errorKinds = map[int]services.ErrorKind{
	discordgo.ErrCodeUnknownMessage:               services.KindMessageNotFound,
	discordgo.ErrCodeUnknownChannel:               services.KindChatNotFound,
	discordgo.ErrCodeMissingAccess:                services.KindCantAccessChat,
	discordgo.ErrCodeMissingPermissions:           services.KindCantAccessChat,
	discordgo.ErrCodeCannotSendMessagesToThisUser: services.KindCantAccessChat,
	discordgo.ErrCodeCannotEditFromAnotherUser:    services.KindAuthorRequired,
	discordgo.ErrCodeInvalidFormBody:              services.KindMessageInvalid,
	discordgo.ErrCodeUnauthorized:                 services.KindUnauthorized,
}

// Classify maps a discordgo error onto a services.TransportError.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var rateLimited *discordgo.RateLimitError
	if errors.As(err, &rateLimited) && rateLimited.RateLimit != nil && rateLimited.TooManyRequests != nil {
		return services.RetryAfter(rateLimited.RetryAfter, err)
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			if kind, ok := errorKinds[restErr.Message.Code]; ok {
				return services.NewTransportError(kind, err)
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusTooManyRequests:
				return services.RetryAfter(retryAfterHeader(restErr.Response.Header), err)
			case http.StatusUnauthorized:
				return services.NewTransportError(services.KindUnauthorized, err)
			case http.StatusNotFound:
				return services.NewTransportError(services.KindMessageNotFound, err)
			}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return services.NewTransportError(services.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.NewTransportError(services.KindTimeout, err)
	}
	return services.NewTransportError(services.KindNetwork, err)
}

// retryAfterHeader reads the Retry-After header, in seconds.
func retryAfterHeader(header http.Header) time.Duration {
	seconds, err := strconv.ParseFloat(header.Get("Retry-After"), 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}
