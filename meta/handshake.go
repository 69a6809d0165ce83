package meta

import (
	"net/http"

	"github.com/gobuffalo/buffalo"

	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
)

// handleHandshake answers POST {base}/handshake. A
// successful handshake mints (or reuses) the BAYEUX_BROWSER cookie,
// registers a fresh session against it, and returns a clientId plus the
// default retry advice.
func handleHandshake(ctx *broker.Context, cfg Config, codec *auth.Codec) buffalo.Handler {
	return func(c buffalo.Context) error {
		var envelope []Message
		if err := bindEnvelope(c, &envelope); err != nil || len(envelope) == 0 {
			return renderOne(c, http.StatusBadRequest, sessionUnknown("", "", nil))
		}
		msg := envelope[0]

		if msg.Channel != ChannelHandshake {
			return renderOne(c, http.StatusOK, sessionUnknown(msg.ID, msg.Channel, nil))
		}
		if msg.MinimumVersion != protocolVersion {
			return renderOne(c, http.StatusOK, wrongMinimumVersion(msg.ID, msg.MinimumVersion))
		}

		cookieID, _, err := codec.EnsureBrowserCookie(c.Response(), c.Request())
		if err != nil {
			return c.Error(http.StatusInternalServerError, err)
		}

		clientID, err := ctx.Register(cookieID.String())
		if err != nil {
			return c.Error(http.StatusInternalServerError, err)
		}

		return renderOne(c, http.StatusOK, Message{
			ID:                       msg.ID,
			Channel:                  msg.Channel,
			Successful:               boolPtr(true),
			ClientID:                 clientID,
			Version:                  protocolVersion,
			SupportedConnectionTypes: []string{connectionTypeLongPolling},
			Advice:                   adviceRetry(cfg.TimeoutMs, cfg.IntervalMs),
		})
	}
}
