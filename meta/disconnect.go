package meta

import (
	"net/http"

	"github.com/gobuffalo/buffalo"

	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
)

// handleDisconnect answers POST {base}/disconnect. On a successful
// disconnect it tears the session down and replies with plain HTTP
// 400 and no body, an intentional quirk kept for protocol
// compatibility rather than a bug. A malformed request (no
// /meta/disconnect message, or one missing clientId) gets a normal
// envelope reply describing the problem instead, since there was no
// session to tear down in the first place.
func handleDisconnect(ctx *broker.Context, codec *auth.Codec) buffalo.Handler {
	return func(c buffalo.Context) error {
		var envelope []Message
		if err := bindEnvelope(c, &envelope); err != nil {
			return renderOne(c, http.StatusBadRequest, sessionUnknown("", "", nil))
		}

		var msg Message
		var found bool
		for _, m := range envelope {
			if m.Channel == ChannelDisconnect {
				msg, found = m, true
				break
			}
		}
		if !found {
			return renderOne(c, http.StatusOK, sessionUnknown("", ChannelDisconnect, nil))
		}

		if _, ok := matchSession(ctx, codec, c.Request(), msg.ClientID); !ok {
			return renderOne(c, http.StatusOK, sessionUnknown(msg.ID, msg.Channel, nil))
		}

		ctx.Unsubscribe(msg.ClientID)

		c.Response().WriteHeader(http.StatusBadRequest)
		return nil
	}
}
