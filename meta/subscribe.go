package meta

import (
	"net/http"

	"github.com/gobuffalo/buffalo"

	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
	"github.com/johnjansen/bayeuxkit/channel"
)

// handleSubscribe answers POST {base}/. It requires a
// matching BAYEUX_BROWSER cookie and a registered clientId, validates
// every channel name in the subscription list against the subscribe
// grammar, and hands the list to the registry.
func handleSubscribe(ctx *broker.Context, codec *auth.Codec) buffalo.Handler {
	return func(c buffalo.Context) error {
		var envelope []Message
		if err := bindEnvelope(c, &envelope); err != nil || len(envelope) == 0 {
			return renderOne(c, http.StatusBadRequest, sessionUnknown("", "", nil))
		}
		msg := envelope[0]

		if msg.Channel != ChannelSubscribe {
			return renderOne(c, http.StatusOK, sessionUnknown(msg.ID, msg.Channel, nil))
		}
		if len(msg.Subscription) == 0 {
			return renderOne(c, http.StatusOK, subscriptionMissing(msg.ID))
		}

		sess, ok := matchSession(ctx, codec, c.Request(), msg.ClientID)
		if !ok {
			return renderOne(c, http.StatusOK, sessionUnknown(msg.ID, msg.Channel, nil))
		}

		for _, name := range msg.Subscription {
			if !channel.ValidSubscribe(name) {
				return c.Error(http.StatusBadRequest, invalidChannelError(name))
			}
		}

		if err := ctx.Subscribe(sess.ClientID, msg.Subscription); err != nil {
			return renderOne(c, http.StatusOK, sessionUnknown(msg.ID, msg.Channel, nil))
		}

		return renderOne(c, http.StatusOK, Message{
			ID:           msg.ID,
			Channel:      msg.Channel,
			Subscription: msg.Subscription,
			Successful:   boolPtr(true),
		})
	}
}

type invalidChannelError string

func (e invalidChannelError) Error() string { return "meta: invalid channel name: " + string(e) }
