package meta

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gobuffalo/buffalo"

	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
	"github.com/johnjansen/bayeuxkit/session"
)

// handleConnect answers POST {base}/connect. The
// endpoint is dual-role: a single-message envelope addressed to
// /meta/connect is a long-poll wait for the next message on that
// client's delivery queue; anything else (several messages, or one
// message addressed elsewhere) is a publish batch multiplexed through
// the same endpoint.
func handleConnect(ctx *broker.Context, cfg Config, codec *auth.Codec) buffalo.Handler {
	return func(c buffalo.Context) error {
		var envelope []Message
		if err := bindEnvelope(c, &envelope); err != nil || len(envelope) == 0 {
			return renderOne(c, http.StatusBadRequest, sessionUnknown("", "", nil))
		}

		if len(envelope) == 1 && envelope[0].Channel == ChannelConnect {
			return handleConnectWait(c, ctx, cfg, codec, envelope[0])
		}
		return handlePublish(c, ctx, codec, envelope)
	}
}

// handleConnectWait implements the long-poll branch: acquire the
// session's delivery queue reader, block up to the advised (or default)
// timeout, and reply with whatever arrives or a retry advice.
func handleConnectWait(c buffalo.Context, ctx *broker.Context, cfg Config, codec *auth.Codec, msg Message) error {
	sess, ok := matchSession(ctx, codec, c.Request(), msg.ClientID)
	if !ok {
		return renderOne(c, http.StatusOK, sessionUnknown(msg.ID, msg.Channel, adviceHandshake()))
	}

	timeoutMs := cfg.TimeoutMs
	if msg.Advice != nil && msg.Advice.Timeout != nil {
		timeoutMs = *msg.Advice.Timeout
	}

	recv, err := sess.Acquire()
	if err != nil {
		return renderOne(c, http.StatusOK, twoConnections(msg.ID, msg.Channel))
	}
	defer recv.Release()

	delivered, err := recv.RecvTimeout(time.Duration(timeoutMs) * time.Millisecond)
	switch err {
	case nil:
		return renderMany(c, http.StatusOK, []Message{
			{Channel: delivered.Channel, Data: delivered.Payload},
			ok(msg.ID, msg.Channel),
		})
	case session.ErrElapsed:
		return renderOne(c, http.StatusOK, Message{
			ID:         msg.ID,
			Channel:    msg.Channel,
			Successful: boolPtr(true),
			Advice:     adviceRetry(cfg.TimeoutMs, cfg.IntervalMs),
		})
	default: // session.ErrClosed, or any other teardown mid-wait
		return c.Error(http.StatusInternalServerError, err)
	}
}

// handlePublish implements the otherwise branch: every message in the
// envelope is a publish to some application channel, multiplexed
// through the same endpoint a long-poll uses. The whole batch is
// rejected with HTTP 400 if any message targets a channel containing
// the literal substring "/meta/", a plain substring check rather than
// a path-segment comparison.
func handlePublish(c buffalo.Context, ctx *broker.Context, codec *auth.Codec, envelope []Message) error {
	for _, msg := range envelope {
		if msg.Channel != "" && strings.Contains(msg.Channel, "/meta/") {
			return c.Error(http.StatusBadRequest, errMetaChannelInPublish)
		}
	}

	cookieID, err := codec.BrowserCookie(c.Request())
	if err != nil {
		return renderOne(c, http.StatusOK, sessionUnknown("", "", nil))
	}

	replies := make([]Message, len(envelope))
	for i, msg := range envelope {
		replies[i] = publishOne(ctx, cookieID.String(), msg)
	}
	return renderMany(c, http.StatusOK, replies)
}

func publishOne(ctx *broker.Context, cookie string, msg Message) Message {
	if msg.ClientID == "" {
		return sessionUnknown(msg.ID, msg.Channel, adviceHandshake())
	}
	sess, err := ctx.Session(msg.ClientID)
	if err != nil || sess.CookieID != cookie {
		return sessionUnknown(msg.ID, msg.Channel, adviceHandshake())
	}
	if msg.Channel == "" {
		return channelMissing(msg.ID)
	}

	if err := ctx.Publish(msg.Channel, msg.Data); err != nil {
		log.Printf("meta: publish to %s: %v", msg.Channel, err)
	}
	return ok(msg.ID, msg.Channel)
}

type publishError string

func (e publishError) Error() string { return string(e) }

const errMetaChannelInPublish = publishError("meta: channel under /meta/ in publish batch")
