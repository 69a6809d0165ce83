package meta

import (
	"encoding/json"
	"net/http"

	"github.com/gobuffalo/buffalo"

	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
)

// Bayeux meta-channel names, used both to validate incoming envelopes
// and to echo the channel field back in replies.
const (
	ChannelHandshake  = "/meta/handshake"
	ChannelSubscribe  = "/meta/subscribe"
	ChannelConnect    = "/meta/connect"
	ChannelDisconnect = "/meta/disconnect"

	protocolVersion           = "1.0"
	connectionTypeLongPolling = "long-polling"
)

// Config carries the per-request timing meta advertises in its advice
// replies. It mirrors broker.Config's Timeout/Interval fields rather
// than importing broker.Config directly, so Mount's caller stays free
// to wire a different registry type behind the same routes later.
type Config struct {
	TimeoutMs  int64
	IntervalMs int64
}

// ConfigFromBroker derives a meta.Config from the broker.Config a
// Context was built with.
func ConfigFromBroker(cfg broker.Config) Config {
	return Config{
		TimeoutMs:  cfg.Timeout.Milliseconds(),
		IntervalMs: cfg.Interval.Milliseconds(),
	}
}

// Mount wires the four meta-channel routes under basePath against ctx.
// basePath is typically "/bayeux" or "" (server root); the resulting
// routes are {basePath}/handshake, {basePath}/ (subscribe),
// {basePath}/connect, and {basePath}/disconnect.
//
// limiter may be nil, in which case /meta/handshake is left unthrottled.
func Mount(app *buffalo.App, basePath string, ctx *broker.Context, cfg Config, codec *auth.Codec, limiter *auth.RateLimiter) {
	group := app
	if basePath != "" {
		group = app.Group(basePath)
	}

	handshakeHandler := handleHandshake(ctx, cfg, codec)
	if limiter != nil {
		handshakeHandler = HandshakeRateLimiter(limiter)(handshakeHandler)
	}
	group.POST("/handshake", handshakeHandler)

	group.POST("/", handleSubscribe(ctx, codec))
	group.POST("/connect", handleConnect(ctx, cfg, codec))
	group.POST("/disconnect", handleDisconnect(ctx, codec))
}

// HandshakeRateLimiter wraps limiter in a buffalo.MiddlewareFunc, the
// only place in this module a rate limiter touches an HTTP framework
// directly. Mounted on /meta/handshake alone: subscribe, connect, and
// disconnect all require an already-registered session and so can't be
// used to mint fresh ones.
func HandshakeRateLimiter(limiter *auth.RateLimiter) buffalo.MiddlewareFunc {
	return func(next buffalo.Handler) buffalo.Handler {
		return func(c buffalo.Context) error {
			ip := auth.ClientIP(c.Request())
			if allowed, retryAfter := limiter.CheckRateLimit(ip); !allowed {
				c.Response().Header().Set("Retry-After", retryAfter.String())
				return renderOne(c, http.StatusTooManyRequests, Message{
					Successful: boolPtr(false),
					Error:      "429::rate_limited",
				})
			}
			limiter.RecordAttempt(ip)
			return next(c)
		}
	}
}

// bindEnvelope decodes a Bayeux request body, which is always a JSON
// array of one or more messages, into msgs.
func bindEnvelope(c buffalo.Context, msgs *[]Message) error {
	defer c.Request().Body.Close()
	return json.NewDecoder(c.Request().Body).Decode(msgs)
}

// renderOne writes a single-message envelope reply.
func renderOne(c buffalo.Context, status int, msg Message) error {
	return renderMany(c, status, []Message{msg})
}

// renderMany writes a multi-message envelope reply.
func renderMany(c buffalo.Context, status int, msgs []Message) error {
	c.Response().Header().Set("Content-Type", "application/json")
	c.Response().WriteHeader(status)
	return json.NewEncoder(c.Response()).Encode(msgs)
}
