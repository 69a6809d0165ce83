// Package bayeuxkit wires a Bayeux long-polling pub/sub broker into a
// Buffalo application with a single call: the broker registry, the
// four meta-protocol endpoints, an audit log sink, and a background
// job runtime, all from one Wire call. No SSR, no auth beyond a
// signed browser cookie, no mail.
package bayeuxkit

import (
	"fmt"

	"github.com/gobuffalo/buffalo"

	"github.com/johnjansen/bayeuxkit/audit"
	"github.com/johnjansen/bayeuxkit/auth"
	"github.com/johnjansen/bayeuxkit/broker"
	"github.com/johnjansen/bayeuxkit/events"
	"github.com/johnjansen/bayeuxkit/jobs"
	"github.com/johnjansen/bayeuxkit/meta"
	"github.com/johnjansen/bayeuxkit/secure"
)

// Config holds all configuration for wiring bayeuxkit into an app.
type Config struct {
	// DevMode relaxes secure.Middleware's restrictions for local
	// development.
	DevMode bool

	// CookieSecret signs the BAYEUX_BROWSER cookie. Required - Wire
	// errors without it.
	CookieSecret []byte

	// BasePath is where the four meta endpoints are mounted: BasePath
	// + "/handshake", BasePath + "/", BasePath + "/connect", BasePath +
	// "/disconnect". Empty mounts them at the app root.
	BasePath string

	// Broker tuning. Zero value falls back to broker.DefaultConfig().
	Broker broker.Config

	// RedisURL for the background job runtime (stats reporting, audit
	// vacuum). Empty yields a no-op runtime, same as jobs.NewRuntime.
	RedisURL string

	// AuditDBPath is the sqlite file the audit sink appends to. Empty
	// disables the audit sink entirely - no background job will be
	// registered to vacuum it, and Kit.Audit is nil.
	AuditDBPath string
}

// Kit holds references to every subsystem after Wire.
type Kit struct {
	// Broker is the session/channel registry every meta handler shares.
	Broker *broker.Context

	// Bus is the event bus Broker emits lifecycle notifications to.
	// Application code may attach its own observers via Bus.Subscribe.
	Bus *events.Bus

	// Audit is the sqlite-backed event sink, nil if Config.AuditDBPath
	// was empty.
	Audit *audit.Sink

	// Jobs is the background job runtime (stats reporting, audit vacuum).
	Jobs *jobs.Runtime

	Config Config
}

// Wire installs the Bayeux broker into app: mounts the four
// meta-protocol endpoints, starts the event bus, opens the audit sink
// if configured, and wires a background job runtime (a no-op one when
// RedisURL is empty).
func Wire(app *buffalo.App, cfg Config) (*Kit, error) {
	if len(cfg.CookieSecret) == 0 {
		return nil, fmt.Errorf("bayeuxkit: CookieSecret is required")
	}

	brokerCfg := cfg.Broker
	if brokerCfg == (broker.Config{}) {
		brokerCfg = broker.DefaultConfig()
	}

	bus := events.NewBus(brokerCfg.EventsChannelCapacity)
	ctx := broker.New(brokerCfg, bus)

	kit := &Kit{
		Broker: ctx,
		Bus:    bus,
		Config: cfg,
	}

	if cfg.AuditDBPath != "" {
		sink, err := audit.Open(cfg.AuditDBPath)
		if err != nil {
			return nil, fmt.Errorf("bayeuxkit: opening audit sink: %w", err)
		}
		sink.Follow(bus)
		kit.Audit = sink
	}

	runtime, err := jobs.NewRuntime(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("bayeuxkit: initializing jobs: %w", err)
	}
	runtime.RegisterDefaults(ctx, kit.Audit)
	kit.Jobs = runtime

	app.Use(secure.Middleware(secure.Options{DevMode: cfg.DevMode}))

	codec := auth.NewCodec(cfg.CookieSecret, nil)
	limiter := auth.NewRateLimiter()
	meta.Mount(app, cfg.BasePath, ctx, meta.ConfigFromBroker(brokerCfg), codec, limiter)

	SetGlobalKit(kit)

	return kit, nil
}

// Close tears down Kit's owned resources: the event bus and, if open,
// the audit sink. The job runtime is left running - callers that
// started it with Jobs.Start() are responsible for Jobs.Stop().
func (k *Kit) Close() error {
	k.Bus.Stop()
	if k.Audit != nil {
		return k.Audit.Close()
	}
	return nil
}

// Version returns the current bayeuxkit version.
func Version() string {
	return "0.1.0-alpha"
}
