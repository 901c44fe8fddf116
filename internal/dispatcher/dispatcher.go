// Package dispatcher answers bridge queries on the connector side and keeps
// the owners cache in step with guild lifecycle events.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"discord_web/internal/bus"
	"discord_web/pkg"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Defaults for Config zero values
const (
	DefaultLookupTimeout = 5 * time.Second
	DefaultMaxInFlight   = 64
)

// Platform is the live chat-platform connection
type Platform interface {
	// Guild returns the cached guild, false when the bot cannot see it
	Guild(guildID string) (pkg.Guild, bool)
	// Member looks a user up in a guild, possibly over the network
	Member(ctx context.Context, guildID, userID string) (pkg.Member, error)
}

// OwnerWriter is the write side of the owners cache
type OwnerWriter interface {
	Owner(ctx context.Context, guildID string) (string, error)
	SetOwner(ctx context.Context, guildID, ownerID string) error
	SetOwners(ctx context.Context, owners map[string]string) error
	DeleteOwner(ctx context.Context, guildID string) error
}

// Config tunes the dispatcher
type Config struct {
	LookupTimeout time.Duration
	MaxInFlight   int
}

// Dispatcher resolves RequestEnvelopes against a Platform
type Dispatcher struct {
	bus      bus.Bus
	platform Platform
	owners   OwnerWriter
	config   Config
	logger   zerolog.Logger

	mu    sync.Mutex
	sub   bus.Subscription
	group *errgroup.Group
	done  chan struct{}
}

// New creates a dispatcher. Start begins serving requests.
func New(b bus.Bus, platform Platform, owners OwnerWriter, config Config, logger zerolog.Logger) *Dispatcher {
	if config.LookupTimeout <= 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = DefaultMaxInFlight
	}
	return &Dispatcher{
		bus:      b,
		platform: platform,
		owners:   owners,
		config:   config,
		logger:   logger,
	}
}

// Start subscribes to the request channel and serves requests until ctx is
// done or Close is called. It returns once the subscription is active.
func (d *Dispatcher) Start(ctx context.Context) error {
	sub, err := d.bus.Subscribe(ctx, pkg.ChannelRequest)
	if err != nil {
		return fmt.Errorf("failed to subscribe to requests: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.config.MaxInFlight)

	d.mu.Lock()
	d.sub = sub
	d.group = group
	d.done = make(chan struct{})
	d.mu.Unlock()

	go func() {
		defer close(d.done)
		bus.Consume(groupCtx, sub, func(ctx context.Context, payload []byte) {
			// Go blocks once MaxInFlight handlers are running.
			group.Go(func() error {
				d.Handle(ctx, payload)
				return nil
			})
		})
		_ = group.Wait()
	}()
	return nil
}

// Wait blocks until the serving loop and all in-flight handlers finish
func (d *Dispatcher) Wait() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops taking new requests and waits for in-flight ones
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	sub := d.sub
	d.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	d.Wait()
	return err
}

// Handle answers one raw request. Every decodable request gets exactly one
// response, whatever the outcome.
func (d *Dispatcher) Handle(ctx context.Context, payload []byte) {
	var req pkg.RequestEnvelope
	if err := json.Unmarshal(payload, &req); err != nil {
		d.logger.Warn().Err(err).Msg("dropping undecodable request")
		return
	}
	if req.ID == "" {
		d.logger.Warn().Str("type", string(req.Type)).Msg("dropping request without correlation id")
		return
	}

	resp := d.resolve(ctx, req)
	resp.ID = req.ID

	data, err := json.Marshal(resp)
	if err != nil {
		d.logger.Error().Err(err).Str("correlation_id", req.ID).Msg("failed to marshal response")
		data, _ = json.Marshal(pkg.ResponseEnvelope{ID: req.ID, Code: http.StatusInternalServerError})
	}
	if err := d.bus.Publish(ctx, pkg.ChannelResponse, data); err != nil {
		d.logger.Error().Err(err).Str("correlation_id", req.ID).Msg("failed to publish response")
		return
	}

	d.logger.Debug().
		Str("correlation_id", req.ID).
		Str("type", string(req.Type)).
		Int("code", resp.Code).
		Msg("request answered")
}

func (d *Dispatcher) resolve(ctx context.Context, req pkg.RequestEnvelope) pkg.ResponseEnvelope {
	switch req.Type {
	case pkg.RequestGuild:
		return d.guild(req.Args)
	case pkg.RequestMember:
		return d.member(ctx, req.Args)
	default:
		d.logger.Warn().Str("type", string(req.Type)).Msg("unknown request type")
		return status(http.StatusBadRequest)
	}
}

func (d *Dispatcher) guild(args pkg.RequestArgs) pkg.ResponseEnvelope {
	if args.Guild == "" {
		return status(http.StatusBadRequest)
	}
	guild, ok := d.platform.Guild(args.Guild)
	if !ok {
		return status(http.StatusNotFound)
	}
	return ok200(guild)
}

func (d *Dispatcher) member(ctx context.Context, args pkg.RequestArgs) pkg.ResponseEnvelope {
	if args.Guild == "" || args.Member == "" {
		return status(http.StatusBadRequest)
	}
	if _, ok := d.platform.Guild(args.Guild); !ok {
		return status(http.StatusNotFound)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, d.config.LookupTimeout)
	defer cancel()

	member, err := d.platform.Member(lookupCtx, args.Guild, args.Member)
	if err != nil {
		// Lookup failures and missing members look the same to the caller.
		d.logger.Debug().Err(err).Str("guild", args.Guild).Msg("member lookup failed")
		return status(http.StatusNotFound)
	}
	return ok200(member)
}

func status(code int) pkg.ResponseEnvelope {
	return pkg.ResponseEnvelope{Code: code}
}

func ok200(v any) pkg.ResponseEnvelope {
	data, err := json.Marshal(v)
	if err != nil {
		return status(http.StatusInternalServerError)
	}
	return pkg.ResponseEnvelope{Code: http.StatusOK, Payload: data}
}
