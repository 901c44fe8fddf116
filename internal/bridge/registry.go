// Package bridge issues queries to the connector process over the bus and
// matches each broadcast response back to the caller waiting for it.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"discord_web/internal/bus"
	"discord_web/pkg"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTimeout applies to calls made without an explicit timeout
const DefaultTimeout = time.Second

// pendingCall is owned by the registry. done is buffered so delivery never
// blocks; exactly one envelope is ever sent on it.
type pendingCall struct {
	id       string
	done     chan pkg.ResponseEnvelope
	created  time.Time
	deadline time.Time
}

// Registry correlates bus responses with in-flight calls
type Registry struct {
	bus     bus.Bus
	timeout time.Duration
	newID   func() string
	logger  zerolog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
	sub     bus.Subscription
	closed  bool
	wg      sync.WaitGroup
}

// Option configures a Registry
type Option func(*Registry)

// WithTimeout overrides DefaultTimeout
func WithTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithIDGenerator replaces the uuid correlation id source
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) {
		if newID != nil {
			r.newID = newID
		}
	}
}

// WithLogger sets the registry logger
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates a registry publishing on b. Call Start before Call.
func NewRegistry(b bus.Bus, opts ...Option) *Registry {
	r := &Registry{
		bus:     b,
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
		logger:  zerolog.Nop(),
		pending: make(map[string]*pendingCall),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start subscribes to the response channel and begins resolving calls.
// It returns once the subscription is active.
func (r *Registry) Start(ctx context.Context) error {
	sub, err := r.bus.Subscribe(ctx, pkg.ChannelResponse)
	if err != nil {
		return fmt.Errorf("failed to subscribe to responses: %w", err)
	}

	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		bus.Consume(ctx, sub, r.handleMessage)
	}()
	return nil
}

// Close stops consuming responses. Pending calls run out their timeouts.
func (r *Registry) Close() error {
	r.mu.Lock()
	r.closed = true
	sub := r.sub
	r.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	r.wg.Wait()
	return err
}

// Guild asks the connector for the guild projection
func (r *Registry) Guild(ctx context.Context, guildID string) (pkg.Guild, error) {
	var guild pkg.Guild
	payload, err := r.Call(ctx, pkg.RequestGuild, pkg.RequestArgs{Guild: guildID}, 0)
	if err != nil {
		return guild, err
	}
	if err := json.Unmarshal(payload, &guild); err != nil {
		return guild, fmt.Errorf("failed to decode guild payload: %w", err)
	}
	return guild, nil
}

// Member asks the connector for userID's membership in guildID
func (r *Registry) Member(ctx context.Context, guildID, userID string) (pkg.Member, error) {
	var member pkg.Member
	payload, err := r.Call(ctx, pkg.RequestMember, pkg.RequestArgs{Guild: guildID, Member: userID}, 0)
	if err != nil {
		return member, err
	}
	if err := json.Unmarshal(payload, &member); err != nil {
		return member, fmt.Errorf("failed to decode member payload: %w", err)
	}
	return member, nil
}

// Call publishes a request and waits for its response, the timeout, or ctx.
// A non-positive timeout uses the registry default.
func (r *Registry) Call(ctx context.Context, typ pkg.RequestType, args pkg.RequestArgs, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = r.timeout
	}

	call, err := r.register(timeout)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(pkg.RequestEnvelope{Type: typ, ID: call.id, Args: args})
	if err != nil {
		r.remove(call.id)
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if err := r.bus.Publish(ctx, pkg.ChannelRequest, data); err != nil {
		r.remove(call.id)
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-call.done:
		return r.result(resp)
	case <-timer.C:
		return r.abandon(call, ErrTimeout)
	case <-ctx.Done():
		return r.abandon(call, ctx.Err())
	}
}

// Pending reports how many calls are waiting for a response
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Resolve delivers resp to the call waiting on its id. It reports false when
// no such call is pending, which includes calls that already timed out.
func (r *Registry) Resolve(resp pkg.ResponseEnvelope) bool {
	r.mu.Lock()
	call, ok := r.pending[resp.ID]
	if ok {
		delete(r.pending, resp.ID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	call.done <- resp
	return true
}

func (r *Registry) register(timeout time.Duration) (*pendingCall, error) {
	now := time.Now()
	call := &pendingCall{
		id:       r.newID(),
		done:     make(chan pkg.ResponseEnvelope, 1),
		created:  now,
		deadline: now.Add(timeout),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}
	if _, exists := r.pending[call.id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, call.id)
	}
	r.pending[call.id] = call
	return call, nil
}

func (r *Registry) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[id]; !ok {
		return false
	}
	delete(r.pending, id)
	return true
}

// abandon ends a call that stopped waiting. If Resolve won the race the
// response is already buffered and is returned instead of cause.
func (r *Registry) abandon(call *pendingCall, cause error) (json.RawMessage, error) {
	if r.remove(call.id) {
		r.logger.Debug().
			Str("correlation_id", call.id).
			Dur("waited", time.Since(call.created)).
			Time("deadline", call.deadline).
			Err(cause).
			Msg("bridge call abandoned")
		return nil, cause
	}
	return r.result(<-call.done)
}

func (r *Registry) result(resp pkg.ResponseEnvelope) (json.RawMessage, error) {
	if err := statusErr(resp.Code); err != nil {
		return nil, err
	}
	if len(resp.Payload) == 0 {
		return nil, errors.New("bridge: response missing payload")
	}
	return resp.Payload, nil
}

func (r *Registry) handleMessage(_ context.Context, payload []byte) {
	var resp pkg.ResponseEnvelope
	if err := json.Unmarshal(payload, &resp); err != nil {
		r.logger.Debug().Err(err).Msg("dropping undecodable response")
		return
	}
	if !r.Resolve(resp) {
		r.logger.Debug().Str("correlation_id", resp.ID).Msg("no pending call for response")
	}
}
