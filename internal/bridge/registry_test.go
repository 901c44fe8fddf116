package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"discord_web/internal/bus"
	"discord_web/pkg"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// responder answers every request on b with reply(req).
// A nil reply means "stay silent".
func responder(t *testing.T, b bus.Bus, reply func(pkg.RequestEnvelope) *pkg.ResponseEnvelope) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sub, err := b.Subscribe(ctx, pkg.ChannelRequest)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	go bus.Consume(ctx, sub, func(ctx context.Context, payload []byte) {
		var req pkg.RequestEnvelope
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		resp := reply(req)
		if resp == nil {
			return
		}
		data, _ := json.Marshal(resp)
		_ = b.Publish(ctx, pkg.ChannelResponse, data)
	})
}

func startRegistry(t *testing.T, b bus.Bus, opts ...Option) *Registry {
	t.Helper()
	r := NewRegistry(b, opts...)
	require.NoError(t, r.Start(context.Background()))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func okPayload(v any) *pkg.ResponseEnvelope {
	data, _ := json.Marshal(v)
	return &pkg.ResponseEnvelope{Code: 200, Payload: data}
}

func TestCallResolvesGuild(t *testing.T) {
	b := bus.NewMemoryBus()
	responder(t, b, func(req pkg.RequestEnvelope) *pkg.ResponseEnvelope {
		resp := okPayload(pkg.Guild{ID: req.Args.Guild, Name: "guild " + req.Args.Guild})
		resp.ID = req.ID
		return resp
	})
	r := startRegistry(t, b)

	guild, err := r.Guild(context.Background(), "123")
	require.NoError(t, err)
	assert.Equal(t, "123", guild.ID)
	assert.Equal(t, "guild 123", guild.Name)
	assert.Zero(t, r.Pending())
}

func TestCallSendsMemberArgs(t *testing.T) {
	b := bus.NewMemoryBus()
	seen := make(chan pkg.RequestEnvelope, 1)
	responder(t, b, func(req pkg.RequestEnvelope) *pkg.ResponseEnvelope {
		seen <- req
		resp := okPayload(pkg.Member{ID: req.Args.Member})
		resp.ID = req.ID
		return resp
	})
	r := startRegistry(t, b)

	member, err := r.Member(context.Background(), "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", member.ID)

	req := <-seen
	assert.Equal(t, pkg.RequestMember, req.Type)
	assert.Equal(t, pkg.RequestArgs{Guild: "g1", Member: "u1"}, req.Args)
	assert.NotEqual(t, "u1", req.ID, "correlation id must not be the subject id")
}

func TestCallNotFoundIsDistinct(t *testing.T) {
	b := bus.NewMemoryBus()
	responder(t, b, func(req pkg.RequestEnvelope) *pkg.ResponseEnvelope {
		return &pkg.ResponseEnvelope{ID: req.ID, Code: 404}
	})
	r := startRegistry(t, b)

	_, err := r.Guild(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrTransport)
}

func TestCallOtherStatus(t *testing.T) {
	b := bus.NewMemoryBus()
	responder(t, b, func(req pkg.RequestEnvelope) *pkg.ResponseEnvelope {
		return &pkg.ResponseEnvelope{ID: req.ID, Code: 400}
	})
	r := startRegistry(t, b)

	_, err := r.Call(context.Background(), "bogus", pkg.RequestArgs{}, 0)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 400, statusErr.Code)
}

func TestCallTimeoutBoundary(t *testing.T) {
	b := bus.NewMemoryBus()
	responder(t, b, func(pkg.RequestEnvelope) *pkg.ResponseEnvelope { return nil })
	r := startRegistry(t, b)

	start := time.Now()
	_, err := r.Call(context.Background(), pkg.RequestGuild, pkg.RequestArgs{Guild: "1"}, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
	assert.Zero(t, r.Pending())
}

func TestCallDefaultTimeout(t *testing.T) {
	b := bus.NewMemoryBus()
	r := startRegistry(t, b, WithTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := r.Guild(context.Background(), "1")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestConcurrentCallsResolveIndependently(t *testing.T) {
	b := bus.NewMemoryBus()

	var mu sync.Mutex
	var held []pkg.RequestEnvelope
	const calls = 50

	// Hold every request, then answer them all in reverse order.
	responder(t, b, func(req pkg.RequestEnvelope) *pkg.ResponseEnvelope {
		mu.Lock()
		held = append(held, req)
		ready := len(held) == calls
		batch := append([]pkg.RequestEnvelope(nil), held...)
		mu.Unlock()

		if ready {
			go func() {
				for i := len(batch) - 1; i >= 0; i-- {
					resp := okPayload(pkg.Guild{ID: batch[i].Args.Guild})
					resp.ID = batch[i].ID
					data, _ := json.Marshal(resp)
					_ = b.Publish(context.Background(), pkg.ChannelResponse, data)
				}
			}()
		}
		return nil
	})
	r := startRegistry(t, b)

	var wg sync.WaitGroup
	errs := make(chan error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf("guild-%d", i)
			guild, err := r.Guild(context.Background(), want)
			if err != nil {
				errs <- err
				return
			}
			if guild.ID != want {
				errs <- fmt.Errorf("call %d got %q", i, guild.ID)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, r.Pending())
}

func TestResolveAndTimeoutRaceYieldsOneOutcome(t *testing.T) {
	for i := 0; i < 50; i++ {
		b := bus.NewMemoryBus()
		id := fmt.Sprintf("race-%d", i)
		r := NewRegistry(b, WithIDGenerator(func() string { return id }))

		sub, err := b.Subscribe(context.Background(), pkg.ChannelRequest)
		require.NoError(t, err)

		resolved := make(chan bool, 1)
		go func() {
			<-sub.Messages()
			time.Sleep(5 * time.Millisecond)
			resp := okPayload(pkg.Guild{ID: "g"})
			resp.ID = id
			resolved <- r.Resolve(*resp)
		}()

		payload, err := r.Call(context.Background(), pkg.RequestGuild, pkg.RequestArgs{Guild: "g"}, 5*time.Millisecond)
		delivered := <-resolved

		if err != nil {
			require.ErrorIs(t, err, ErrTimeout)
			assert.False(t, delivered, "timeout won, so the late response must be a no-op")
		} else {
			assert.True(t, delivered)
			assert.NotEmpty(t, payload)
		}
		assert.Zero(t, r.Pending())

		resp := okPayload(pkg.Guild{ID: "g"})
		resp.ID = id
		assert.False(t, r.Resolve(*resp), "a call is resolved at most once")
		_ = sub.Close()
	}
}

type failingBus struct {
	*bus.MemoryBus
}

func (failingBus) Publish(context.Context, string, []byte) error {
	return errors.New("connection refused")
}

func TestCallTransportFailure(t *testing.T) {
	r := startRegistry(t, failingBus{bus.NewMemoryBus()})

	start := time.Now()
	_, err := r.Guild(context.Background(), "1")
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Less(t, time.Since(start), DefaultTimeout/2, "transport errors fail immediately")
	assert.Zero(t, r.Pending())
}

func TestCallRejectsDuplicateID(t *testing.T) {
	b := bus.NewMemoryBus()
	r := startRegistry(t, b, WithIDGenerator(func() string { return "same" }))

	first := make(chan error, 1)
	go func() {
		_, err := r.Call(context.Background(), pkg.RequestGuild, pkg.RequestArgs{Guild: "1"}, time.Second)
		first <- err
	}()
	require.Eventually(t, func() bool { return r.Pending() == 1 }, time.Second, time.Millisecond)

	_, err := r.Call(context.Background(), pkg.RequestGuild, pkg.RequestArgs{Guild: "2"}, time.Second)
	assert.ErrorIs(t, err, ErrDuplicateID)

	resp := okPayload(pkg.Guild{ID: "1"})
	resp.ID = "same"
	require.True(t, r.Resolve(*resp))
	require.NoError(t, <-first)
}

func TestCallContextCancel(t *testing.T) {
	r := startRegistry(t, bus.NewMemoryBus())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Call(ctx, pkg.RequestGuild, pkg.RequestArgs{Guild: "1"}, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, r.Pending())
}

func TestCallAfterClose(t *testing.T) {
	r := NewRegistry(bus.NewMemoryBus())
	require.NoError(t, r.Start(context.Background()))
	require.NoError(t, r.Close())

	_, err := r.Guild(context.Background(), "1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUnknownAndMalformedResponsesAreIgnored(t *testing.T) {
	b := bus.NewMemoryBus()
	r := startRegistry(t, b)
	ctx := context.Background()

	require.NoError(t, b.Publish(ctx, pkg.ChannelResponse, []byte("{not json")))
	require.NoError(t, b.Publish(ctx, pkg.ChannelResponse, []byte(`{"id":"nobody","code":200,"payload":{}}`)))

	responder(t, b, func(req pkg.RequestEnvelope) *pkg.ResponseEnvelope {
		resp := okPayload(pkg.Guild{ID: "1"})
		resp.ID = req.ID
		return resp
	})
	guild, err := r.Guild(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", guild.ID)
}

func TestRegistryOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	b := bus.NewRedisBus(client)

	responder(t, b, func(req pkg.RequestEnvelope) *pkg.ResponseEnvelope {
		if req.Args.Guild != "known" {
			return &pkg.ResponseEnvelope{ID: req.ID, Code: 404}
		}
		resp := okPayload(pkg.Guild{ID: "known"})
		resp.ID = req.ID
		return resp
	})
	r := startRegistry(t, b)

	guild, err := r.Guild(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, "known", guild.ID)

	_, err = r.Guild(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}
