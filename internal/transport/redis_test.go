package transport_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iggydv12/tabsync/internal/transport"
)

func setupRedisBus(t *testing.T, mr *miniredis.Miniredis) *transport.RedisBus {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	bus := transport.NewRedisBusFromClient(rdb, zaptest.NewLogger(t))
	t.Cleanup(func() { bus.Close() })
	return bus
}

func TestRedisBusRelaysBetweenClients(t *testing.T) {
	mr := miniredis.RunT(t)
	busA := setupRedisBus(t, mr)
	busB := setupRedisBus(t, mr)

	var a, b inbox
	chA, err := busA.Join("todo-tabs-list-1", a.handle)
	require.NoError(t, err)
	_, err = busB.Join("todo-tabs-list-1", b.handle)
	require.NoError(t, err)

	require.NoError(t, chA.Publish([]byte(`{"type":"heartbeat","id":"a"}`)))

	assert.Eventually(t, func() bool {
		return len(b.get()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, `{"type":"heartbeat","id":"a"}`, b.get()[0])
}

func TestRedisBusSameBusSubscribersSeeEachOther(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := setupRedisBus(t, mr)

	var a, b inbox
	chA, err := bus.Join("todo-tabs-list-1", a.handle)
	require.NoError(t, err)
	_, err = bus.Join("todo-tabs-list-1", b.handle)
	require.NoError(t, err)

	require.NoError(t, chA.Publish([]byte("hello")))

	assert.Eventually(t, func() bool {
		got := b.get()
		return len(got) == 1 && got[0] == "hello"
	}, 2*time.Second, 10*time.Millisecond)
	// b has its copy, so a's echo has been delivered too if it was going to be.
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, a.get(), "publisher must not receive its own messages")
}

func TestRedisBusDropsForeignPayloads(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := setupRedisBus(t, mr)

	var a inbox
	_, err := bus.Join("c", a.handle)
	require.NoError(t, err)

	mr.Publish("c", "not an envelope")
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, a.get())
}

func TestRedisChannelCloseStopsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := setupRedisBus(t, mr)

	var a inbox
	ch, err := bus.Join("c", a.handle)
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	assert.ErrorIs(t, ch.Publish([]byte("x")), transport.ErrClosed)
}

func TestNewRedisBusFailsWhenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = transport.NewRedisBus(context.Background(), addr, zaptest.NewLogger(t))
	assert.Error(t, err)
}
