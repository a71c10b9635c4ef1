package transport_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iggydv12/tabsync/internal/transport"
)

type inbox struct {
	mu   sync.Mutex
	msgs []string
}

func (i *inbox) handle(p []byte) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, string(p))
}

func (i *inbox) get() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.msgs...)
}

func TestMemoryBusDeliversToOthersOnly(t *testing.T) {
	bus := transport.NewMemoryBus()
	var a, b, other inbox

	chA, err := bus.Join("list-1", a.handle)
	require.NoError(t, err)
	chB, err := bus.Join("list-1", b.handle)
	require.NoError(t, err)
	_, err = bus.Join("list-2", other.handle)
	require.NoError(t, err)

	require.NoError(t, chA.Publish([]byte("hello")))
	require.NoError(t, chB.Publish([]byte("world")))

	assert.Equal(t, []string{"world"}, a.get())
	assert.Equal(t, []string{"hello"}, b.get())
	assert.Empty(t, other.get())
	assert.Equal(t, 2, bus.Subscribers("list-1"))
}

func TestMemoryChannelClose(t *testing.T) {
	bus := transport.NewMemoryBus()
	var a, b inbox
	chA, _ := bus.Join("c", a.handle)
	chB, _ := bus.Join("c", b.handle)

	require.NoError(t, chB.Close())
	require.NoError(t, chB.Close()) // idempotent

	require.NoError(t, chA.Publish([]byte("x")))
	assert.Empty(t, b.get())
	assert.ErrorIs(t, chB.Publish([]byte("y")), transport.ErrClosed)
	assert.Equal(t, 1, bus.Subscribers("c"))
}

func TestMemoryBusClosed(t *testing.T) {
	bus := transport.NewMemoryBus()
	require.NoError(t, bus.Close())
	_, err := bus.Join("c", func([]byte) {})
	assert.ErrorIs(t, err, transport.ErrClosed)
}

func TestMemoryBusCopiesPayload(t *testing.T) {
	bus := transport.NewMemoryBus()
	var got []byte
	chA, _ := bus.Join("c", func([]byte) {})
	bus.Join("c", func(p []byte) { got = p })

	payload := []byte("abc")
	require.NoError(t, chA.Publish(payload))
	payload[0] = 'z'
	assert.Equal(t, "abc", string(got))
}
