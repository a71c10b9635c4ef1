package transport_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iggydv12/tabsync/internal/transport"
)

func setupHub(t *testing.T) (*transport.MemoryBus, *httptest.Server) {
	t.Helper()
	bus := transport.NewMemoryBus()
	return bus, serveHub(t, bus)
}

func serveHub(t *testing.T, bus transport.Bus) *httptest.Server {
	t.Helper()
	hub := transport.NewHubHandler(bus, zaptest.NewLogger(t))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/relay/"), "/ws")
		hub.Serve(w, r, name)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWSBusRelaysThroughHub(t *testing.T) {
	hubBus, srv := setupHub(t)
	logger := zaptest.NewLogger(t)

	clientA, err := transport.NewWSBus(srv.URL, logger)
	require.NoError(t, err)
	clientB, err := transport.NewWSBus(srv.URL, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		clientA.Close()
		clientB.Close()
	})

	var a, b, local inbox
	chA, err := clientA.Join("todo-tabs-list-1", a.handle)
	require.NoError(t, err)
	_, err = clientB.Join("todo-tabs-list-1", b.handle)
	require.NoError(t, err)
	chLocal, err := hubBus.Join("todo-tabs-list-1", local.handle)
	require.NoError(t, err)

	// Wait until the hub has joined both websocket clients to its bus.
	require.Eventually(t, func() bool {
		return hubBus.Subscribers("todo-tabs-list-1") == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, chA.Publish([]byte("from-a")))
	require.NoError(t, chLocal.Publish([]byte("from-hub")))

	assert.Eventually(t, func() bool { return len(b.get()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []string{"from-a", "from-hub"}, b.get())
	assert.Eventually(t, func() bool {
		return len(local.get()) == 1 && local.get()[0] == "from-a"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		got := a.get()
		return len(got) == 1 && got[0] == "from-hub"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRedisHubDoesNotEchoToSender(t *testing.T) {
	mr := miniredis.RunT(t)
	hubBus := setupRedisBus(t, mr)
	srv := serveHub(t, hubBus)
	logger := zaptest.NewLogger(t)

	var local inbox
	_, err := hubBus.Join("todo-tabs-list-1", local.handle)
	require.NoError(t, err)

	tab, err := transport.NewWSBus(srv.URL, logger)
	require.NoError(t, err)
	t.Cleanup(func() { tab.Close() })

	var got inbox
	ch, err := tab.Join("todo-tabs-list-1", got.handle)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("todo-tabs-list-1")["todo-tabs-list-1"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	const heartbeat = `{"type":"heartbeat","id":"tab-A"}`
	require.NoError(t, ch.Publish([]byte(heartbeat)))

	assert.Eventually(t, func() bool {
		msgs := local.get()
		return len(msgs) == 1 && msgs[0] == heartbeat
	}, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, got.get(), "a lone client must not hear its own heartbeat")
}

func TestWSChannelCloseLeavesHub(t *testing.T) {
	hubBus, srv := setupHub(t)
	client, err := transport.NewWSBus(srv.URL, zaptest.NewLogger(t))
	require.NoError(t, err)

	ch, err := client.Join("c", func([]byte) {})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hubBus.Subscribers("c") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, ch.Close())
	assert.Eventually(t, func() bool { return hubBus.Subscribers("c") == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, ch.Publish([]byte("x")), transport.ErrClosed)
}

func TestNewWSBusRejectsScheme(t *testing.T) {
	_, err := transport.NewWSBus("ftp://example.com", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestRelayPathEscapesName(t *testing.T) {
	assert.Equal(t, "/relay/todo-tabs-a%2Fb/ws", transport.RelayPath("todo-tabs-a/b"))
}
