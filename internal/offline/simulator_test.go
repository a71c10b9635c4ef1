package offline_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/iggydv12/tabsync/internal/network"
	"github.com/iggydv12/tabsync/internal/offline"
)

// recordingTransport stands in for the real network.
type recordingTransport struct {
	calls atomic.Int32
}

func (r *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r.calls.Add(1)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("todos")),
		Request:    req,
	}, nil
}

func setup(t *testing.T) (*network.Environment, *recordingTransport, offline.Simulator) {
	t.Helper()
	base := &recordingTransport{}
	env := network.NewEnvironment(base)
	sim := offline.New(env, zaptest.NewLogger(t))
	t.Cleanup(func() { sim.Close() })
	return env, base, sim
}

func TestToggleOfflineFailsEveryRequest(t *testing.T) {
	env, base, sim := setup(t)

	sim.Toggle()
	assert.True(t, sim.IsOffline())
	assert.Equal(t, offline.StateSimulatedOffline, sim.State())
	assert.False(t, env.Online())

	for _, target := range []string{"http://localhost/api/todos", "https://example.com/x"} {
		_, err := env.Client().Get(target)
		require.Error(t, err)
		assert.True(t, errors.Is(err, offline.ErrFailedToFetch), err.Error())
	}
	assert.Zero(t, base.calls.Load())
}

func TestToggleTwiceRestoresIdenticalTransport(t *testing.T) {
	env, base, sim := setup(t)

	sim.Toggle()
	assert.NotSame(t, base, env.Transport())
	sim.Toggle()

	assert.Same(t, base, env.Transport())
	assert.True(t, env.Online())
	assert.False(t, sim.IsOffline())
}

func TestToggleEmitsConnectivityEvents(t *testing.T) {
	env, _, sim := setup(t)

	var events []network.Event
	env.Subscribe(func(e network.Event) { events = append(events, e) })

	sim.Toggle()
	sim.Toggle()
	assert.Equal(t, []network.Event{network.EventOffline, network.EventOnline}, events)
}

func TestConcurrentTogglesKeepEventOrder(t *testing.T) {
	env, _, sim := setup(t)

	var (
		mu     sync.Mutex
		events []network.Event
	)
	env.Subscribe(func(e network.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})

	const toggles = 51
	var wg sync.WaitGroup
	for i := 0; i < toggles; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sim.Toggle()
		}()
	}
	wg.Wait()

	require.Len(t, events, toggles)
	for i, e := range events {
		want := network.EventOffline
		if i%2 == 1 {
			want = network.EventOnline
		}
		require.Equal(t, want, e, "event %d", i)
	}
	assert.True(t, sim.IsOffline(), "an odd number of toggles ends offline")
	assert.False(t, env.Online())
}

func TestListenersSeeUpdatedFlag(t *testing.T) {
	env, _, sim := setup(t)

	var onlineAtEvent []bool
	env.Subscribe(func(network.Event) { onlineAtEvent = append(onlineAtEvent, env.Online()) })

	sim.Toggle()
	sim.Toggle()
	assert.Equal(t, []bool{false, true}, onlineAtEvent)
}

func TestCloseWhileOfflineRestores(t *testing.T) {
	base := &recordingTransport{}
	env := network.NewEnvironment(base)
	sim := offline.New(env, zaptest.NewLogger(t))

	var events []network.Event
	env.Subscribe(func(e network.Event) { events = append(events, e) })

	sim.Toggle()
	require.NoError(t, sim.Close())
	require.NoError(t, sim.Close())

	assert.Same(t, base, env.Transport())
	assert.True(t, env.Online())
	assert.Equal(t, offline.StateOnline, sim.State())
	assert.Equal(t, []network.Event{network.EventOffline}, events, "close does not dispatch online")
}

func TestCloseWhileOnlineLeavesTransportAlone(t *testing.T) {
	env, base, sim := setup(t)

	custom := &recordingTransport{}
	env.SwapTransport(custom)
	require.NoError(t, sim.Close())
	assert.Same(t, custom, env.Transport())
	env.SwapTransport(base)
}

func TestOfflineObservable(t *testing.T) {
	_, _, sim := setup(t)

	var seen []bool
	sim.Offline().Subscribe(func(v bool) { seen = append(seen, v) })
	sim.Toggle()
	sim.Toggle()
	assert.Equal(t, []bool{true, false}, seen)
}

func TestOfflineThenOnlineAgainstRealServer(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("X-Path", r.URL.Path)
		io.WriteString(w, "[]")
	}))
	defer srv.Close()

	env := network.NewEnvironment(srv.Client().Transport)
	sim := offline.New(env, zaptest.NewLogger(t))
	defer sim.Close()
	client := env.Client()

	sim.Toggle()
	_, err := client.Get(srv.URL + "/api/todos")
	assert.ErrorIs(t, err, offline.ErrFailedToFetch)
	assert.Zero(t, hits.Load())

	sim.Toggle()
	resp, err := client.Get(srv.URL + "/api/todos")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, "/api/todos", resp.Header.Get("X-Path"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFailingTransportClosesBody(t *testing.T) {
	env, _, sim := setup(t)
	sim.Toggle()

	body := &closeTracker{Reader: strings.NewReader(`{"title":"x"}`)}
	req, err := http.NewRequest(http.MethodPost, "http://localhost/api/todos", body)
	require.NoError(t, err)
	_, err = env.Client().Do(req)
	assert.ErrorIs(t, err, offline.ErrFailedToFetch)
	assert.True(t, body.closed)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestNullSimulatorIsInert(t *testing.T) {
	sim := offline.New(nil, nil)

	sim.Toggle()
	assert.False(t, sim.IsOffline())
	assert.Equal(t, offline.StateOnline, sim.State())
	assert.False(t, sim.Offline().Get())
	assert.NoError(t, sim.Close())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "online", offline.StateOnline.String())
	assert.Equal(t, "simulated-offline", offline.StateSimulatedOffline.String())
	assert.Equal(t, "unknown", offline.State(9).String())
}
