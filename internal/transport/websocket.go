package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RelayPath returns the hub path that bridges the named channel.
func RelayPath(name string) string {
	return "/relay/" + url.PathEscape(name) + "/ws"
}

// WSBus joins channels through a tabsync hub's websocket bridge. Each Join
// opens one websocket; the hub relays frames to every other connection and
// bus subscriber on the same channel.
type WSBus struct {
	base   *url.URL
	dialer *websocket.Dialer
	logger *zap.Logger

	mu       sync.Mutex
	channels map[*wsChannel]struct{}
	closed   bool
}

// NewWSBus creates a bus for the hub at hubURL (http, https, ws or wss).
func NewWSBus(hubURL string, logger *zap.Logger) (*WSBus, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return nil, fmt.Errorf("hub url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("hub url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return &WSBus{
		base:     u,
		dialer:   &websocket.Dialer{HandshakeTimeout: 5 * time.Second},
		logger:   logger,
		channels: make(map[*wsChannel]struct{}),
	}, nil
}

// Join implements Bus.
func (b *WSBus) Join(name string, handler Handler) (Channel, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.mu.Unlock()

	target := b.base.String() + RelayPath(name)

	var conn *websocket.Conn
	err := retry.Do(func() error {
		c, resp, err := b.dialer.DialContext(context.Background(), target, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		conn = c
		return nil
	},
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			b.logger.Warn("Hub dial retry", zap.String("url", target), zap.Uint("attempt", n), zap.Error(err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("hub dial %s: %w", target, err)
	}

	ch := &wsChannel{bus: b, name: name, conn: conn, done: make(chan struct{})}
	go ch.readPump(handler)

	b.mu.Lock()
	b.channels[ch] = struct{}{}
	b.mu.Unlock()
	return ch, nil
}

// Close implements Bus.
func (b *WSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	channels := make([]*wsChannel, 0, len(b.channels))
	for ch := range b.channels {
		channels = append(channels, ch)
	}
	b.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
	return nil
}

type wsChannel struct {
	bus  *WSBus
	name string
	conn *websocket.Conn

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func (c *wsChannel) readPump(handler Handler) {
	defer close(c.done)
	for {
		kind, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.bus.logger.Debug("Hub connection read ended", zap.String("channel", c.name), zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		handler(msg)
	}
}

func (c *wsChannel) Publish(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("hub write %s: %w", c.name, err)
	}
	return nil
}

func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		select {
		case <-c.done:
		case <-time.After(2 * time.Second):
		}
		err = c.conn.Close()
		<-c.done

		c.bus.mu.Lock()
		delete(c.bus.channels, c)
		c.bus.mu.Unlock()
	})
	return err
}

// HubHandler bridges websocket clients into a Bus. The REST server mounts it
// at RelayPath.
type HubHandler struct {
	bus      Bus
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHubHandler creates a HubHandler over bus.
func NewHubHandler(bus Bus, logger *zap.Logger) *HubHandler {
	return &HubHandler{
		bus:    bus,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and relays frames between the client and the
// named bus channel until either side goes away.
func (h *HubHandler) Serve(w http.ResponseWriter, r *http.Request, name string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Hub upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan []byte, 256)
	ch, err := h.bus.Join(name, func(payload []byte) {
		select {
		case send <- payload:
		default:
			// slow client; at-most-once delivery lets us drop
		}
	})
	if err != nil {
		h.logger.Warn("Hub join failed", zap.String("channel", name), zap.Error(err))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "join failed"),
			time.Now().Add(time.Second))
		return
	}
	h.logger.Info("Hub client joined", zap.String("channel", name), zap.String("remote", r.RemoteAddr))

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-stop:
				return
			case msg := <-send:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := ch.Publish(msg); err != nil {
			h.logger.Debug("Hub publish failed", zap.String("channel", name), zap.Error(err))
		}
	}

	ch.Close()
	close(stop)
	<-writerDone
	h.logger.Info("Hub client left", zap.String("channel", name), zap.String("remote", r.RemoteAddr))
}
