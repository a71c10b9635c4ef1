// Package node provides the bootstrap pipeline for tabsync nodes.
package node

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iggydv12/tabsync/internal/api/rest"
	"github.com/iggydv12/tabsync/internal/config"
	"github.com/iggydv12/tabsync/internal/network"
	"github.com/iggydv12/tabsync/internal/offline"
	"github.com/iggydv12/tabsync/internal/relay"
	"github.com/iggydv12/tabsync/internal/transport"
)

const shutdownTimeout = 5 * time.Second

// Components are the long-lived pieces a node is built from.
type Components struct {
	Bus       transport.Bus // nil when relay.transport is "none"
	Relay     relay.Handle
	Network   *network.Environment
	Simulator offline.Simulator
	Hub       *transport.HubHandler
}

// Open brings up the configured transport and joins the relay channel.
// A transport that cannot be reached is an error; "none" yields an inert relay.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	codec, err := relay.CodecByName(cfg.Relay.Codec)
	if err != nil {
		return nil, err
	}

	bus, err := openBus(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	env := network.NewEnvironment(nil)
	comp := &Components{
		Bus: bus,
		Relay: relay.Open(bus, cfg.Relay.Channel, relay.Options{
			HeartbeatInterval: cfg.Relay.HeartbeatInterval,
			StaleAfter:        cfg.Relay.StaleAfter,
			Codec:             codec,
			Logger:            logger,
		}),
		Network:   env,
		Simulator: offline.New(env, logger),
	}
	// A hub client forwards through someone else's hub; bridging it again
	// would make every bridged connection dial the upstream once more.
	if _, isHubClient := bus.(*transport.WSBus); bus != nil && !isHubClient {
		comp.Hub = transport.NewHubHandler(bus, logger)
	}

	logger.Info("Relay joined",
		zap.String("channel", cfg.Relay.Channel),
		zap.String("transport", cfg.Relay.Transport),
		zap.String("peerID", comp.Relay.PeerID()),
		zap.Bool("connected", comp.Relay.Connected()),
	)
	return comp, nil
}

// Close tears down in reverse order of Open.
func (c *Components) Close() error {
	var errs []error
	errs = append(errs, c.Simulator.Close())
	errs = append(errs, c.Relay.Close())
	if c.Bus != nil {
		errs = append(errs, c.Bus.Close())
	}
	return errors.Join(errs...)
}

func openBus(ctx context.Context, cfg *config.Config, logger *zap.Logger) (transport.Bus, error) {
	switch cfg.Relay.Transport {
	case config.TransportNone:
		return nil, nil
	case config.TransportMemory:
		return transport.NewMemoryBus(), nil
	case config.TransportRedis:
		bus, err := transport.NewRedisBus(ctx, cfg.Redis.Addr, logger)
		if err != nil {
			return nil, fmt.Errorf("redis transport: %w", err)
		}
		return bus, nil
	case config.TransportLibP2P:
		bus, err := transport.NewLibP2PBus(transport.LibP2POptions{
			ListenAddrs: cfg.P2P.ListenAddrs,
			DisableMDNS: !cfg.P2P.MDNS,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("libp2p transport: %w", err)
		}
		return bus, nil
	case config.TransportHub:
		bus, err := transport.NewWSBus(cfg.Hub.URL, logger)
		if err != nil {
			return nil, fmt.Errorf("hub transport: %w", err)
		}
		return bus, nil
	default:
		return nil, fmt.Errorf("%w: unknown relay.transport %q", config.ErrInvalid, cfg.Relay.Transport)
	}
}

// Controller bootstraps the node, wires all components, and runs until shutdown.
type Controller struct {
	cfg    *config.Config
	logger *zap.Logger
	state  atomic.Int32
}

// NewController creates a Controller.
func NewController(cfg *config.Config, logger *zap.Logger) *Controller {
	return &Controller{cfg: cfg, logger: logger}
}

// State returns the current lifecycle state.
func (c *Controller) State() NodeState {
	return NodeState(c.state.Load())
}

func (c *Controller) setState(s NodeState) {
	prev := NodeState(c.state.Swap(int32(s)))
	c.logger.Debug("Node state", zap.Stringer("from", prev), zap.Stringer("to", s))
}

// Run bootstraps all components and blocks until SIGINT/SIGTERM or ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if c.cfg.HubDialsSelf() {
		return fmt.Errorf("%w: hub.url %s points at this node's own http.addr %s",
			config.ErrInvalid, c.cfg.Hub.URL, c.cfg.HTTP.Addr)
	}

	c.setState(StateStarting)
	defer c.setState(StateStopped)

	comp, err := Open(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := comp.Close(); err != nil {
			c.logger.Warn("Component shutdown", zap.Error(err))
		}
	}()

	srv := rest.New(rest.Deps{
		Relay:        comp.Relay,
		Simulator:    comp.Simulator,
		Network:      comp.Network,
		Hub:          comp.Hub,
		ProbeURL:     c.cfg.Probe.URL,
		ProbeTimeout: c.cfg.Probe.Timeout,
	}, c.logger)

	unsubscribe := comp.Relay.PeerCount().Subscribe(func(n int) {
		c.logger.Info("Peer count changed", zap.Int("peers", n))
	})
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(c.cfg.HTTP.Addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		c.setState(StateStopping)
		c.logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	c.setState(StateRunning)
	c.logger.Info("Node running",
		zap.String("REST", c.cfg.HTTP.Addr),
		zap.String("channel", c.cfg.Relay.Channel),
	)
	return g.Wait()
}
