package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iggydv12/tabsync/internal/config"
	"github.com/iggydv12/tabsync/internal/node"
	"github.com/iggydv12/tabsync/internal/relay"
)

var (
	cfgFile string
	debug   bool
	channel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tabsync",
		Short: "tabsync: cross-client presence and change notification",
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Path to config file (default: configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable development logging")
	rootCmd.PersistentFlags().StringVar(&channel, "channel", "", "Relay channel (overrides relay.channel)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Join the relay and serve the REST API and websocket hub",
		RunE:  runServe,
	}

	peerCmd := &cobra.Command{
		Use:   "peer",
		Short: "Join the relay from a terminal; each stdin line is broadcast as a mutation",
		RunE:  runPeer,
	}

	rootCmd.AddCommand(serveCmd, peerCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("logger init: %w", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("config load: %w", err)
	}
	if channel != "" {
		cfg.Relay.Channel = channel
	}
	return cfg, logger, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("Starting tabsync node", zap.String("transport", cfg.Relay.Transport))
	return node.NewController(cfg, logger).Run(cmd.Context())
}

func runPeer(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	comp, err := node.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comp.Close()

	defer comp.Relay.PeerCount().Subscribe(func(n int) {
		logger.Info("Peers", zap.Int("count", n))
	})()
	defer comp.Relay.LastMutation().Subscribe(func(m *relay.Mutation) {
		if m == nil {
			return
		}
		logger.Info("Mutation",
			zap.String("from", m.PeerID),
			zap.String("action", m.Action),
			zap.Time("at", m.Timestamp),
		)
	})()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep listening until signalled
				<-ctx.Done()
				return nil
			}
			if action := strings.TrimSpace(line); action != "" {
				comp.Relay.BroadcastMutation(action)
			}
		}
	}
}
