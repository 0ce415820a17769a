// Package broker runs an in-process MQTT broker for local development and
// tests, so the backend and a simulated tank controller can talk without an
// external service.
package broker

import (
	"fmt"
	"log/slog"
	"os"

	mqttbroker "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"go.uber.org/zap"
)

// Broker wraps a mochi server with a single TCP listener
type Broker struct {
	server *mqttbroker.Server
	addr   string
	logger *zap.Logger
}

// New prepares a broker listening on addr. Every client is allowed in.
func New(addr string, logger *zap.Logger) (*Broker, error) {
	// mochi only speaks slog; keep its output to warnings in the same JSON shape
	server := mqttbroker.New(&mqttbroker.Options{
		Logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})).
			With(slog.String("logger", "broker")),
	})

	tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		return nil, fmt.Errorf("failed to add broker listener: %w", err)
	}

	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("failed to add broker auth hook: %w", err)
	}

	return &Broker{
		server: server,
		addr:   addr,
		logger: logger.Named("broker"),
	}, nil
}

// Start begins accepting connections in the background
func (b *Broker) Start() error {
	if err := b.server.Serve(); err != nil {
		return fmt.Errorf("failed to start embedded broker: %w", err)
	}
	b.logger.Info("embedded broker listening", zap.String("addr", b.addr))
	return nil
}

// URL is the address the telemetry adapter should dial
func (b *Broker) URL() string {
	return "tcp://" + b.addr
}

// Close stops the listeners and drops every client
func (b *Broker) Close() error {
	b.logger.Info("stopping embedded broker")
	return b.server.Close()
}
