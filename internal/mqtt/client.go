package mqtt

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"aqua-backend/internal/history"
	"aqua-backend/internal/models"
	"aqua-backend/pkg/config"
)

var (
	// ErrNotConnected is returned by operations that need a live broker session
	ErrNotConnected = errors.New("not connected to MQTT broker")
	// ErrUnacknowledged means a publish was handed to the transport but not
	// confirmed within PublishWait. It may still be delivered.
	ErrUnacknowledged = errors.New("publish not acknowledged by broker")
)

const (
	disconnectQuiesce = 250 // milliseconds
	inboxSendTimeout  = time.Second
	pingTimeout       = 10 * time.Second
)

// anyState disables the expected-state check in transition
const anyState models.ConnectionState = -1

// ClientFactory builds the underlying paho client. Tests swap it for a fake.
type ClientFactory func(opts *paho.ClientOptions) paho.Client

// NewPahoClient is the production ClientFactory
func NewPahoClient(opts *paho.ClientOptions) paho.Client {
	return paho.NewClient(opts)
}

// ClientConfig holds MQTT client configuration
type ClientConfig struct {
	Broker          string
	ClientID        string
	ClientIDPrefix  string
	Username        string
	Password        string
	QoS             byte
	ReconnectPeriod time.Duration
	KeepAlive       time.Duration
	PublishWait     time.Duration
	MessageLogLimit int
	InboxSize       int
}

// ClientConfigFrom maps the process configuration onto the adapter's
func ClientConfigFrom(cfg *config.Config) ClientConfig {
	return ClientConfig{
		Broker:          cfg.MQTTBroker,
		ClientID:        cfg.MQTTClientID,
		ClientIDPrefix:  cfg.MQTTClientIDPrefix,
		Username:        cfg.MQTTUsername,
		Password:        cfg.MQTTPassword,
		QoS:             byte(cfg.MQTTQoS),
		ReconnectPeriod: cfg.MQTTReconnect,
		KeepAlive:       cfg.MQTTKeepAlive,
		PublishWait:     cfg.MQTTPublishWait,
		MessageLogLimit: cfg.MessageLogLimit,
		InboxSize:       cfg.InboxSize,
	}
}

// Adapter owns the single broker connection. Inbound messages are logged and
// queued on the inbox for exactly one consumer; nothing else mutates
// telemetry state from the paho callbacks.
type Adapter struct {
	config  ClientConfig
	topics  []string
	factory ClientFactory
	logger  *zap.Logger

	mu        sync.RWMutex
	client    paho.Client
	clientID  string
	state     models.ConnectionState
	lastErr   error
	extra     []string
	observers []func(models.ConnectionStatus)

	messages *history.Buffer[models.RawMessage]
	inbox    chan models.RawMessage
}

// NewAdapter creates a disconnected adapter that will subscribe to topics on
// every (re)connect.
func NewAdapter(config ClientConfig, topics []string, factory ClientFactory, logger *zap.Logger) *Adapter {
	if factory == nil {
		factory = NewPahoClient
	}
	if config.InboxSize <= 0 {
		config.InboxSize = 100
	}
	if config.ReconnectPeriod <= 0 {
		config.ReconnectPeriod = time.Second
	}
	if config.KeepAlive <= 0 {
		config.KeepAlive = 60 * time.Second
	}
	if config.PublishWait <= 0 {
		config.PublishWait = 5 * time.Second
	}

	return &Adapter{
		config:   config,
		topics:   slices.Clone(topics),
		factory:  factory,
		logger:   logger.Named("mqtt"),
		messages: history.New[models.RawMessage](config.MessageLogLimit),
		inbox:    make(chan models.RawMessage, config.InboxSize),
	}
}

// ConnectOptions overrides the broker endpoint for a Connect call. Empty
// fields keep the current value, and overrides stick for later calls.
type ConnectOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

func (o ConnectOptions) apply(c ClientConfig) ClientConfig {
	if o.Broker != "" {
		c.Broker = o.Broker
	}
	if o.ClientID != "" {
		c.ClientID = o.ClientID
	}
	if o.Username != "" {
		c.Username = o.Username
		c.Password = o.Password
	}
	return c
}

// Connect starts a connection attempt and returns without waiting for it.
// The outcome is reported through State, LastError and the state observers.
// Connecting to a different endpoint releases the previous transport handle
// first, so at most one handle is ever live.
func (a *Adapter) Connect(opts ConnectOptions) error {
	a.mu.Lock()
	next := opts.apply(a.config)
	if err := config.ValidateBrokerURL(next.Broker); err != nil {
		a.mu.Unlock()
		return err
	}

	changed := next.Broker != a.config.Broker ||
		next.ClientID != a.config.ClientID ||
		next.Username != a.config.Username ||
		next.Password != a.config.Password

	if a.state != models.Disconnected && !changed {
		state := a.state
		a.mu.Unlock()
		a.logger.Info("connect ignored", zap.Stringer("state", state))
		return nil
	}

	var stale paho.Client
	if changed {
		stale, a.client = a.client, nil
		a.config.Broker, a.config.ClientID = next.Broker, next.ClientID
		a.config.Username, a.config.Password = next.Username, next.Password
		a.lastErr = nil
	}

	if a.client == nil {
		a.clientID = a.config.ClientID
		if a.clientID == "" {
			a.clientID = generateClientID(a.config.ClientIDPrefix)
		}
		a.client = a.factory(a.clientOptions(a.clientID))
	}
	client := a.client
	a.state = models.Connecting
	status := a.statusLocked()
	a.mu.Unlock()

	if stale != nil {
		stale.Disconnect(disconnectQuiesce)
		a.logger.Info("released previous broker connection")
	}

	a.notify(status)
	a.logger.Info("connecting to broker",
		zap.String("broker", status.Broker), zap.String("client_id", status.ClientID))

	token := client.Connect()
	go a.awaitConnect(client, token)
	return nil
}

// awaitConnect only sees an error when the attempt was abandoned; failed
// dials are retried by paho and reported through onConnectionNotification.
func (a *Adapter) awaitConnect(client paho.Client, token paho.Token) {
	<-token.Done()
	if err := token.Error(); err != nil {
		a.logger.Warn("connection attempt failed", zap.Error(err))
		a.transition(client, models.Connecting, models.Disconnected, err)
		return
	}
	// paho completes the token early when a reconnect is already running
	if client.IsConnectionOpen() {
		a.transition(client, models.Connecting, models.Connected, nil)
	}
}

// Disconnect closes the connection and releases the transport handle
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	client := a.client
	if client == nil {
		a.mu.Unlock()
		a.logger.Info("disconnect ignored, not connected")
		return
	}
	a.client = nil
	a.state = models.Disconnected
	a.lastErr = nil
	status := a.statusLocked()
	a.mu.Unlock()

	client.Disconnect(disconnectQuiesce)
	a.notify(status)
	a.logger.Info("disconnected from broker")
}

// Subscribe registers an extra topic that is restored on every reconnect
func (a *Adapter) Subscribe(topic string) error {
	if topic == "" {
		return errors.New("topic is required")
	}

	client, err := a.connectedClient()
	if err != nil {
		return err
	}

	token := client.Subscribe(topic, a.config.QoS, a.onMessage)
	if err := a.wait(token); err != nil {
		a.setLastError(err)
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	a.mu.Lock()
	if !slices.Contains(a.topics, topic) && !slices.Contains(a.extra, topic) {
		a.extra = append(a.extra, topic)
	}
	a.mu.Unlock()

	a.logger.Info("subscribed", zap.String("topic", topic))
	return nil
}

// Unsubscribe drops a topic registration
func (a *Adapter) Unsubscribe(topic string) error {
	if topic == "" {
		return errors.New("topic is required")
	}

	client, err := a.connectedClient()
	if err != nil {
		return err
	}

	token := client.Unsubscribe(topic)
	if err := a.wait(token); err != nil {
		a.setLastError(err)
		return fmt.Errorf("unsubscribe %s: %w", topic, err)
	}

	a.mu.Lock()
	a.extra = slices.DeleteFunc(a.extra, func(t string) bool { return t == topic })
	a.mu.Unlock()

	a.logger.Info("unsubscribed", zap.String("topic", topic))
	return nil
}

// Publish forwards payload to the broker. Nothing is queued while
// disconnected. A publish still in flight after PublishWait returns
// ErrUnacknowledged instead of blocking the caller.
func (a *Adapter) Publish(ctx context.Context, topic string, payload []byte) error {
	a.mu.RLock()
	client, state := a.client, a.state
	a.mu.RUnlock()
	if state != models.Connected || client == nil {
		return ErrNotConnected
	}

	token := client.Publish(topic, a.config.QoS, false, payload)

	timer := time.NewTimer(a.config.PublishWait)
	defer timer.Stop()

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
	case <-timer.C:
		a.logger.Warn("publish not acknowledged in time",
			zap.String("topic", topic), zap.Duration("wait", a.config.PublishWait))
		return fmt.Errorf("publish %s: %w", topic, ErrUnacknowledged)
	case <-ctx.Done():
		return ctx.Err()
	}

	a.logger.Debug("published", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return nil
}

// Inbox is the queue of inbound messages. It must have a single reader.
func (a *Adapter) Inbox() <-chan models.RawMessage {
	return a.inbox
}

// Messages returns up to limit of the most recent raw messages, oldest first.
// limit <= 0 returns the whole log.
func (a *Adapter) Messages(limit int) []models.RawMessage {
	return a.messages.Last(limit)
}

// ClearMessages empties the raw message log
func (a *Adapter) ClearMessages() {
	a.messages.Clear()
}

// State returns the current connection state
func (a *Adapter) State() models.ConnectionState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// LastError returns the most recent connection or subscription error
func (a *Adapter) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// Status returns the state with its surrounding details
func (a *Adapter) Status() models.ConnectionStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.statusLocked()
}

// OnStateChange registers fn to be called after every state transition
func (a *Adapter) OnStateChange(fn func(models.ConnectionStatus)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, fn)
}

func (a *Adapter) clientOptions(clientID string) *paho.ClientOptions {
	opts := paho.NewClientOptions()
	opts.AddBroker(a.config.Broker)
	opts.SetClientID(clientID)
	if a.config.Username != "" {
		opts.SetUsername(a.config.Username)
		opts.SetPassword(a.config.Password)
	}
	opts.SetCleanSession(true)
	opts.SetKeepAlive(a.config.KeepAlive)
	opts.SetPingTimeout(pingTimeout)

	// paho's own retry loops are the only reconnect policy, for the first
	// connect as well as after a lost session. Pinning both intervals keeps
	// the period fixed instead of backing off.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(a.config.ReconnectPeriod)
	opts.SetMaxReconnectInterval(a.config.ReconnectPeriod)

	opts.SetDefaultPublishHandler(a.onMessage)
	opts.SetOnConnectHandler(a.onConnect)
	opts.SetConnectionLostHandler(a.onConnectionLost)
	opts.SetReconnectingHandler(a.onReconnecting)
	opts.SetConnectionNotificationHandler(a.onConnectionNotification)
	return opts
}

// Connection event handlers

func (a *Adapter) onConnect(client paho.Client) {
	if !a.transition(client, anyState, models.Connected, nil) {
		return
	}

	a.mu.RLock()
	topics := append(slices.Clone(a.topics), a.extra...)
	a.mu.RUnlock()

	a.logger.Info("connection established", zap.Strings("topics", topics))

	for _, topic := range topics {
		token := client.Subscribe(topic, a.config.QoS, a.onMessage)
		if err := a.wait(token); err != nil {
			a.logger.Error("failed to subscribe", zap.String("topic", topic), zap.Error(err))
			a.setLastError(fmt.Errorf("subscribe %s: %w", topic, err))
			continue
		}
		a.logger.Debug("subscribed", zap.String("topic", topic))
	}
}

func (a *Adapter) onConnectionLost(client paho.Client, err error) {
	a.logger.Warn("connection lost", zap.Error(err))
	a.transition(client, anyState, models.Disconnected, err)
}

func (a *Adapter) onReconnecting(client paho.Client, _ *paho.ClientOptions) {
	a.logger.Info("reconnecting to broker")
	a.transition(client, anyState, models.Connecting, nil)
}

// onConnectionNotification records every failed dial. The state stays
// Connecting because paho retries after ReconnectPeriod.
func (a *Adapter) onConnectionNotification(client paho.Client, n paho.ConnectionNotification) {
	failed, ok := n.(paho.ConnectionNotificationFailed)
	if !ok {
		return
	}
	a.logger.Warn("connection attempt failed, retrying",
		zap.Duration("retry_in", a.config.ReconnectPeriod), zap.Error(failed.Reason))
	a.transition(client, anyState, models.Connecting, failed.Reason)
}

func (a *Adapter) onMessage(_ paho.Client, msg paho.Message) {
	raw := models.NewRawMessage(msg.Topic(), msg.Payload(), time.Now())
	a.messages.Append(raw)

	select {
	case a.inbox <- raw:
	case <-time.After(inboxSendTimeout):
		a.logger.Warn("inbox full, dropping message", zap.String("topic", raw.Topic))
	}
}

// transition moves to state if client is still the live handle and, unless
// from is anyState, the current state equals from. err replaces the
// last error only when non-nil.
func (a *Adapter) transition(client paho.Client, from, to models.ConnectionState, err error) bool {
	a.mu.Lock()
	if a.client == nil || a.client != client || (from != anyState && a.state != from) {
		a.mu.Unlock()
		return false
	}
	changed := a.state != to
	a.state = to
	if err != nil {
		a.lastErr = err
	} else if to == models.Connected {
		a.lastErr = nil
	}
	status := a.statusLocked()
	a.mu.Unlock()

	if changed || err != nil {
		a.notify(status)
	}
	return true
}

func (a *Adapter) connectedClient() (paho.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != models.Connected || a.client == nil {
		a.lastErr = ErrNotConnected
		return nil, ErrNotConnected
	}
	return a.client, nil
}

func (a *Adapter) setLastError(err error) {
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
}

func (a *Adapter) wait(token paho.Token) error {
	if !token.WaitTimeout(a.config.PublishWait) {
		return errors.New("timed out waiting for broker")
	}
	return token.Error()
}

func (a *Adapter) statusLocked() models.ConnectionStatus {
	status := models.ConnectionStatus{
		State:    a.state,
		ClientID: a.clientID,
		Broker:   a.config.Broker,
		Topics:   append(slices.Clone(a.topics), a.extra...),
	}
	if a.lastErr != nil {
		status.LastError = a.lastErr.Error()
	}
	return status
}

func (a *Adapter) notify(status models.ConnectionStatus) {
	a.mu.RLock()
	observers := slices.Clone(a.observers)
	a.mu.RUnlock()

	for _, fn := range observers {
		fn(status)
	}
}

func generateClientID(prefix string) string {
	if prefix == "" {
		prefix = "smartaqua"
	}
	return prefix + "-" + uuid.NewString()[:8]
}
