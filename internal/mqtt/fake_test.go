package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFakeToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func completedToken(err error) *fakeToken {
	t := newFakeToken()
	t.complete(err)
	return t
}

func (t *fakeToken) complete(err error) {
	t.once.Do(func() {
		t.err = err
		close(t.done)
	})
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }

func (t *fakeToken) Error() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

type published struct {
	topic   string
	payload []byte
}

// fakeClient records calls and lets tests drive the connection callbacks
type fakeClient struct {
	opts *paho.ClientOptions

	mu            sync.Mutex
	connectToken  *fakeToken
	connectCalls  int
	disconnects   int
	subscribed    []string
	unsubscribed  []string
	published     []published
	publishErr    error
	subscribeErr  error
	handlers      map[string]paho.MessageHandler
	holdPublishes bool
}

func newFakeClient(opts *paho.ClientOptions) *fakeClient {
	return &fakeClient{opts: opts, handlers: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool      { return true }
func (c *fakeClient) IsConnectionOpen() bool { return true }

func (c *fakeClient) Connect() paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectCalls++
	c.connectToken = newFakeToken()
	return c.connectToken
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.published = append(c.published, published{topic: topic, payload: b})
	if c.holdPublishes {
		return newFakeToken()
	}
	return completedToken(c.publishErr)
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handlers[topic] = callback
	return completedToken(c.subscribeErr)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	for topic := range filters {
		c.Subscribe(topic, 0, callback)
	}
	return completedToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribed = append(c.unsubscribed, topics...)
	return completedToken(nil)
}

func (c *fakeClient) AddRoute(topic string, callback paho.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.NewOptionsReader(c.opts)
}

// finishConnect completes the pending connect token the way paho does
func (c *fakeClient) finishConnect(err error) {
	c.mu.Lock()
	token := c.connectToken
	c.mu.Unlock()

	if err == nil && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	token.complete(err)
}

// failAttempt reports a failed dial the way paho does before it retries
func (c *fakeClient) failAttempt(err error) {
	c.opts.OnConnectionNotification(c, paho.ConnectionNotificationFailed{Reason: err})
}

func (c *fakeClient) loseConnection(err error) {
	c.opts.OnConnectionLost(c, err)
}

func (c *fakeClient) reconnecting() {
	c.opts.OnReconnecting(c, c.opts)
}

func (c *fakeClient) deliver(topic, payload string) {
	c.opts.DefaultPublishHandler(c, &fakeMessage{topic: topic, payload: []byte(payload)})
}

func (c *fakeClient) snapshot() (subscribed, unsubscribed []string, pubs []published) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subscribed...),
		append([]string(nil), c.unsubscribed...),
		append([]published(nil), c.published...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeFactory hands out fake clients and remembers each one it built
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
}

func (f *fakeFactory) build(opts *paho.ClientOptions) paho.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := newFakeClient(opts)
	f.clients = append(f.clients, c)
	return c
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clients)
}

func (f *fakeFactory) last() *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[len(f.clients)-1]
}
