package mqtt

import (
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is an already-completed paho token.
type fakeToken struct {
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool { return !t.timedOut }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakePaho records publishes and subscriptions and lets tests deliver
// messages to subscribed handlers.
type fakePaho struct {
	mu         sync.Mutex
	connected  bool
	published  []published
	handlers   map[string]pahomqtt.MessageHandler
	subErr     error
	pubErr     error
	disconnect bool
}

func newFakePaho() *fakePaho {
	return &fakePaho{connected: true, handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakePaho) Connect() pahomqtt.Token { return &fakeToken{} }

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnect = true
	f.mu.Unlock()
}

func (f *fakePaho) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	if f.pubErr == nil {
		f.published = append(f.published, published{topic, qos, retained, b})
	}
	return &fakeToken{err: f.pubErr}
}

func (f *fakePaho) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return &fakeToken{err: f.subErr}
	}
	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *fakePaho) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		f.Subscribe(topic, qos, callback)
	}
	return &fakeToken{}
}

func (f *fakePaho) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.handlers, t)
	}
	return &fakeToken{}
}

func (f *fakePaho) AddRoute(string, pahomqtt.MessageHandler) {}

func (f *fakePaho) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// deliver invokes the handler registered for pattern with a message on topic.
func (f *fakePaho) deliver(pattern, topic string, payload []byte) {
	f.mu.Lock()
	h := f.handlers[pattern]
	f.mu.Unlock()
	if h != nil {
		h(f, &fakeMessage{topic: topic, payload: payload})
	}
}

func (f *fakePaho) publishes() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// newTestClient returns a connected Client over a fake paho client.
func newTestClient() (*Client, *fakePaho) {
	fp := newFakePaho()
	c := newClient(fp, "fleetrelay-test", 1)
	c.connected = true
	return c, fp
}
