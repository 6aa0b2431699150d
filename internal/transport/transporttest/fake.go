// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"encoding/json"
	"sync"

	"github.com/tiiuae/drclink/internal/transport"
)

// Message is one recorded publish.
type Message struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Method decodes the method field of the payload.
func (m Message) Method() string {
	var env struct {
		Method string `json:"method"`
	}
	json.Unmarshal(m.Payload, &env)
	return env.Method
}

// Fake records every publish and delivers injected inbound messages to the subscribed handler.
type Fake struct {
	mu        sync.Mutex
	published []Message
	topics    []string
	handler   transport.MessageHandler
	hook      func(topic string, payload []byte) error
}

var _ transport.Transport = (*Fake)(nil)

// OnPublish installs a hook that runs before each publish is recorded.
// A hook error is returned to the publisher and the message is not recorded. A hook may panic.
func (f *Fake) OnPublish(hook func(topic string, payload []byte) error) {
	f.mu.Lock()
	f.hook = hook
	f.mu.Unlock()
}

func (f *Fake) Publish(topic string, qos byte, payload []byte) error {
	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(topic, payload); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, Message{Topic: topic, QoS: qos, Payload: append([]byte(nil), payload...)})
	return nil
}

func (f *Fake) Subscribe(topics []string, handler transport.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topics...)
	f.handler = handler
	return nil
}

// Topics returns the subscribed topics.
func (f *Fake) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topics...)
}

// Deliver passes a raw inbound message to the subscribed handler.
func (f *Fake) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		handler(topic, payload)
	}
}

// DeliverJSON marshals v and delivers it.
func (f *Fake) DeliverJSON(topic string, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	f.Deliver(topic, b)
}

// Published returns a copy of all recorded publishes.
func (f *Fake) Published() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.published...)
}

// ByMethod returns the recorded publishes carrying method.
func (f *Fake) ByMethod(method string) []Message {
	var out []Message
	for _, m := range f.Published() {
		if m.Method() == method {
			out = append(out, m)
		}
	}
	return out
}

// Count returns how many recorded publishes carry method.
func (f *Fake) Count(method string) int {
	return len(f.ByMethod(method))
}

// Reset drops all recorded publishes.
func (f *Fake) Reset() {
	f.mu.Lock()
	f.published = nil
	f.mu.Unlock()
}
