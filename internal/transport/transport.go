package transport

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// MessageHandler receives every inbound message of one vehicle connection.
// It is called from the transport's delivery goroutine and must not block for long.
type MessageHandler func(topic string, payload []byte)

// Transport is the publish/subscribe connection of one vehicle.
type Transport interface {
	Publisher
	Subscribe(topics []string, handler MessageHandler) error
}

// QoS levels used by drclink.
const (
	QoSAtMostOnce  byte = 0
	QoSAtLeastOnce byte = 1
)
