package transport

import (
	"context"
	"crypto/tls"
	"io/ioutil"
	"log"
	"strings"
	"sync"
	"time"

	jwt "github.com/dgrijalva/jwt-go"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 10 * time.Second
	tokenLifetime  = 24 * time.Hour
	jwtAudience    = "drclink"
)

// Options describe one broker connection.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	PrivateKeyPath string
}

// MQTT is a Transport over a paho client. Subscriptions are restored after every reconnect.
type MQTT struct {
	client mqtt.Client

	mu      sync.Mutex
	topics  []string
	handler MessageHandler
}

// Connect dials the broker and retries until connected or ctx is cancelled.
func Connect(ctx context.Context, o Options) (*MQTT, error) {
	if o.Broker == "" {
		return nil, errors.New("MQTT broker address is not configured")
	}

	password := o.Password
	if o.PrivateKeyPath != "" {
		pass, err := brokerPassword(o.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		password = pass
	}

	m := &MQTT{}

	opts := mqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(password).
		SetAutoReconnect(true).
		SetProtocolVersion(4). // Use MQTT 3.1.1
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("MQTT connection lost (%s): %v", o.ClientID, err)
		})
	if strings.HasPrefix(o.Broker, "ssl://") || strings.HasPrefix(o.Broker, "tls://") {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	m.client = mqtt.NewClient(opts)

	for {
		log.Printf("Connecting MQTT %s as %s...", o.Broker, o.ClientID)
		tok := m.client.Connect()
		if tok.WaitTimeout(connectTimeout) {
			if err := tok.Error(); err != nil {
				return nil, errors.WithMessagef(err, "Could not connect to %s", o.Broker)
			}
			log.Printf("..Connected %s", o.ClientID)
			return m, nil
		}

		log.Println("Connection Timeout")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

// brokerPassword signs a short lived JWT with the RSA key at path.
func brokerPassword(path string) (string, error) {
	keyData, err := ioutil.ReadFile(path)
	if err != nil {
		return "", errors.WithMessage(err, "Could not read private key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return "", errors.WithMessage(err, "Could not parse private key")
	}

	t := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &jwt.StandardClaims{
		IssuedAt:  t.Unix(),
		ExpiresAt: t.Add(tokenLifetime).Unix(),
		Audience:  jwtAudience,
	})
	return token.SignedString(key)
}

// Publish sends payload and waits for the broker to accept it.
func (m *MQTT) Publish(topic string, qos byte, payload []byte) error {
	tok := m.client.Publish(topic, qos, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return errors.Errorf("Could not publish to %s within %v", topic, publishTimeout)
	}
	return errors.WithMessagef(tok.Error(), "Could not publish to %s", topic)
}

// Subscribe registers the single message handler of this connection.
func (m *MQTT) Subscribe(topics []string, handler MessageHandler) error {
	m.mu.Lock()
	m.topics = append(m.topics, topics...)
	m.handler = handler
	m.mu.Unlock()

	return m.subscribe(m.client)
}

func (m *MQTT) subscribe(client mqtt.Client) error {
	m.mu.Lock()
	handler := m.handler
	filters := make(map[string]byte, len(m.topics))
	for _, t := range m.topics {
		filters[t] = QoSAtMostOnce
	}
	m.mu.Unlock()

	if handler == nil || len(filters) == 0 {
		return nil
	}

	tok := client.SubscribeMultiple(filters, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !tok.WaitTimeout(connectTimeout) {
		return errors.New("Subscribe timed out")
	}
	return errors.WithMessage(tok.Error(), "Error on subscribe")
}

func (m *MQTT) onConnect(client mqtt.Client) {
	if err := m.subscribe(client); err != nil {
		log.Printf("Could not restore subscriptions: %v", err)
	}
}

// Disconnect closes the connection, waiting up to quiesce milliseconds.
func (m *MQTT) Disconnect(quiesce uint) {
	m.client.Disconnect(quiesce)
}
