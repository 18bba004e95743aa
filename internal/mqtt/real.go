package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// BufferSize is how many messages are kept while the broker is unreachable.
const BufferSize = 256

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are queued and replayed, oldest first,
// when it comes back; only the newest retained message per topic is kept.
type RealPublisher struct {
	client client
	log    *logrus.Entry
	now    func() time.Time

	mu        sync.Mutex
	buf       *offlineQueue
	connected bool // at least one connection was established
}

// NewRealPublisher creates a publisher for the given broker. The broker
// does not need to be reachable: the client keeps retrying in the
// background and messages are buffered until it connects.
func NewRealPublisher(broker, clientID string, logger *logrus.Entry) (*RealPublisher, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &RealPublisher{
		log: logger.WithField("component", "app/mqtt"),
		now: time.Now,
	}
	p.buf = newOfflineQueue(BufferSize, p.log)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { go p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warnf("connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.Warnf("broker %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisherWithClient(c client, logger *logrus.Entry) *RealPublisher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &RealPublisher{client: c, log: logger, now: time.Now}
	p.buf = newOfflineQueue(BufferSize, logger)
	return p
}

// onConnect replays buffered messages. After a reconnect it also announces
// RECONNECTED on the system topic.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	pending := p.buf.drain()
	p.mu.Unlock()

	p.log.Infof("connected, replaying %d buffered messages", len(pending))
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.Warnf("replay to %s: %v", m.topic, err)
		}
	}

	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"}); err != nil {
			p.log.Warnf("publish reconnected event: %v", err)
		}
	}
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buf.push(m)
		p.mu.Unlock()
		p.log.Debugf("offline, buffered message for %s", m.topic)
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", m.topic, err)
	}
	return nil
}

// PublishCounter sends a counter change. QoS 1, retained, so a new
// subscriber sees the current value.
func (p *RealPublisher) PublishCounter(event CounterEvent) error {
	payload, err := FormatCounterPayload(event)
	if err != nil {
		return fmt.Errorf("format counter payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1, retained: true})
}

// PublishLine sends a line change. QoS 0 (at-most-once), not retained.
func (p *RealPublisher) PublishLine(event LineEvent) error {
	payload, err := FormatLinePayload(event)
	if err != nil {
		return fmt.Errorf("format line payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicLines, payload: payload})
}

// PublishSystem sends a system lifecycle event with QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns how many messages wait for the connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
