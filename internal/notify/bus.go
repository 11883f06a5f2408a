// Package notify fans alert events out to live subscribers by topic.
// Nothing is persisted: a subscriber only sees events published while it is
// subscribed.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"behavior-backend/internal/metrics"

	"go.uber.org/zap"
)

// BroadcastTopic receives every alert creation event.
const BroadcastTopic = "alerts/all"

const topicPrefix = "alerts/"

// OwnerTopic is the topic carrying one owner's events.
func OwnerTopic(ownerID uint) string {
	return fmt.Sprintf("%s%d", topicPrefix, ownerID)
}

// ValidTopic reports whether topic is one clients may subscribe to.
func ValidTopic(topic string) bool {
	return strings.HasPrefix(topic, topicPrefix) && len(topic) > len(topicPrefix)
}

// Message is one event on a topic. Payload is a JSON document.
type Message struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// Relay carries messages between instances. When a relay is set, Publish
// hands messages to it and local delivery happens when they come back from
// Listen.
type Relay interface {
	Publish(ctx context.Context, msg Message) error
	Listen(ctx context.Context) (<-chan Message, error)
}

// Sink mirrors published messages to an external system.
type Sink interface {
	Name() string
	Forward(ctx context.Context, msg Message) error
}

// Bus is an in-memory topic fan-out.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}

	bufferSize int
	relay      Relay
	sinks      []Sink
	done       chan struct{}

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewBus returns a bus whose subscriptions buffer up to bufferSize events.
func NewBus(bufferSize int, logger *zap.Logger, m *metrics.Metrics) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	done := make(chan struct{})
	close(done)
	return &Bus{
		topics:     make(map[string]map[*Subscription]struct{}),
		bufferSize: bufferSize,
		done:       done,
		logger:     logger.With(zap.String("component", "notification_bus")),
		metrics:    m,
	}
}

// SetRelay routes publication through r. Call before Start.
func (b *Bus) SetRelay(r Relay) { b.relay = r }

// AddSink mirrors every published message to s. Call before Start.
func (b *Bus) AddSink(s Sink) { b.sinks = append(b.sinks, s) }

// Start begins consuming the relay, if any. It returns once the relay
// subscription is established; consumption stops when ctx ends.
func (b *Bus) Start(ctx context.Context) error {
	if b.relay == nil {
		return nil
	}
	in, err := b.relay.Listen(ctx)
	if err != nil {
		return fmt.Errorf("failed to listen on relay: %w", err)
	}
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		for msg := range in {
			b.deliver(msg)
		}
	}()
	b.logger.Info("notification relay attached")
	return nil
}

// Done is closed once the relay consumer has exited.
func (b *Bus) Done() <-chan struct{} { return b.done }

// Publish sends payload to the current subscribers of topic and to every
// sink. Delivery never blocks: a subscriber whose buffer is full misses the
// event. Relay and sink failures are returned joined; local delivery still
// happens when the relay fails.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", topic, err)
	}
	msg := Message{Topic: topic, Payload: raw}

	if topic == BroadcastTopic {
		b.metrics.EventPublished("broadcast")
	} else {
		b.metrics.EventPublished("owner")
	}

	var errs []error
	if b.relay != nil {
		if err := b.relay.Publish(ctx, msg); err != nil {
			b.metrics.BridgeError("relay")
			errs = append(errs, fmt.Errorf("relay: %w", err))
			b.deliver(msg)
		}
	} else {
		b.deliver(msg)
	}

	for _, s := range b.sinks {
		if err := s.Forward(ctx, msg); err != nil {
			b.metrics.BridgeError(s.Name())
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) deliver(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[msg.Topic] {
		select {
		case sub.ch <- msg:
		default:
			b.metrics.EventDropped()
			b.logger.Warn("subscriber buffer full, event dropped", zap.String("topic", msg.Topic))
		}
	}
}

// Subscribe registers a new subscription to topics.
func (b *Bus) Subscribe(topics ...string) *Subscription {
	sub := &Subscription{
		bus:    b,
		ch:     make(chan Message, b.bufferSize),
		topics: make(map[string]struct{}),
	}
	b.mu.Lock()
	for _, t := range topics {
		b.addLocked(sub, t)
	}
	b.mu.Unlock()
	b.metrics.SubscriberDelta(1)
	return sub
}

// Unsubscribe removes sub from every topic and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub.closed {
		return
	}
	for t := range sub.topics {
		b.removeLocked(sub, t)
	}
	sub.closed = true
	close(sub.ch)
	b.metrics.SubscriberDelta(-1)
}

// SubscriberCount returns how many subscriptions currently listen on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

func (b *Bus) addLocked(sub *Subscription, topic string) {
	if topic == "" || sub.closed {
		return
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	sub.topics[topic] = struct{}{}
}

func (b *Bus) removeLocked(sub *Subscription, topic string) {
	if subs, ok := b.topics[topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.topics, topic)
		}
	}
	delete(sub.topics, topic)
}

// Subscription is one subscriber's view of the bus. Its topic set is guarded
// by the bus lock.
type Subscription struct {
	bus    *Bus
	ch     chan Message
	topics map[string]struct{}
	closed bool
}

// C delivers messages. It is closed by Unsubscribe.
func (s *Subscription) C() <-chan Message { return s.ch }

// Add subscribes to one more topic.
func (s *Subscription) Add(topic string) {
	s.bus.mu.Lock()
	s.bus.addLocked(s, topic)
	s.bus.mu.Unlock()
}

// Remove stops receiving topic.
func (s *Subscription) Remove(topic string) {
	s.bus.mu.Lock()
	s.bus.removeLocked(s, topic)
	s.bus.mu.Unlock()
}

// Topics lists the current topics.
func (s *Subscription) Topics() []string {
	s.bus.mu.RLock()
	defer s.bus.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}
