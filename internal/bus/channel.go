package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/opensource-finance/settle/internal/domain"
)

// ChannelBus implements EventBus in process with one buffered channel per
// subscription. Used as the Community tier event bus.
type ChannelBus struct {
	mu         sync.RWMutex
	bufferSize int
	topics     map[string]*topicSubs // tenantID + ":" + topic
	closed     bool

	dropped atomic.Int64
}

// topicSubs holds a topic's subscribers and the round-robin cursor used for
// work topics.
type topicSubs struct {
	subs []*channelSubscription
	next atomic.Uint64
}

type channelSubscription struct {
	bus     *ChannelBus
	id      string
	key     string
	topic   string
	handler domain.MessageHandler
	msgCh   chan *domain.Message
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize: bufferSize,
		topics:     make(map[string]*topicSubs),
	}
}

// Publish delivers payload without blocking. Work topics go to one
// subscriber in turn; other topics go to all. A full buffer drops the
// delivery and counts it.
func (b *ChannelBus) Publish(ctx context.Context, tenantID string, topic string, payload []byte) error {
	if err := ValidateTenant(tenantID); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	ts := b.topics[channelKey(tenantID, topic)]
	if ts == nil || len(ts.subs) == 0 {
		if IsWorkTopic(topic) {
			return ErrNoSubscribers
		}
		return nil
	}

	msg := newMessage(tenantID, topic, payload)
	targets := ts.subs
	if IsWorkTopic(topic) {
		i := ts.next.Add(1) - 1
		targets = []*channelSubscription{ts.subs[i%uint64(len(ts.subs))]}
	}

	for _, sub := range targets {
		select {
		case sub.msgCh <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("subscriber buffer full, message dropped",
				"tenant_id", tenantID,
				"topic", topic,
				"message_id", msg.ID,
			)
		}
	}
	return nil
}

// Subscribe registers a handler for a topic. The handler runs on its own
// goroutine, one message at a time.
func (b *ChannelBus) Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	if err := ValidateTenant(tenantID); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		bus:     b,
		id:      uuid.New().String(),
		key:     channelKey(tenantID, topic),
		topic:   topic,
		handler: handler,
		msgCh:   make(chan *domain.Message, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
	}

	ts := b.topics[sub.key]
	if ts == nil {
		ts = &topicSubs{}
		b.topics[sub.key] = ts
	}
	ts.subs = append(ts.subs, sub)

	go sub.run()
	return sub, nil
}

func (s *channelSubscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-s.msgCh:
			if err := s.handler(s.ctx, msg); err != nil {
				slog.Error("handler error",
					"tenant_id", msg.TenantID,
					"topic", msg.Topic,
					"message_id", msg.ID,
					"error", err,
				)
			}
		}
	}
}

// remove detaches sub so publishers stop filling its buffer.
func (b *ChannelBus) remove(sub *channelSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.topics[sub.key]
	if ts == nil {
		return
	}
	for i, s := range ts.subs {
		if s == sub {
			ts.subs = append(ts.subs[:i:i], ts.subs[i+1:]...)
			break
		}
	}
	if len(ts.subs) == 0 {
		delete(b.topics, sub.key)
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *ChannelBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close stops every subscription. Messages still buffered are discarded.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, ts := range b.topics {
		for _, sub := range ts.subs {
			sub.cancel()
		}
	}
	b.topics = make(map[string]*topicSubs)
	return nil
}

func channelKey(tenantID, topic string) string {
	return tenantID + ":" + topic
}

// Unsubscribe stops receiving messages.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()
	s.bus.remove(s)
	return nil
}

// Topic returns the subscribed topic.
func (s *channelSubscription) Topic() string {
	return s.topic
}
