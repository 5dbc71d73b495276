// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/screenline/internal/config"
	"github.com/tomtom215/screenline/internal/logging"
	"github.com/tomtom215/screenline/internal/metrics"
)

// Bus drivers.
const (
	DriverGoChannel = "gochannel"
	DriverNATS      = "nats"
)

const metadataEventType = "event_type"

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event bus closed")

// Bus publishes and consumes PlanEvents on a single topic.
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	logger     watermill.LoggerAdapter
	breaker    *gobreaker.CircuitBreaker[struct{}]
	// shared is set when publisher and subscriber are the same gochannel.
	shared bool

	mu     sync.RWMutex
	closed bool
}

// NewBus creates the bus for cfg.Driver.
func NewBus(cfg config.EventsConfig, logger watermill.LoggerAdapter) (*Bus, error) {
	if logger == nil {
		logger = logging.NewWatermillAdapter(logging.WithComponent("events"))
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "screenline.plans"
	}

	b := &Bus{
		topic:  topic,
		logger: logger,
		breaker: gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "event-bus",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
	}

	switch cfg.Driver {
	case "", DriverGoChannel:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		b.publisher, b.subscriber = ch, ch
		b.shared = true
	case DriverNATS:
		pub, sub, err := newNATS(cfg, logger)
		if err != nil {
			return nil, err
		}
		b.publisher, b.subscriber = pub, sub
	default:
		return nil, fmt.Errorf("unknown event bus driver %q", cfg.Driver)
	}
	return b, nil
}

// newNATS builds a core NATS (non-JetStream) publisher and queue subscriber.
// Plan events are triggers; a missed one is covered by the periodic pass.
func newNATS(cfg config.EventsConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     10 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	return pub, sub, nil
}

// Topic returns the topic events are published on.
func (b *Bus) Topic() string { return b.topic }

// Publish sends ev. The correlation id from ctx is attached when present.
func (b *Bus) Publish(ctx context.Context, ev *PlanEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	if ev.CorrelationID == "" {
		ev.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode plan event: %w", err)
	}

	msg := message.NewMessage(ev.ID, payload)
	msg.Metadata.Set(metadataEventType, ev.Type)
	msg.SetContext(ctx)

	_, err = b.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, b.publisher.Publish(b.topic, msg)
	})
	if err != nil {
		metrics.RecordEvent(ev.Type, "error")
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	metrics.RecordEvent(ev.Type, "published")
	return nil
}

// HandlerFunc processes one event. Errors are logged; the event is not
// redelivered.
type HandlerFunc func(ctx context.Context, ev *PlanEvent) error

// Listen subscribes to the topic before returning and then calls fn for every
// event on a goroutine until ctx is done or the bus closes. The returned
// channel receives the loop's exit error.
func (b *Bus) Listen(ctx context.Context, fn HandlerFunc) (<-chan error, error) {
	msgs, err := b.subscriber.Subscribe(ctx, b.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", b.topic, err)
	}

	done := make(chan error, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				done <- ctx.Err()
				return
			case msg, ok := <-msgs:
				if !ok {
					done <- nil
					return
				}
				b.handle(ctx, msg, fn)
			}
		}
	}()
	return done, nil
}

// Consume is Listen blocking until the loop ends.
func (b *Bus) Consume(ctx context.Context, fn HandlerFunc) error {
	done, err := b.Listen(ctx, fn)
	if err != nil {
		return err
	}
	return <-done
}

func (b *Bus) handle(ctx context.Context, msg *message.Message, fn HandlerFunc) {
	defer msg.Ack()

	var ev PlanEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		b.logger.Error("Dropping undecodable plan event", err, watermill.LogFields{"message_uuid": msg.UUID})
		metrics.RecordEvent(msg.Metadata.Get(metadataEventType), "rejected")
		return
	}

	hctx := ctx
	if ev.CorrelationID != "" {
		hctx = logging.ContextWithCorrelationID(ctx, ev.CorrelationID)
	}
	if err := fn(hctx, &ev); err != nil {
		b.logger.Error("Plan event handler failed", err, watermill.LogFields{"type": ev.Type, "plan_id": ev.PlanID})
		metrics.RecordEvent(ev.Type, "error")
		return
	}
	metrics.RecordEvent(ev.Type, "handled")
}

// Close closes the publisher and subscriber.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if !b.shared {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
