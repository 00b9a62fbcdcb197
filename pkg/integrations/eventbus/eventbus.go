// Package eventbus is an in-process topic backed by a buffered channel with a
// single consuming handler.
package eventbus

import (
	"context"
	"log/slog"

	"awakenfetch/pkg/types/events"

	"github.com/pkg/errors"
)

const DefaultBuffer = 64

var (
	ErrInvalidBusConfig  = errors.New("invalid event bus config")
	ErrAlreadySubscribed = errors.New("event bus already has a subscriber")
)

var _ events.Bus = (*Bus)(nil)

type Bus struct {
	topic      string
	ch         chan []byte
	buffer     int
	ctx        context.Context
	logger     *slog.Logger
	handler    func([]byte) error
	subscribed bool
}

type Option func(*Bus)

func WithContext(ctx context.Context) Option {
	return func(b *Bus) {
		b.ctx = ctx
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

func WithTopic(topic string) Option {
	return func(b *Bus) {
		b.topic = topic
	}
}

func WithHandler(h func([]byte) error) Option {
	return func(b *Bus) {
		b.handler = h
	}
}

func WithBuffer(n int) Option {
	return func(b *Bus) {
		b.buffer = n
	}
}

func (b *Bus) IsValid() error {
	switch {
	case b.ctx == nil:
		return errors.Wrap(ErrInvalidBusConfig, "ctx cannot be nil")
	case b.logger == nil:
		return errors.Wrap(ErrInvalidBusConfig, "logger cannot be nil")
	case b.topic == "":
		return errors.Wrap(ErrInvalidBusConfig, "topic cannot be empty")
	case b.buffer < 0:
		return errors.Wrap(ErrInvalidBusConfig, "buffer cannot be negative")
	default:
		return nil
	}
}

func New(opts ...Option) (*Bus, error) {
	b := &Bus{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.IsValid(); err != nil {
		return nil, err
	}
	b.ch = make(chan []byte, b.buffer)
	b.logger = b.logger.With("component", "eventbus", "topic", b.topic)
	return b, nil
}

// Publish blocks while the buffer is full and fails once the bus context ends.
func (b *Bus) Publish(payload []byte) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	select {
	case b.ch <- payload:
		return nil
	case <-b.ctx.Done():
		return b.ctx.Err()
	}
}

// Subscribe starts the consumer goroutine. Handler errors are logged and the
// message is dropped.
func (b *Bus) Subscribe() error {
	if b.handler == nil {
		return errors.Wrap(ErrInvalidBusConfig, "handler cannot be nil")
	}
	if b.subscribed {
		return ErrAlreadySubscribed
	}
	b.subscribed = true

	go func() {
		for {
			select {
			case msg := <-b.ch:
				if err := b.handler(msg); err != nil {
					b.logger.Error("event handler error", "error", err)
				}
			case <-b.ctx.Done():
				return
			}
		}
	}()

	return nil
}
