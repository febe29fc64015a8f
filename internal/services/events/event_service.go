package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadwatch/internal/interfaces"
	"golang.org/x/sync/errgroup"
)

// ErrServiceClosed is returned by Subscribe and Publish after Close
var ErrServiceClosed = errors.New("event service closed")

type subscription struct {
	id      uint64
	handler interfaces.EventHandler
}

// Service is the in-process event bus connecting session, job list and monitors
// to the status service and the websocket bridge
type Service struct {
	subscribers map[interfaces.EventType][]subscription
	nextID      uint64
	closed      bool
	mu          sync.RWMutex
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]subscription),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServiceClosed
	}

	s.nextID++
	id := s.nextID
	s.subscribers[eventType] = append(s.subscribers[eventType], subscription{id: id, handler: handler})

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(eventType, id) })
	}, nil
}

func (s *Service) unsubscribe(eventType interfaces.EventType, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := s.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			// Copy so snapshots taken by in-flight publishes stay intact
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			s.subscribers[eventType] = append(next, subs[i+1:]...)
			s.logger.Debug().
				Str("event_type", string(eventType)).
				Msg("Event handler unsubscribed")
			return
		}
	}
}

func (s *Service) handlers(eventType interfaces.EventType) ([]subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrServiceClosed
	}
	return s.subscribers[eventType], nil
}

// Publish hands the event to every subscriber on its own goroutine and returns
func (s *Service) Publish(ctx context.Context, event interfaces.Event) error {
	subs, err := s.handlers(event.Type)
	if err != nil {
		return err
	}
	s.trace(event.Type, len(subs), false)

	for _, sub := range subs {
		go func() { _ = s.deliver(ctx, sub, event) }()
	}
	return nil
}

// PublishSync delivers concurrently and waits; every handler error is joined
// into the result
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	subs, err := s.handlers(event.Type)
	if err != nil {
		return err
	}
	s.trace(event.Type, len(subs), true)

	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, sub := range subs {
		g.Go(func() error {
			if err := s.deliver(ctx, sub, event); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d %s handlers failed: %w", len(errs), len(subs), event.Type, errors.Join(errs...))
	}
	return nil
}

// deliver runs one handler; a panic becomes its error
func (s *Service) deliver(ctx context.Context, sub subscription, event interfaces.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler %d panicked: %v", sub.id, p)
		}
		if err != nil {
			s.logger.Error().
				Err(err).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
		}
	}()
	return sub.handler(ctx, event)
}

func (s *Service) trace(eventType interfaces.EventType, subscribers int, waiting bool) {
	msg := "Publishing event"
	if subscribers == 0 {
		msg = "No subscribers for event"
	}
	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", subscribers).
		Bool("sync", waiting).
		Msg(msg)
}

// Close shuts down the event service
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.subscribers = make(map[interfaces.EventType][]subscription)
	s.logger.Debug().Msg("Event service closed")

	return nil
}
