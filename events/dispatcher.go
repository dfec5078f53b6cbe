package events

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("event dispatcher closed")

type subscription[T Event] struct {
	id int
	fn func(T)
}

// Dispatcher delivers events synchronously, in registration order, to the
// subscribers of the event's variant.
type Dispatcher struct {
	mu     sync.RWMutex
	logger *zap.Logger
	nextID int
	closed bool

	sent     []subscription[SentEvent]
	failed   []subscription[FailedEvent]
	pruned   []subscription[LogsPrunedEvent]
	settings []subscription[SettingsSavedEvent]
}

// New creates an open Dispatcher.
func New(logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{logger: logger.Named("events")}
}

func (d *Dispatcher) OnSent(fn func(SentEvent)) (unsubscribe func()) {
	return subscribe(d, &d.sent, fn)
}

func (d *Dispatcher) OnFailed(fn func(FailedEvent)) (unsubscribe func()) {
	return subscribe(d, &d.failed, fn)
}

func (d *Dispatcher) OnLogsPruned(fn func(LogsPrunedEvent)) (unsubscribe func()) {
	return subscribe(d, &d.pruned, fn)
}

func (d *Dispatcher) OnSettingsSaved(fn func(SettingsSavedEvent)) (unsubscribe func()) {
	return subscribe(d, &d.settings, fn)
}

func subscribe[T Event](d *Dispatcher, list *[]subscription[T], fn func(T)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return func() {}
	}
	d.nextID++
	id := d.nextID
	*list = append(*list, subscription[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			for i, s := range *list {
				if s.id == id {
					*list = append((*list)[:i:i], (*list)[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to the subscribers of its variant. Unknown variants
// are an error.
func (d *Dispatcher) Publish(ev Event) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	var run func()
	switch e := ev.(type) {
	case SentEvent:
		run = dispatch(d, d.sent, e)
	case FailedEvent:
		run = dispatch(d, d.failed, e)
	case LogsPrunedEvent:
		run = dispatch(d, d.pruned, e)
	case SettingsSavedEvent:
		run = dispatch(d, d.settings, e)
	default:
		d.mu.RUnlock()
		return fmt.Errorf("unknown event type %T", ev)
	}
	// subscribers run outside the lock so they may (un)subscribe
	d.mu.RUnlock()
	run()
	return nil
}

func dispatch[T Event](d *Dispatcher, list []subscription[T], ev T) func() {
	subs := append([]subscription[T](nil), list...)
	return func() {
		for _, s := range subs {
			fn := s.fn
			d.safeCall(ev, func() { fn(ev) })
		}
	}
}

func (d *Dispatcher) safeCall(ev Event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event subscriber panicked",
				zap.String("event_id", ev.EventID()),
				zap.String("event_type", fmt.Sprintf("%T", ev)),
				zap.Any("panic", r),
			)
		}
	}()
	fn()
}

// Close drops all subscribers. Later subscriptions are ignored and Publish
// returns ErrClosed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.sent, d.failed, d.pruned, d.settings = nil, nil, nil, nil
}
