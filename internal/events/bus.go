package events

import (
	"log/slog"
	"sync"
)

// Bus fans a value out to every subscribed observer. Observers run
// synchronously on the publishing goroutine; a panicking observer is
// logged and does not affect the others.
type Bus[T any] struct {
	name   string
	logger *slog.Logger

	mu        sync.RWMutex
	nextID    uint64
	observers map[uint64]func(T)
	order     []uint64
}

// NewBus creates an empty bus. name is used in log records.
func NewBus[T any](name string, logger *slog.Logger) *Bus[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus[T]{
		name:      name,
		logger:    logger,
		observers: make(map[uint64]func(T)),
	}
}

// Subscribe registers fn and returns a function that removes it
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.observers[id] = fn
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.observers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish invokes every observer in subscription order
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	snapshot := make([]func(T), 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.observers[id])
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		b.invoke(fn, v)
	}
}

func (b *Bus[T]) invoke(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Observer panicked",
				slog.String("bus", b.name),
				slog.Any("panic", r),
			)
		}
	}()
	fn(v)
}

// Len returns the number of subscribed observers
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.order)
}
