package builder

import "sync"

// Notifier is a change source a connector depends on. Subscribe registers a
// callback fired after every change and returns a function removing it.
type Notifier interface {
	Subscribe(onChange func()) (unsubscribe func())
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(onChange func()) (unsubscribe func())

// Subscribe calls f.
func (f NotifierFunc) Subscribe(onChange func()) func() {
	return f(onChange)
}

// Combine merges several notifiers into one. Nil entries are ignored.
func Combine(notifiers ...Notifier) Notifier {
	return NotifierFunc(func(onChange func()) func() {
		unsubs := make([]func(), 0, len(notifiers))
		for _, n := range notifiers {
			if n != nil {
				unsubs = append(unsubs, n.Subscribe(onChange))
			}
		}
		return func() {
			for _, u := range unsubs {
				u()
			}
		}
	})
}

// Value is a minimal observable cell. Connectors read it and return it as
// their Notifier so that the registry re-expands when it changes.
type Value[T any] struct {
	mu   sync.RWMutex
	v    T
	subs map[int]func()
	next int
}

// NewValue creates a Value holding v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v, subs: make(map[int]func())}
}

// Get returns the current value.
func (c *Value[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// Set replaces the value and notifies subscribers.
func (c *Value[T]) Set(v T) {
	c.mu.Lock()
	c.v = v
	fns := c.listeners()
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Update applies fn atomically and notifies subscribers.
func (c *Value[T]) Update(fn func(T) T) {
	c.mu.Lock()
	c.v = fn(c.v)
	fns := c.listeners()
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Subscribe implements Notifier.
func (c *Value[T]) Subscribe(onChange func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[int]func())
	}
	id := c.next
	c.next++
	c.subs[id] = onChange
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (c *Value[T]) Subscribers() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

func (c *Value[T]) listeners() []func() {
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	return fns
}
