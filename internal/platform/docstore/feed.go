package docstore

import (
	"sync"
)

// Change describes a committed write.
type Change struct {
	Path       string `json:"path"`
	Collection string `json:"collection"`
	Origin     string `json:"origin,omitempty"`
}

// Feed fans committed writes out to listeners.
type Feed interface {
	Publish(c Change)
	// Subscribe registers fn for every published change and returns a
	// function that removes it.
	Subscribe(fn func(Change)) (unsubscribe func())
}

// LocalFeed is an in-process Feed. Subscribers are called synchronously on
// the publishing goroutine and must not block.
type LocalFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Change)
}

// NewLocalFeed creates an empty LocalFeed.
func NewLocalFeed() *LocalFeed {
	return &LocalFeed{subs: make(map[int]func(Change))}
}

func (f *LocalFeed) Publish(c Change) {
	f.mu.RLock()
	fns := make([]func(Change), 0, len(f.subs))
	for _, fn := range f.subs {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}

func (f *LocalFeed) Subscribe(fn func(Change)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (f *LocalFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
