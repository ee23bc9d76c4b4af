// Package events implements PicoFS's EventBus (spec.md §4.7): best-effort
// fan-out of filesystem change notifications to path-prefix-filtered
// subscribers, plus the translation of external DiskFileEvents from mounted
// backends.
package events

import (
	"sync"

	"github.com/picofs/picofs/internal/pathutil"
	"github.com/sourcegraph/conc"
)

// Kind classifies a published event.
type Kind int

const (
	Created Kind = iota
	Modified
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "CREATED"
	case Modified:
		return "MODIFIED"
	case Deleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// FsEvent is a single filesystem change notification.
type FsEvent struct {
	Path string
	Kind Kind
}

// DefaultBufferSize is the per-subscriber channel capacity; once full, the
// oldest buffered event is dropped to admit the newest (spec.md §4.7:
// "overflow drops oldest").
const DefaultBufferSize = 256

type subscriber struct {
	id       uint64
	prefix   string
	ch       chan FsEvent
	mu       sync.Mutex
	closed   bool
}

// Bus is the EventBus. The zero value is not usable; use New.
type Bus struct {
	mu       sync.RWMutex
	subs     map[uint64]*subscriber
	nextID   uint64
	bufSize  int
}

// New creates an empty Bus. bufSize <= 0 uses DefaultBufferSize.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Bus{subs: make(map[uint64]*subscriber), bufSize: bufSize}
}

// Subscription is a handle to an active subscription; call Close to detach.
type Subscription struct {
	bus *Bus
	id  uint64
	ch  <-chan FsEvent
}

// Events returns the channel the subscriber should range over.
func (s *Subscription) Events() <-chan FsEvent { return s.ch }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		sub.mu.Unlock()
		delete(s.bus.subs, s.id)
	}
}

// Subscribe registers a subscriber for every event whose path is prefixed
// by pathPrefix ("/" subscribes to everything).
func (b *Bus) Subscribe(pathPrefix string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscriber{
		id:     b.nextID,
		prefix: pathutil.Normalize(pathPrefix),
		ch:     make(chan FsEvent, b.bufSize),
	}
	b.subs[sub.id] = sub
	return &Subscription{bus: b, id: sub.id, ch: sub.ch}
}

// Publish fans ev out to every matching subscriber concurrently, never
// blocking on a slow one (spec.md §4.7: "slow subscribers must not block
// publishers").
func (b *Bus) Publish(ev FsEvent) {
	b.mu.RLock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if pathutil.HasPrefix(ev.Path, sub.prefix) {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	var wg conc.WaitGroup
	for _, sub := range targets {
		sub := sub
		wg.Go(func() { deliver(sub, ev) })
	}
	wg.Wait()
}

func deliver(sub *subscriber, ev FsEvent) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	for {
		select {
		case sub.ch <- ev:
			return
		default:
		}
		// Buffer full: drop the oldest buffered event and retry.
		select {
		case <-sub.ch:
		default:
			return
		}
	}
}

// DiskFileEvent is the shape a DiskFileWatcher reports changes in, using
// paths relative to the mount's disk root.
type DiskFileEvent struct {
	RelativePath string
	Kind         Kind
}

// PublishFromMount translates a DiskFileEvent into an FsEvent by prefixing
// the mount's virtual path, and publishes it.
func (b *Bus) PublishFromMount(virtualMountPath string, ev DiskFileEvent) {
	b.Publish(FsEvent{
		Path: pathutil.Join(virtualMountPath, ev.RelativePath),
		Kind: ev.Kind,
	})
}
