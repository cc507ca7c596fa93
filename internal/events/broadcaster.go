package events

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Subscriber receives live events. Close is signalled by the channel closing.
type Subscriber chan Event

// subscriberBuffer is how many events a slow client may lag before drops.
const subscriberBuffer = 64

var (
	subsMu  sync.RWMutex
	subs    = make(map[Subscriber][]string) // subscriber -> categories, nil for all
	dropped atomic.Uint64
)

// Category is the part of an event name before the first dot:
// "choice" for "choice.selected".
func Category(name string) string {
	c, _, _ := strings.Cut(name, ".")
	return c
}

func wants(categories []string, name string) bool {
	if len(categories) == 0 {
		return true
	}
	c := Category(name)
	for _, want := range categories {
		if want == c {
			return true
		}
	}
	return false
}

// Subscribe registers a live subscriber. With categories, only events in
// those categories are delivered.
func Subscribe(categories ...string) Subscriber {
	ch := make(Subscriber, subscriberBuffer)
	subsMu.Lock()
	subs[ch] = categories
	subsMu.Unlock()
	return ch
}

// Unsubscribe removes sub and closes it. Repeated calls are no-ops.
func Unsubscribe(sub Subscriber) {
	subsMu.Lock()
	defer subsMu.Unlock()
	if _, ok := subs[sub]; ok {
		delete(subs, sub)
		close(sub)
	}
}

// CloseAllSubscribers closes every subscriber on shutdown.
func CloseAllSubscribers() {
	subsMu.Lock()
	defer subsMu.Unlock()
	for sub := range subs {
		delete(subs, sub)
		close(sub)
	}
}

// broadcast never blocks Emit: a subscriber with a full buffer misses the event.
func broadcast(e Event) {
	subsMu.RLock()
	defer subsMu.RUnlock()
	for sub, categories := range subs {
		if !wants(categories, e.Name) {
			continue
		}
		select {
		case sub <- e:
		default:
			dropped.Add(1)
		}
	}
}

func SubscriberCount() int {
	subsMu.RLock()
	defer subsMu.RUnlock()
	return len(subs)
}

// Dropped counts events lost to full subscriber buffers since startup.
func Dropped() uint64 {
	return dropped.Load()
}

// RecentEvents returns up to n buffered events in the given categories,
// oldest first. n <= 0 returns all of them.
func RecentEvents(n int, categories ...string) []Event {
	all := history.Snapshot()
	if len(categories) > 0 {
		kept := all[:0]
		for _, e := range all {
			if wants(categories, e.Name) {
				kept = append(kept, e)
			}
		}
		all = kept
	}
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}
