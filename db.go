package miniredis

import (
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// broadcastCapacity bounds how many unread messages a single subscriber can
// accumulate before Publish starts silently dropping for it.
const broadcastCapacity = 1024

// expirationEntry is one (deadline, key) tuple in the expiration index,
// ordered so the earliest deadline is always first.
type expirationEntry struct {
	when time.Time
	key  string
}

func lessExpiration(a, b interface{}) bool {
	aa, bb := a.(expirationEntry), b.(expirationEntry)
	if aa.when.Equal(bb.when) {
		return aa.key < bb.key
	}
	return aa.when.Before(bb.when)
}

// minExpiration returns the earliest deadline in the index, using the zero
// Time (which sorts before every real deadline Set ever produces) as the
// Ascend pivot so the first item visited is the minimum.
func minExpiration(tr *btree.BTree) (expirationEntry, bool) {
	var min expirationEntry
	found := false
	tr.Ascend(expirationEntry{}, func(item interface{}) bool {
		min = item.(expirationEntry)
		found = true
		return false
	})
	return min, found
}

type entry struct {
	data      []byte
	expiresAt *time.Time
}

type dbState struct {
	entries     map[string]entry
	expirations *btree.BTree
	pubsub      map[string]*broadcastHub
	shutdown    bool
}

type dbShared struct {
	mu       sync.Mutex
	state    dbState
	notifyCh chan struct{}
}

// notify wakes the purge goroutine if it's waiting, without blocking if it
// isn't (the notifyCh permit is a single slot, matching a level-triggered
// "there is new work" flag rather than a queue of events).
func (s *dbShared) notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// Db is a cheap, reference-counted handle onto the shared store: cloning it
// (passing it by value) is how every connection handler gets its own
// reference to the same state.
type Db struct {
	shared *dbShared
}

// DbDropGuard owns the one reference whose Close tears down the background
// purge goroutine; Go has no destructors, so the listener calls Close
// explicitly once it has stopped accepting new handlers.
type DbDropGuard struct {
	db   Db
	once sync.Once
}

// NewDbDropGuard creates a fresh store and starts its purge goroutine.
func NewDbDropGuard() *DbDropGuard {
	return &DbDropGuard{db: newDb()}
}

// Db returns the guarded store handle.
func (g *DbDropGuard) Db() Db { return g.db }

// Close stops the purge goroutine. Safe to call more than once.
func (g *DbDropGuard) Close() {
	g.once.Do(func() {
		g.db.shutdownPurgeTask()
	})
}

func newDb() Db {
	shared := &dbShared{
		state: dbState{
			entries:     make(map[string]entry),
			expirations: btree.New(lessExpiration),
			pubsub:      make(map[string]*broadcastHub),
		},
		notifyCh: make(chan struct{}, 1),
	}
	go purgeExpiredTask(shared)
	return Db{shared: shared}
}

// Get returns a copy of the value stored at key, if any. Expiration is not
// checked here: an entry whose deadline has passed is still returned until
// the purge goroutine removes it.
func (db Db) Get(key string) ([]byte, bool) {
	db.shared.mu.Lock()
	defer db.shared.mu.Unlock()

	e, ok := db.shared.state.entries[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, true
}

// Set stores value at key, replacing any prior value and expiration. A nil
// ttl means the key never expires on its own.
func (db Db) Set(key string, value []byte, ttl *time.Duration) {
	db.shared.mu.Lock()

	var expiresAt *time.Time
	notify := false
	if ttl != nil {
		when := time.Now().Add(*ttl)
		expiresAt = &when
		next, ok := minExpiration(db.shared.state.expirations)
		notify = !ok || when.Before(next.when)
	}

	data := make([]byte, len(value))
	copy(data, value)

	prev, existed := db.shared.state.entries[key]
	db.shared.state.entries[key] = entry{data: data, expiresAt: expiresAt}

	if existed && prev.expiresAt != nil {
		db.shared.state.expirations.Delete(expirationEntry{when: *prev.expiresAt, key: key})
	}
	if expiresAt != nil {
		db.shared.state.expirations.Set(expirationEntry{when: *expiresAt, key: key})
	}

	db.shared.mu.Unlock()

	if notify {
		db.shared.notify()
	}
}

// Subscribe registers interest in channel, returning a receive-only stream
// of future messages and a cancel function to stop receiving them. The
// per-channel broadcast hub is created lazily on first subscribe and
// persists until the store itself is torn down.
func (db Db) Subscribe(channel string) (<-chan []byte, func()) {
	db.shared.mu.Lock()
	hub, ok := db.shared.state.pubsub[channel]
	if !ok {
		hub = newBroadcastHub()
		db.shared.state.pubsub[channel] = hub
	}
	db.shared.mu.Unlock()
	return hub.subscribe()
}

// Publish delivers message to every current subscriber of channel on a
// best-effort basis and returns how many subscribers there were. A channel
// with no subscribers (including one nobody has ever subscribed to)
// reports 0.
func (db Db) Publish(channel string, message []byte) int {
	db.shared.mu.Lock()
	hub, ok := db.shared.state.pubsub[channel]
	db.shared.mu.Unlock()
	if !ok {
		return 0
	}
	return hub.publish(message)
}

func (db Db) shutdownPurgeTask() {
	db.shared.mu.Lock()
	db.shared.state.shutdown = true
	db.shared.mu.Unlock()
	db.shared.notify()
}

// purgeNow deletes every entry whose deadline has passed, returning the
// next deadline (if any) so the caller knows how long it may sleep.
func purgeNow(shared *dbShared) (next time.Time, hasNext bool, shutdown bool) {
	shared.mu.Lock()
	defer shared.mu.Unlock()

	if shared.state.shutdown {
		return time.Time{}, false, true
	}

	now := time.Now()
	for {
		min, ok := minExpiration(shared.state.expirations)
		if !ok {
			return time.Time{}, false, false
		}
		if min.when.After(now) {
			return min.when, true, false
		}
		shared.state.expirations.Delete(min)
		delete(shared.state.entries, min.key)
	}
}

// purgeExpiredTask runs for the lifetime of a store, evicting expired
// entries and sleeping until the next deadline or a Set/Close notification,
// whichever comes first.
func purgeExpiredTask(shared *dbShared) {
	for {
		next, hasNext, shutdown := purgeNow(shared)
		if shutdown {
			return
		}
		if hasNext {
			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
			case <-shared.notifyCh:
				timer.Stop()
			}
		} else {
			<-shared.notifyCh
		}
	}
}

// broadcastHub fans messages out to per-subscriber buffered channels. A
// slow subscriber whose buffer is full simply misses the message; it is
// never dropped from the hub or terminated for lagging.
type broadcastHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan []byte
}

func newBroadcastHub() *broadcastHub {
	return &broadcastHub{subs: make(map[int]chan []byte)}
}

func (h *broadcastHub) subscribe() (<-chan []byte, func()) {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	ch := make(chan []byte, broadcastCapacity)
	h.subs[id] = ch
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *broadcastHub) publish(msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	count := len(h.subs)
	for _, ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return count
}
