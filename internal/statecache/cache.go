package statecache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/platform/apierr"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
)

const DefaultTTL = 30 * time.Second

const (
	KindVideo   = "video"
	KindSession = "session"
)

// Loader backs cache misses with repository reads.
type Loader interface {
	LoadVideoState(ctx context.Context, videoID uuid.UUID) (*VideoState, error)
	LoadSessionState(ctx context.Context, sessionID uuid.UUID) (*SessionState, error)
}

// Event is delivered to subscribers after every load or successful mutation
// performed through the cache. State is *VideoState or *SessionState
// depending on Kind.
type Event struct {
	Kind  string
	ID    uuid.UUID
	State any
}

type Listener func(Event)

type subKey struct {
	kind string
	id   uuid.UUID
}

// Cache is the process-local read-through cache keeping concurrent UI
// consumers of the same video/session consistent. Entries soft-expire after
// the TTL; a successful mutation resets the entry's clock and notifies
// subscribers without touching unrelated entries.
//
// The cache is explicitly process-local. In a multi-instance deployment the
// optional Bus broadcasts invalidations so peer instances drop their copy;
// it does not provide cross-instance read consistency.
type Cache struct {
	log    *logger.Logger
	loader Loader
	ttl    time.Duration
	bus    Bus

	mu         sync.Mutex
	videos     map[uuid.UUID]*VideoState
	sessions   map[uuid.UUID]*SessionState
	subs       map[subKey]map[uint64]Listener
	globalSubs map[uint64]Listener
	nextHandle uint64
	mutateLock map[subKey]*sync.Mutex
}

func New(log *logger.Logger, loader Loader, ttl time.Duration, bus Bus) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		log:        log.With("service", "StateSyncCache"),
		loader:     loader,
		ttl:        ttl,
		bus:        bus,
		videos:     map[uuid.UUID]*VideoState{},
		sessions:   map[uuid.UUID]*SessionState{},
		subs:       map[subKey]map[uint64]Listener{},
		globalSubs: map[uint64]Listener{},
		mutateLock: map[subKey]*sync.Mutex{},
	}
}

// entityLock returns the mutex serializing mutations of one entity. Without
// it two concurrent mutates clone the same snapshot and the later commit
// silently drops the earlier one's change from the projection.
func (c *Cache) entityLock(kind string, id uuid.UUID) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := subKey{kind: kind, id: id}
	m, ok := c.mutateLock[key]
	if !ok {
		m = &sync.Mutex{}
		c.mutateLock[key] = m
	}
	return m
}

// StartBusForwarder wires invalidations published by peer instances into
// this cache. Safe to skip when no bus is configured.
func (c *Cache) StartBusForwarder(ctx context.Context) error {
	if c.bus == nil {
		return nil
	}
	return c.bus.StartForwarder(ctx, func(inv Invalidation) {
		c.Invalidate(inv.Kind, inv.ID)
	})
}

// GetVideo returns the cached projection when it is fresh, otherwise loads
// it, stores it, and notifies subscribers.
func (c *Cache) GetVideo(ctx context.Context, videoID uuid.UUID, forceRefresh bool) (*VideoState, error) {
	c.mu.Lock()
	if st, ok := c.videos[videoID]; ok && !forceRefresh && time.Since(st.LoadedAt) < c.ttl {
		out := st.Clone()
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	st, err := c.loader.LoadVideoState(ctx, videoID)
	if err != nil && !apierr.IsRecoverable(err) {
		// Loads are idempotent reads; one retry covers transient failures.
		c.log.Warn("video state load failed, retrying once", "videoID", videoID, "error", err)
		st, err = c.loader.LoadVideoState(ctx, videoID)
	}
	if err != nil {
		return nil, err
	}
	st.LoadedAt = time.Now()

	c.mu.Lock()
	c.videos[videoID] = st
	out := st.Clone()
	c.mu.Unlock()

	c.notify(Event{Kind: KindVideo, ID: videoID, State: out})
	return out, nil
}

func (c *Cache) GetSession(ctx context.Context, sessionID uuid.UUID, forceRefresh bool) (*SessionState, error) {
	c.mu.Lock()
	if st, ok := c.sessions[sessionID]; ok && !forceRefresh && time.Since(st.LoadedAt) < c.ttl {
		out := st.Clone()
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()

	st, err := c.loader.LoadSessionState(ctx, sessionID)
	if err != nil && !apierr.IsRecoverable(err) {
		c.log.Warn("session state load failed, retrying once", "sessionID", sessionID, "error", err)
		st, err = c.loader.LoadSessionState(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}
	st.LoadedAt = time.Now()

	c.mu.Lock()
	c.sessions[sessionID] = st
	out := st.Clone()
	c.mu.Unlock()

	c.notify(Event{Kind: KindSession, ID: sessionID, State: out})
	return out, nil
}

// MutateVideo stages apply on a copy of the cached projection, runs persist,
// and commits the copy only when persist succeeds. On failure the cached
// state is untouched and the error is returned as-is. Mutations of the same
// video are serialized; different videos proceed concurrently.
func (c *Cache) MutateVideo(ctx context.Context, videoID uuid.UUID, apply func(*VideoState) error, persist func(ctx context.Context) error) error {
	lock := c.entityLock(KindVideo, videoID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.GetVideo(ctx, videoID, false); err != nil {
		return err
	}

	c.mu.Lock()
	staged := c.videos[videoID].Clone()
	c.mu.Unlock()

	if err := apply(staged); err != nil {
		return err
	}
	staged.RebuildDerived()

	if err := persist(ctx); err != nil {
		return err
	}

	staged.LoadedAt = time.Now()
	c.mu.Lock()
	c.videos[videoID] = staged
	out := staged.Clone()
	c.mu.Unlock()

	c.notify(Event{Kind: KindVideo, ID: videoID, State: out})
	c.publishInvalidation(ctx, KindVideo, videoID)
	return nil
}

func (c *Cache) MutateSession(ctx context.Context, sessionID uuid.UUID, apply func(*SessionState) error, persist func(ctx context.Context) error) error {
	lock := c.entityLock(KindSession, sessionID)
	lock.Lock()
	defer lock.Unlock()

	if _, err := c.GetSession(ctx, sessionID, false); err != nil {
		return err
	}

	c.mu.Lock()
	staged := c.sessions[sessionID].Clone()
	c.mu.Unlock()

	if err := apply(staged); err != nil {
		return err
	}

	if err := persist(ctx); err != nil {
		return err
	}

	staged.LoadedAt = time.Now()
	c.mu.Lock()
	c.sessions[sessionID] = staged
	out := staged.Clone()
	c.mu.Unlock()

	c.notify(Event{Kind: KindSession, ID: sessionID, State: out})
	c.publishInvalidation(ctx, KindSession, sessionID)
	return nil
}

// Invalidate drops an entry so the next read goes to the repository. Used by
// the bus forwarder; local mutations refresh in place instead.
func (c *Cache) Invalidate(kind string, id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case KindVideo:
		delete(c.videos, id)
	case KindSession:
		delete(c.sessions, id)
	}
}

// Subscribe registers a listener for one video or session. When the entry is
// already populated the listener is invoked synchronously with the current
// state before returning (replay-on-subscribe); an unpopulated key delivers
// nothing until the first get or mutate. The returned func unsubscribes.
func (c *Cache) Subscribe(kind string, id uuid.UUID, l Listener) func() {
	key := subKey{kind: kind, id: id}

	c.mu.Lock()
	handle := c.nextHandle
	c.nextHandle++
	if c.subs[key] == nil {
		c.subs[key] = map[uint64]Listener{}
	}
	c.subs[key][handle] = l

	var replay *Event
	switch kind {
	case KindVideo:
		if st, ok := c.videos[id]; ok {
			replay = &Event{Kind: KindVideo, ID: id, State: st.Clone()}
		}
	case KindSession:
		if st, ok := c.sessions[id]; ok {
			replay = &Event{Kind: KindSession, ID: id, State: st.Clone()}
		}
	}
	c.mu.Unlock()

	if replay != nil {
		l(*replay)
	}

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if set, ok := c.subs[key]; ok {
			delete(set, handle)
			if len(set) == 0 {
				delete(c.subs, key)
			}
		}
	}
}

// SubscribeAll registers a listener for every change across all entities.
func (c *Cache) SubscribeAll(l Listener) func() {
	c.mu.Lock()
	handle := c.nextHandle
	c.nextHandle++
	c.globalSubs[handle] = l
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.globalSubs, handle)
	}
}

func (c *Cache) notify(ev Event) {
	c.mu.Lock()
	listeners := make([]Listener, 0)
	if set, ok := c.subs[subKey{kind: ev.Kind, id: ev.ID}]; ok {
		for _, l := range set {
			listeners = append(listeners, l)
		}
	}
	for _, l := range c.globalSubs {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (c *Cache) publishInvalidation(ctx context.Context, kind string, id uuid.UUID) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, Invalidation{Kind: kind, ID: id}); err != nil {
		c.log.Warn("invalidation publish failed", "kind", kind, "id", id, "error", err)
	}
}
