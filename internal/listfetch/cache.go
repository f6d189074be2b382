package listfetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/trading-panel/internal/core/events"
	"github.com/frahmantamala/trading-panel/internal/upstream"
	"golang.org/x/sync/singleflight"
)

type entry struct {
	page     *upstream.Page
	storedAt time.Time
}

// Cache holds list pages shared by every view of the same entity, so that one
// invalidation is seen by all of them.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[Key]entry
	epochs  map[string]uint64
	subs    map[string]map[uint64]func()
	nextSub uint64
	group   singleflight.Group
	logger  *slog.Logger
}

func NewCache(ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]entry),
		epochs:  make(map[string]uint64),
		subs:    make(map[string]map[uint64]func()),
		logger:  logger,
	}
}

// Get returns a cached page. Expired entries count as misses.
func (c *Cache) Get(key Key) (*upstream.Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return e.page, true
}

func (c *Cache) Put(key Key, page *upstream.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{page: page, storedAt: c.now()}
}

// Fetch loads a page and stores it. Identical concurrent loads share one
// upstream call. A result that was started before an invalidation of its tag
// is returned to the caller but not stored.
//
// The shared load keeps the first caller's deadline but not its cancellation,
// so a caller giving up returns early without failing the others.
func (c *Cache) Fetch(ctx context.Context, key Key, pageSize int, load func(context.Context) (*upstream.Page, error)) (*upstream.Page, error) {
	c.mu.Lock()
	epoch := c.epochs[key.Prefix]
	c.mu.Unlock()

	flight := fmt.Sprintf("%s|%d|%d|%s|%d", key.Prefix, epoch, key.PageIndex, key.Search, pageSize)
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		loadCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			loadCtx, cancel = context.WithDeadline(loadCtx, deadline)
			defer cancel()
		}

		page, err := load(loadCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.epochs[key.Prefix] == epoch {
			c.entries[key] = entry{page: page, storedAt: c.now()}
		}
		c.mu.Unlock()
		return page, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger.Debug("list load shared", "prefix", key.Prefix, "page_index", key.PageIndex)
		}
		return res.Val.(*upstream.Page), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops every page of the tag and tells subscribed views to reload.
func (c *Cache) Invalidate(tag string) {
	c.mu.Lock()
	dropped := 0
	for key := range c.entries {
		if key.Prefix == tag {
			delete(c.entries, key)
			dropped++
		}
	}
	c.epochs[tag]++
	notify := make([]func(), 0, len(c.subs[tag]))
	for _, fn := range c.subs[tag] {
		notify = append(notify, fn)
	}
	c.mu.Unlock()

	c.logger.Debug("list cache invalidated", "tag", tag, "dropped", dropped, "views", len(notify))
	for _, fn := range notify {
		fn()
	}
}

// Subscribe registers fn to run after each invalidation of tag. The returned
// func removes it.
func (c *Cache) Subscribe(tag string, fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	if c.subs[tag] == nil {
		c.subs[tag] = make(map[uint64]func())
	}
	c.subs[tag][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[tag], id)
		if len(c.subs[tag]) == 0 {
			delete(c.subs, tag)
		}
	}
}

// Attach makes list.invalidated events on the bus invalidate this cache.
func (c *Cache) Attach(bus *events.EventBus) {
	bus.Subscribe(events.ListInvalidated, func(ctx context.Context, event events.Event) error {
		tag := events.Tag(event)
		if tag == "" {
			return fmt.Errorf("list invalidation without tag: %s", event.EventID())
		}
		c.Invalidate(tag)
		return nil
	})
}
