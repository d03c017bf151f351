// Package nodecache keeps the client-side copy of the user's nodes. Nodes
// arrive partial from list fetches and become full after a single-node
// fetch; a full node is served from memory with no network access. Every
// batch mutation rebuilds the tag index and repairs dangling parent links
// before the cache lock is released, so readers never observe an
// intermediate state.
package nodecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/internal/events"
	"github.com/structured-notes/notes-go/internal/metrics"
	"github.com/structured-notes/notes-go/internal/node"
	"github.com/structured-notes/notes-go/internal/tagindex"
)

// Routes, relative to the API base URL.
const (
	nodesRoute  = "nodes/@me"
	sharedRoute = "nodes/shared/@me"
	publicRoute = "nodes/public"
)

// ErrNotCached is returned by Get for an id the cache does not hold.
var ErrNotCached = errors.New("nodecache: not cached")

// Requester issues pipeline calls. *api.Client satisfies it.
type Requester interface {
	Request(ctx context.Context, route, method string, body any) api.Result
}

// Cache is the process-wide node store for one session. It is safe for
// concurrent use. Network calls are made outside the lock; the last
// response to arrive wins.
type Cache struct {
	client  Requester
	logger  *slog.Logger
	metrics *metrics.Metrics
	events  *events.Broadcaster
	tags    *tagindex.Index

	mu     sync.Mutex
	nodes  *node.Collection[string, node.Node]
	public *node.Collection[string, node.Node]

	fetching atomic.Bool
}

// New creates an empty cache backed by client. m may be nil.
func New(client Requester, logger *slog.Logger, m *metrics.Metrics) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{
		client:  client,
		logger:  logger,
		metrics: m,
		events:  events.NewBroadcaster(),
		tags:    tagindex.New(logger),
		nodes:   node.NewCollection[string, node.Node](),
		public:  node.NewCollection[string, node.Node](),
	}
}

// FetchOne returns the full node for id. A cached full node is returned
// without a network call. Otherwise the node is fetched, merged (keeping
// any previously known Shared flag), marked full, and returned.
//
// A failed call returns an error holding *api.ResultError with the raw
// envelope.
func (c *Cache) FetchOne(ctx context.Context, id string) (node.Node, error) {
	c.mu.Lock()
	cached, ok := c.nodes.Get(id)
	c.mu.Unlock()

	if ok && !cached.Partial {
		c.metrics.RecordCacheHit()
		return cached.Clone(), nil
	}

	res := c.request(ctx, nodesRoute+"/"+url.PathEscape(id))
	if !res.OK() {
		c.logger.Debug("node fetch failed",
			slog.String("id", id),
			slog.String("message", res.Message),
		)

		return node.Node{}, res.Err()
	}

	detail, err := api.Decode[node.DetailRecord](res)
	if err != nil {
		return node.Node{}, fmt.Errorf("nodecache: decoding node %s: %w", id, err)
	}

	fetched := detail.Node.ToNode(c.logger)
	if fetched.ID == "" {
		fetched.ID = id
	}

	fetched.Partial = false
	fetched.Permissions = node.ToPermissions(detail.Permissions, c.logger)

	c.mu.Lock()
	if prev, ok := c.nodes.Get(fetched.ID); ok {
		fetched.Shared = prev.Shared
	}

	c.nodes.Set(fetched.ID, fetched)
	c.commitLocked()

	// Orphan repair may have rewritten the parent link.
	merged, _ := c.nodes.Get(fetched.ID)
	merged = merged.Clone()
	c.mu.Unlock()

	c.events.Publish(events.Event{Type: events.NodeFetched, IDs: []string{merged.ID}})

	return merged, nil
}

// FetchAll lists every node of the current user and merges the list into
// the cache. Unknown ids are inserted partial with no permissions and
// Shared unset; known ids only have their descriptive fields refreshed, so
// a full node is never downgraded. The returned collection is a snapshot of
// the whole cache, not only the fetched subset.
func (c *Cache) FetchAll(ctx context.Context) (*node.Collection[string, node.Node], error) {
	res := c.request(ctx, nodesRoute)
	if !res.OK() {
		return nil, res.Err()
	}

	records, err := api.Decode[[]node.Record](res)
	if err != nil {
		return nil, fmt.Errorf("nodecache: decoding node list: %w", err)
	}

	ids := make([]string, 0, len(records))

	c.mu.Lock()
	for i := range records {
		ids = append(ids, c.mergeListedLocked(records[i].ToNode(c.logger), false))
	}

	tags := c.commitLocked()
	snapshot := c.nodes.Clone(node.Node.Clone)
	c.mu.Unlock()

	c.logger.Debug("node list merged",
		slog.Int("fetched", len(records)),
		slog.Int("cached", snapshot.Len()),
		slog.Int("tags", len(tags)),
	)

	c.events.Publish(events.Event{Type: events.NodesFetched, IDs: ids, Tags: tags})

	return snapshot, nil
}

// FetchShared lists the nodes other users have shared with the current
// user. They merge like a list fetch, and each is marked Shared.
func (c *Cache) FetchShared(ctx context.Context) ([]node.Node, error) {
	res := c.request(ctx, sharedRoute)
	if !res.OK() {
		return nil, res.Err()
	}

	records, err := api.Decode[[]node.Record](res)
	if err != nil {
		return nil, fmt.Errorf("nodecache: decoding shared list: %w", err)
	}

	ids := make([]string, 0, len(records))

	c.mu.Lock()
	for i := range records {
		ids = append(ids, c.mergeListedLocked(records[i].ToNode(c.logger), true))
	}

	tags := c.commitLocked()

	out := make([]node.Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := c.nodes.Get(id); ok {
			out = append(out, n.Clone())
		}
	}
	c.mu.Unlock()

	c.events.Publish(events.Event{Type: events.NodesFetched, IDs: ids, Tags: tags})

	return out, nil
}

// FetchPublic retrieves a node that is readable without a session. Public
// nodes live in their own collection and never mix with the user's nodes.
func (c *Cache) FetchPublic(ctx context.Context, id string) (node.Node, error) {
	res := c.request(ctx, publicRoute+"/"+url.PathEscape(id))
	if !res.OK() {
		return node.Node{}, res.Err()
	}

	rec, err := api.Decode[node.Record](res)
	if err != nil {
		return node.Node{}, fmt.Errorf("nodecache: decoding public node %s: %w", id, err)
	}

	n := rec.ToNode(c.logger)
	if n.ID == "" {
		n.ID = id
	}

	n.Permissions = []node.Permission{}

	c.mu.Lock()
	c.public.Set(n.ID, n)
	c.mu.Unlock()

	c.events.Publish(events.Event{Type: events.PublicFetched, IDs: []string{n.ID}})

	return n.Clone(), nil
}

// Public returns a public node fetched earlier.
func (c *Cache) Public(id string) (node.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.public.Get(id)
	if !ok {
		return node.Node{}, fmt.Errorf("%w: public node %s", ErrNotCached, id)
	}

	return n.Clone(), nil
}

// Set upserts a node supplied from outside a fetch, such as the node the
// server returns for an upload. The node is stored as given.
func (c *Cache) Set(n node.Node) {
	c.mu.Lock()
	c.nodes.Set(n.ID, n.Clone())
	tags := c.commitLocked()
	c.mu.Unlock()

	c.events.Publish(events.Event{Type: events.NodeSet, IDs: []string{n.ID}, Tags: tags})
}

// Clear drops every node and the tag index. Every id returns to absent.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.nodes.Clear()
	c.public.Clear()
	c.tags.Reset()
	c.fetching.Store(false)
	c.metrics.SetCacheSize(0, 0)
	c.mu.Unlock()

	c.logger.Debug("node cache cleared")
	c.events.Publish(events.Event{Type: events.Cleared})
}

// Tags returns the current sorted tag index.
func (c *Cache) Tags() []string {
	return c.tags.Tags()
}

// IsFetching reports whether a fetch that started against an empty cache
// is still waiting for its response. It is a display hint only.
func (c *Cache) IsFetching() bool {
	return c.fetching.Load()
}

// Subscribe returns a channel receiving an event after every committed
// mutation. Release it with Unsubscribe.
func (c *Cache) Subscribe() chan events.Event {
	return c.events.Subscribe()
}

// Unsubscribe releases a channel returned by Subscribe.
func (c *Cache) Unsubscribe(ch chan events.Event) {
	c.events.Unsubscribe(ch)
}

// request issues a GET and maintains the fetching hint around it.
func (c *Cache) request(ctx context.Context, route string) api.Result {
	c.mu.Lock()
	if c.nodes.Len() == 0 {
		c.fetching.Store(true)
	}
	c.mu.Unlock()

	res := c.client.Request(ctx, route, http.MethodGet, nil)
	c.fetching.Store(false)

	return res
}

// mergeListedLocked applies one list record. The caller holds c.mu.
func (c *Cache) mergeListedLocked(listed node.Node, shared bool) string {
	prev, ok := c.nodes.Get(listed.ID)
	if !ok {
		listed.Partial = true
		listed.Permissions = []node.Permission{}
		listed.Shared = shared
		c.nodes.Set(listed.ID, listed)

		return listed.ID
	}

	prev.MergeDescriptive(&listed)
	if shared {
		prev.Shared = true
	}

	c.nodes.Set(prev.ID, prev)

	return prev.ID
}

// commitLocked rebuilds the tag index (repairing orphans) and updates the
// size gauges. The caller holds c.mu.
func (c *Cache) commitLocked() []string {
	tags := c.tags.Recompute(c.nodes)
	c.metrics.SetCacheSize(c.nodes.Len(), len(tags))

	return tags
}
