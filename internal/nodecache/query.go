package nodecache

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/structured-notes/notes-go/internal/node"
	"github.com/structured-notes/notes-go/internal/tagindex"
)

// maxConcurrentFetches bounds FetchMany's parallelism.
const maxConcurrentFetches = 8

// Get returns the cached node for id without touching the network. The node
// may be partial.
func (c *Cache) Get(id string) (node.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.nodes.Get(id)
	if !ok {
		return node.Node{}, fmt.Errorf("%w: %s", ErrNotCached, id)
	}

	return n.Clone(), nil
}

// Nodes returns a snapshot of the whole cache in insertion order.
func (c *Cache) Nodes() *node.Collection[string, node.Node] {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nodes.Clone(node.Node.Clone)
}

// Len returns the number of cached nodes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.nodes.Len()
}

// Children returns the cached nodes whose parent is parentID. An empty
// parentID selects the roots.
func (c *Cache) Children(parentID string) []node.Node {
	return c.filter(func(n *node.Node) bool { return n.ParentID == parentID })
}

// ByTag returns the cached nodes carrying tag. Matching uses the same
// normalization as the tag index.
func (c *Cache) ByTag(tag string) []node.Node {
	return c.filter(func(n *node.Node) bool { return tagindex.Has(n.Tags, tag) })
}

// Media returns the cached media nodes.
func (c *Cache) Media() []node.Node {
	return c.filter(func(n *node.Node) bool { return n.IsMedia() })
}

func (c *Cache) filter(pred func(*node.Node) bool) []node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()

	matched := c.nodes.Filter(func(_ string, n node.Node) bool { return pred(&n) })
	for i := range matched {
		matched[i] = matched[i].Clone()
	}

	return matched
}

// FetchMany runs FetchOne for each id concurrently and returns the nodes in
// the order of ids. The first failure cancels the remaining fetches and is
// returned.
func (c *Cache) FetchMany(ctx context.Context, ids []string) ([]node.Node, error) {
	out := make([]node.Node, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)

	for i, id := range ids {
		g.Go(func() error {
			n, err := c.FetchOne(gctx, id)
			if err != nil {
				return fmt.Errorf("nodecache: fetching %s: %w", id, err)
			}

			out[i] = n

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}
