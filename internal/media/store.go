// Package media uploads files and tracks the media nodes created this
// session.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/structured-notes/notes-go/internal/api"
	"github.com/structured-notes/notes-go/internal/node"
	"github.com/structured-notes/notes-go/internal/nodecache"
)

const (
	mediaRoute = "media"
	filePart   = "file"
)

// Store holds the media nodes uploaded through it. Uploaded nodes are also
// written into the node cache.
type Store struct {
	client nodecache.Requester
	cache  *nodecache.Cache
	logger *slog.Logger

	mu    sync.RWMutex
	files *node.Collection[string, node.Node]
}

// New creates a media store.
func New(client nodecache.Requester, cache *nodecache.Cache, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		client: client,
		cache:  cache,
		logger: logger,
		files:  node.NewCollection[string, node.Node](),
	}
}

// Post uploads form. The server answers with the complete created node,
// which is stored in the node cache as a full record.
func (s *Store) Post(ctx context.Context, form *api.Form) (node.Node, error) {
	res := s.client.Request(ctx, mediaRoute, http.MethodPost, form)
	if !res.OK() {
		return node.Node{}, res.Err()
	}

	rec, err := api.Decode[node.Record](res)
	if err != nil {
		return node.Node{}, fmt.Errorf("media: decoding created node: %w", err)
	}

	n := rec.ToNode(s.logger)
	n.Partial = false
	n.Permissions = []node.Permission{}

	s.cache.Set(n)

	s.mu.Lock()
	s.files.Set(n.ID, n)
	s.mu.Unlock()

	s.logger.Info("media uploaded",
		slog.String("id", n.ID),
		slog.String("name", n.Name),
		slog.Int64("size", n.Size),
	)

	return n.Clone(), nil
}

// Upload reads the file at path and posts it as the form's file part.
func (s *Store) Upload(ctx context.Context, path string) (node.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return node.Node{}, fmt.Errorf("media: reading %s: %w", path, err)
	}

	return s.Post(ctx, api.NewForm().AddFile(filePart, filepath.Base(path), data))
}

// All returns the uploaded media nodes in upload order.
func (s *Store) All() []node.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.files.Values()
}

// Get returns an uploaded media node by id.
func (s *Store) Get(id string) (node.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.files.Get(id)
	if !ok {
		return node.Node{}, false
	}

	return n.Clone(), true
}

// Clear forgets every uploaded node.
func (s *Store) Clear() {
	s.mu.Lock()
	s.files.Clear()
	s.mu.Unlock()
}
