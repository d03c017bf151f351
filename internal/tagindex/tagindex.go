// Package tagindex maintains the derived tag list over the node cache and
// repairs dangling parent references while it walks the nodes.
package tagindex

import (
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/text/unicode/norm"

	"github.com/structured-notes/notes-go/internal/node"
)

// Index is the sorted set of unique tags across all cached nodes. It is
// rebuilt from scratch by Recompute and published atomically, so readers
// never observe a half-built list.
type Index struct {
	tags   atomic.Pointer[[]string]
	logger *slog.Logger
}

// New returns an empty index.
func New(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}

	idx := &Index{logger: logger}
	empty := []string{}
	idx.tags.Store(&empty)

	return idx
}

// Tags returns a copy of the current index.
func (idx *Index) Tags() []string {
	return slices.Clone(*idx.tags.Load())
}

// Reset publishes an empty index.
func (idx *Index) Reset() {
	empty := []string{}
	idx.tags.Store(&empty)
}

// Recompute walks every node once. Each non-empty tag token goes into the
// index; each parent reference that does not resolve to a cached node is
// cleared to root in place. The caller must hold whatever lock guards nodes.
// Returns the published tag list.
func (idx *Index) Recompute(nodes *node.Collection[string, node.Node]) []string {
	set := make(map[string]struct{})
	repaired := 0

	for id, n := range nodes.All() {
		for _, tag := range Split(n.Tags) {
			set[tag] = struct{}{}
		}

		if n.ParentID != "" && !nodes.Has(n.ParentID) {
			idx.logger.Debug("clearing dangling parent reference",
				slog.String("node_id", id),
				slog.String("parent_id", n.ParentID),
			)

			n.ParentID = ""
			nodes.Set(id, n)
			repaired++
		}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}

	slices.Sort(tags)
	idx.tags.Store(&tags)

	if repaired > 0 {
		idx.logger.Info("repaired orphaned nodes",
			slog.Int("repaired_count", repaired),
		)
	}

	return slices.Clone(tags)
}

// Split breaks a raw comma-separated tag field into normalized tokens:
// whitespace-trimmed, NFC-normalized, empty tokens dropped. Duplicates
// within the field are kept; the index deduplicates.
func Split(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		tag := norm.NFC.String(strings.TrimSpace(p))
		if tag == "" {
			continue
		}

		out = append(out, tag)
	}

	return out
}

// Has reports whether a raw tag field contains tag after normalization.
func Has(raw, tag string) bool {
	want := norm.NFC.String(strings.TrimSpace(tag))

	return slices.Contains(Split(raw), want)
}
