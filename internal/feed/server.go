// Package feed streams node cache events to websocket clients as JSON
// messages, one message per committed mutation.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/structured-notes/notes-go/internal/events"
	"github.com/structured-notes/notes-go/internal/metrics"
)

const writeTimeout = 10 * time.Second

// Source is anything that hands out event subscriptions. *nodecache.Cache
// and *events.Broadcaster satisfy it.
type Source interface {
	Subscribe() chan events.Event
	Unsubscribe(ch chan events.Event)
}

// Server is an http.Handler that upgrades each request to a websocket and
// forwards events until either side goes away.
type Server struct {
	source  Source
	logger  *slog.Logger
	metrics *metrics.Metrics
	origins []string
	clients atomic.Int64
}

// New creates a feed server. originPatterns lists the extra browser origins
// allowed to connect; same-origin and non-browser clients always are.
func New(source Source, logger *slog.Logger, m *metrics.Metrics, originPatterns ...string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		source:  source,
		logger:  logger,
		metrics: m,
		origins: originPatterns,
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	return int(s.clients.Load())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn("feed upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)

		return
	}
	defer conn.CloseNow() //nolint:errcheck // best effort after Close

	ch := s.source.Subscribe()
	defer s.source.Unsubscribe(ch)

	s.metrics.SetFeedClients(int(s.clients.Add(1)))
	defer func() { s.metrics.SetFeedClients(int(s.clients.Add(-1))) }()

	s.logger.Info("feed client connected", slog.String("remote", r.RemoteAddr))

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer closes.
	ctx := conn.CloseRead(r.Context())

	err = s.stream(ctx, conn, ch)

	switch {
	case err == nil:
		conn.Close(websocket.StatusNormalClosure, "")
	case errors.Is(err, context.Canceled):
		conn.Close(websocket.StatusGoingAway, "")
	default:
		s.logger.Debug("feed client write failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("feed client disconnected", slog.String("remote", r.RemoteAddr))
}

// stream forwards events until ctx ends (nil or ctx error) or the
// subscription is closed (nil).
func (s *Server) stream(ctx context.Context, conn *websocket.Conn, ch <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}

			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()

			if err != nil {
				return err
			}
		}
	}
}
