package source

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/roach88/callrecon/internal/call"
)

// Reconnect backoff bounds.
const (
	DefaultMinBackoff = 250 * time.Millisecond
	DefaultMaxBackoff = 30 * time.Second
)

// maxFrameBytes bounds a single snapshot frame.
const maxFrameBytes = 4 << 20

// WebSocketSource subscribes to a feed that pushes full row snapshots as
// JSON text frames. The latest snapshot is kept in memory and every frame
// signals a change.
//
// The connection is redialled with capped exponential backoff until Close.
type WebSocketSource struct {
	url        string
	minBackoff time.Duration
	maxBackoff time.Duration
	dialOpts   *websocket.DialOptions

	mu        sync.Mutex
	latest    []call.Row
	connected bool

	changes chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
}

// WebSocketOption configures a WebSocketSource.
type WebSocketOption func(*WebSocketSource)

// WithBackoff sets the reconnect backoff bounds.
func WithBackoff(lo, hi time.Duration) WebSocketOption {
	return func(s *WebSocketSource) {
		if lo > 0 {
			s.minBackoff = lo
		}
		if hi >= s.minBackoff {
			s.maxBackoff = hi
		}
	}
}

// WithDialOptions sets websocket dial options (headers, HTTP client).
func WithDialOptions(opts *websocket.DialOptions) WebSocketOption {
	return func(s *WebSocketSource) {
		s.dialOpts = opts
	}
}

// NewWebSocketSource starts subscribing to url.
func NewWebSocketSource(url string, opts ...WebSocketOption) *WebSocketSource {
	ctx, cancel := context.WithCancel(context.Background())
	s := &WebSocketSource{
		url:        url,
		minBackoff: DefaultMinBackoff,
		maxBackoff: DefaultMaxBackoff,
		changes:    make(chan struct{}, 1),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop(ctx)
	return s
}

func (s *WebSocketSource) loop(ctx context.Context) {
	defer close(s.done)

	backoff := s.minBackoff
	for {
		received, err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if received {
			backoff = s.minBackoff
		}
		slog.Warn("feed disconnected, reconnecting",
			"url", s.url,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// session runs one connection until it fails. It reports whether at least
// one snapshot was received.
func (s *WebSocketSource) session(ctx context.Context) (bool, error) {
	conn, _, err := websocket.Dial(ctx, s.url, s.dialOpts)
	if err != nil {
		return false, err
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxFrameBytes)

	s.setConnected(true)
	defer s.setConnected(false)
	slog.Info("feed connected", "url", s.url)

	received := false
	for {
		var frame json.RawMessage
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return received, err
		}

		rows, err := DecodeSnapshot(frame)
		if err != nil {
			slog.Warn("feed frame dropped", "url", s.url, "error", err)
			continue
		}
		received = true

		s.mu.Lock()
		s.latest = rows
		s.mu.Unlock()
		signal(s.changes)
	}
}

func (s *WebSocketSource) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

// Connected reports whether a feed connection is currently open.
func (s *WebSocketSource) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Rows returns a copy of the latest snapshot. Before the first frame
// arrives the view is empty.
func (s *WebSocketSource) Rows(ctx context.Context) ([]call.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case <-s.done:
		return nil, errors.New("websocket source closed")
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call.Row(nil), s.latest...), nil
}

// Changes implements Notifier.
func (s *WebSocketSource) Changes() <-chan struct{} {
	return s.changes
}

// Close stops the subscription and waits for the connection to shut down.
func (s *WebSocketSource) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
