// Package source reads snapshots of the live call-history view.
//
// A Source returns the rows currently rendered by the view. Sources that
// can push change notifications also implement Notifier; the monitor
// treats a notification as a hint to read Rows again, never as data.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/roach88/callrecon/internal/call"
)

// ErrInvalidDSN is returned by Open for an unsupported source DSN.
var ErrInvalidDSN = errors.New("invalid source DSN")

// Source returns the rows currently shown by the view.
type Source interface {
	Rows(ctx context.Context) ([]call.Row, error)
	Close() error
}

// Notifier is implemented by sources that signal content changes.
// The channel is coalescing: one pending signal stands for any number of
// changes since the last read.
type Notifier interface {
	Changes() <-chan struct{}
}

// Open creates a source for dsn:
//
//	ws://host/feed, wss://host/feed  WebSocketSource
//	file:///path/rows.json           FileSource
//	/path/rows.json                  FileSource
func Open(dsn string, fileOpts ...FileOption) (Source, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDSN)
	}

	if !strings.Contains(dsn, "://") {
		return openFile(dsn, fileOpts)
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}
	switch u.Scheme {
	case "ws", "wss":
		return NewWebSocketSource(dsn), nil
	case "file":
		path := u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = u.Host + path
		}
		if path == "" {
			return nil, fmt.Errorf("%w: missing path in %q", ErrInvalidDSN, dsn)
		}
		return openFile(path, fileOpts)
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, u.Scheme)
	}
}

func openFile(path string, opts []FileOption) (Source, error) {
	s, err := NewFileSource(path, opts...)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// signal performs a non-blocking send on a size-1 channel.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
