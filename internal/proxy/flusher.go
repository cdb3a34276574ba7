package proxy

import (
	"bytes"
	"net/http"
	"sync"
	"time"
)

// FlusherConfig controls when buffered upstream bytes reach the client.
type FlusherConfig struct {
	// MaxBufferBytes forces a flush once this much is buffered.
	// Default: 4096 bytes.
	MaxBufferBytes int

	// IdleTimeout flushes a partial event when upstream goes quiet.
	// Default: 200ms.
	IdleTimeout time.Duration
}

// eventFlusher relays a server-sent event stream, flushing the client
// connection at event boundaries (blank line), on size limit or when the
// upstream goes idle.
type eventFlusher struct {
	cfg FlusherConfig
	w   http.ResponseWriter
	rc  *http.ResponseController

	mu      sync.Mutex
	buf     bytes.Buffer
	timer   *time.Timer
	closed  bool
	err     error
	flushes int
}

func newEventFlusher(w http.ResponseWriter, cfg FlusherConfig) *eventFlusher {
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 4096
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 200 * time.Millisecond
	}
	return &eventFlusher{cfg: cfg, w: w, rc: http.NewResponseController(w)}
}

func (f *eventFlusher) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}

	f.buf.Write(p)
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cfg.IdleTimeout, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.closed {
			f.flushLocked(f.buf.Len())
		}
	})

	switch {
	case f.buf.Len() >= f.cfg.MaxBufferBytes:
		f.flushLocked(f.buf.Len())
	default:
		if idx := bytes.LastIndex(f.buf.Bytes(), []byte("\n\n")); idx >= 0 {
			f.flushLocked(idx + 2)
		}
	}
	return len(p), f.err
}

// Close writes whatever is left and stops the idle timer.
func (f *eventFlusher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.flushLocked(f.buf.Len())
	f.closed = true
	return f.err
}

// flushLocked writes the first n buffered bytes and flushes the connection.
func (f *eventFlusher) flushLocked(n int) {
	if n <= 0 || f.err != nil {
		return
	}
	if _, err := f.w.Write(f.buf.Next(n)); err != nil {
		f.err = err
		return
	}
	if err := f.rc.Flush(); err != nil && err != http.ErrNotSupported {
		f.err = err
		return
	}
	f.flushes++
}

// Flushes returns how many times the client connection was flushed.
func (f *eventFlusher) Flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}
