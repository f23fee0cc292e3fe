// Package proxy implements the connection handler (C5): the per-client
// state machine that parses a request, probes the cache, fetches from
// the origin on a miss while teeing bytes to the client and into the
// cache, and streams an existing entry on a hit.
package proxy

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/avdonina/cacheproxy/internal/cache"
	"github.com/avdonina/cacheproxy/internal/cacheentry"
	"github.com/avdonina/cacheproxy/internal/config"
	"github.com/avdonina/cacheproxy/internal/httpwire"
	"github.com/avdonina/cacheproxy/internal/message"
)

// Handler holds the shared collaborators a connection handler needs:
// the cache, its own linearizing mutex spanning a cache Get+Add pair,
// and I/O timeouts.
type Handler struct {
	Cache       *cache.Cache
	Logger      log.Logger
	IOTimeout   time.Duration
	BufferSize  int

	// cacheMu linearizes Get-then-Add so two concurrent misses for the
	// same key cannot both create a placeholder; the second miss's Get
	// (taken after the first's Add, because both hold this mutex) must
	// observe the first's placeholder.
	cacheMu sync.Mutex
}

// Handle runs the full state machine for one accepted connection. It
// always closes conn before returning.
func (h *Handler) Handle(conn net.Conn) {
	defer conn.Close()

	connID := uuid.New().String()
	clog := log.With(h.Logger, "conn", connID)

	raw, err := h.readRequest(conn)
	if err != nil {
		level.Debug(clog).Log("msg", "read request failed", "err", err)
		return
	}

	req, err := httpwire.ParseRequest(raw)
	if err != nil {
		level.Debug(clog).Log("msg", "parse request failed", "err", err)
		return
	}

	if req.Scheme == "https" {
		level.Debug(clog).Log("msg", "rejecting https target, no TLS path exists")
		return
	}

	if req.Method != "GET" {
		h.proxyUncached(conn, req, clog)
		return
	}

	h.cacheMu.Lock()
	entry, hit := h.Cache.Get(req.Raw)
	if hit {
		h.cacheMu.Unlock()
		h.streamFromCache(conn, entry)
		return
	}

	entry = cacheentry.New(req.Raw)
	if err := h.Cache.Add(entry); err != nil {
		h.cacheMu.Unlock()
		level.Debug(clog).Log("msg", "cache add failed", "err", err)
		return
	}
	h.cacheMu.Unlock()

	h.fetchAndFill(conn, req, entry, clog)
}

func (h *Handler) readRequest(conn net.Conn) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, h.BufferSize)
	for {
		h.setReadDeadline(conn)
		n, err := conn.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err != nil {
			if buf.Len() > 0 {
				break
			}
			return nil, errors.Wrap(config.ErrNetwork, "reading request")
		}
		if n < len(chunk) {
			break
		}
	}
	if buf.Len() == 0 {
		return nil, errors.Wrap(config.ErrParse, "empty request")
	}
	return buf.Bytes(), nil
}

func (h *Handler) setReadDeadline(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(h.IOTimeout))
}

func (h *Handler) setWriteDeadline(conn net.Conn) {
	_ = conn.SetWriteDeadline(time.Now().Add(h.IOTimeout))
}

// writeFull writes all of b to conn, retrying on short writes until
// the timeout budget for this call is exhausted.
func (h *Handler) writeFull(conn net.Conn, b []byte) error {
	for len(b) > 0 {
		h.setWriteDeadline(conn)
		n, err := conn.Write(b)
		if err != nil {
			return errors.Wrap(config.ErrNetwork, "short write beyond retry budget")
		}
		b = b[n:]
	}
	return nil
}

// proxyUncached handles non-GET methods: no cache interaction, just
// relay the origin's response bytes straight to the client.
func (h *Handler) proxyUncached(conn net.Conn, req httpwire.Request, clog log.Logger) {
	origin, err := h.dialOrigin(req)
	if err != nil {
		level.Debug(clog).Log("msg", "origin connect failed", "err", err)
		return
	}
	defer origin.Close()

	if err := h.writeFull(origin, req.Raw); err != nil {
		level.Debug(clog).Log("msg", "forwarding request failed", "err", err)
		return
	}

	buf := make([]byte, h.BufferSize)
	for {
		h.setReadDeadline(origin)
		n, err := origin.Read(buf)
		if n > 0 {
			if werr := h.writeFull(conn, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (h *Handler) dialOrigin(req httpwire.Request) (net.Conn, error) {
	addr := net.JoinHostPort(req.Host, req.Port)
	conn, err := net.DialTimeout("tcp", addr, h.IOTimeout)
	if err != nil {
		return nil, errors.Wrap(config.ErrNetwork, "dialing origin")
	}
	return conn, nil
}

// fetchAndFill implements the miss path: connect to the origin,
// forward the request, and tee the response to both the client and the
// placeholder entry, finally marking the entry finished or deleted.
func (h *Handler) fetchAndFill(conn net.Conn, req httpwire.Request, entry *cacheentry.Entry, clog log.Logger) {
	abandon := func() {
		entry.MarkDeleted()
		_ = h.Cache.Delete(entry.Request())
	}

	origin, err := h.dialOrigin(req)
	if err != nil {
		level.Debug(clog).Log("msg", "origin connect failed", "err", err)
		abandon()
		return
	}
	defer origin.Close()

	if err := h.writeFull(origin, req.Raw); err != nil {
		level.Debug(clog).Log("msg", "forwarding request failed", "err", err)
		abandon()
		return
	}

	buf := make([]byte, h.BufferSize)
	var bodyReceived int64
	var resp httpwire.Response
	haveHead := false
	status := 0

	for {
		h.setReadDeadline(origin)
		n, rerr := origin.Read(buf)
		if n > 0 {
			chunk := buf[:n]

			if werr := h.writeFull(conn, chunk); werr != nil {
				abandon()
				return
			}
			entry.AppendSegment(chunk)

			if !haveHead {
				parsed, perr := httpwire.ParseResponseHead(chunk)
				if perr != nil {
					level.Debug(clog).Log("msg", "parse response failed", "err", perr)
					abandon()
					return
				}
				resp = parsed
				status = resp.Status
				haveHead = true
				if len(chunk) > resp.HeaderBytes {
					bodyReceived += int64(len(chunk) - resp.HeaderBytes)
				}
				if !resp.HasLength {
					// No Content-Length: treat the origin closing the
					// connection as end-of-body instead of blocking the
					// tee loop forever, and never cache it (no stable
					// length to bound the fill).
					h.drainUntilClose(conn, origin)
					abandon()
					return
				}
			} else {
				bodyReceived += int64(len(chunk))
			}

			if haveHead && resp.HasLength && bodyReceived >= resp.ContentLength {
				break
			}
		}
		if rerr != nil {
			if haveHead && resp.HasLength && bodyReceived >= resp.ContentLength {
				break
			}
			level.Debug(clog).Log("msg", "origin read failed", "err", rerr)
			abandon()
			return
		}
	}

	if status < 400 {
		entry.MarkFinished()
	} else {
		entry.MarkDeleted()
		_ = h.Cache.Delete(entry.Request())
	}
}

// drainUntilClose relays any remaining bytes from origin to conn
// without touching the cache entry, used for the Content-Length-less
// fallback path.
func (h *Handler) drainUntilClose(conn, origin net.Conn) {
	buf := make([]byte, h.BufferSize)
	for {
		h.setReadDeadline(origin)
		n, err := origin.Read(buf)
		if n > 0 {
			if werr := h.writeFull(conn, buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// streamFromCache walks the entry's segment chain, sending each
// not-yet-sent segment to the client. last tracks the last segment
// fully sent (nil until the first send); the next unsent segment is
// last.Next(), or entry.Head() if nothing has been sent yet. The
// entry's internal lock is only held while checking for the next
// segment or waiting on the ready condition, never while writing to
// the socket, so a slow client never blocks the producer or other
// readers.
func (h *Handler) streamFromCache(conn net.Conn, entry *cacheentry.Entry) {
	var last *message.Segment

	nextSegment := func() *message.Segment {
		if last == nil {
			return entry.Head()
		}
		return last.Next()
	}

	for {
		seg := nextSegment()
		for seg != nil {
			if err := h.writeFull(conn, seg.Bytes()); err != nil {
				return
			}
			last = seg
			seg = nextSegment()
		}

		terminal := false
		entry.WaitForChange(func(e *cacheentry.Entry) bool {
			if nextSegment() != nil {
				return true
			}
			if e.Terminal() {
				terminal = true
				return true
			}
			return false
		})
		if terminal && nextSegment() == nil {
			return
		}
	}
}
