// Package listener implements the accept loop (C6): a TCP listener
// polled with a bounded timeout so shutdown stays responsive, handing
// each accepted connection to the worker pool.
package listener

import (
	"context"
	stderrors "errors"
	"net"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/avdonina/cacheproxy/internal/config"
)

// Config configures the listener's socket and accept-poll behavior.
type Config struct {
	Port           int
	Backlog        int
	AcceptTimeout  time.Duration
}

// Listener wraps a TCP listener with SO_REUSEADDR and a
// deadline-bearing Accept loop standing in for a select-with-timeout
// accept poll.
type Listener struct {
	logger log.Logger
	ln     *net.TCPListener
	submit func(net.Conn)
	accept time.Duration
}

// New binds a TCP listener on cfg.Port with SO_REUSEADDR set via a
// net.ListenConfig Control hook. submit is called once per accepted
// connection; it is expected to hand the connection off to the worker
// pool without blocking the accept loop.
func New(cfg Config, logger log.Logger, submit func(net.Conn)) (*Listener, error) {
	lc := net.ListenConfig{
		Control: setReuseAddr,
	}
	raw, err := lc.Listen(context.Background(), "tcp", ":"+itoa(cfg.Port))
	if err != nil {
		return nil, errors.Wrap(config.ErrSystem, "binding listener socket")
	}
	tcpLn, ok := raw.(*net.TCPListener)
	if !ok {
		raw.Close()
		return nil, errors.Wrap(config.ErrSystem, "expected a TCP listener")
	}

	return &Listener{
		logger: logger,
		ln:     tcpLn,
		submit: submit,
		accept: cfg.AcceptTimeout,
	}, nil
}

// Run accepts connections until ctx is cancelled, submitting each to
// the worker pool. It polls Accept with a bounded deadline so
// cancellation is observed within one AcceptTimeout interval.
func (l *Listener) Run(ctx context.Context) error {
	llog := log.With(l.logger, "thread", "listener")
	level.Info(llog).Log("msg", "listener started")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_ = l.ln.SetDeadline(time.Now().Add(l.accept))
		conn, err := l.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			level.Warn(llog).Log("msg", "accept failed", "err", err)
			continue
		}

		l.submit(conn)
	}
}

// Close closes the underlying listening socket.
func (l *Listener) Close() error {
	return l.ln.Close()
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [12]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
