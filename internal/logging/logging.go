// Package logging wires up the proxy's line-oriented log format on top
// of go-kit/log, the same logging library the rest of the dependency
// pack standardizes on (cmd/tempo-federated-querier, pkg/util/log).
//
// The wire format the proxy must emit is fixed:
//
//	YYYY-MM-DD HH:MM:SS.mmm --- [<thread-name>] : <message>
//
// which is not logfmt, so instead of go-kit's default logfmt encoder
// this package supplies a small custom one; go-kit's Logger interface,
// leveled helpers, and With-derived child loggers are kept as-is.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-kit/log"
)

const threadKey = "thread"

// New returns a base logger that writes in the proxy's required line
// format to w. Callers derive per-component loggers with
// log.With(base, threadKey, "listener") etc.
func New(w io.Writer) log.Logger {
	return &lineLogger{w: log.NewSyncWriter(w)}
}

// WithThread returns a child logger tagged with the given thread name,
// matching the thread-name component of the required log line
// (listener, thread-pool-<i>, garbage-collector).
func WithThread(base log.Logger, name string) log.Logger {
	return log.With(base, threadKey, name)
}

type lineLogger struct {
	w io.Writer
}

// Log implements log.Logger. keyvals is interpreted as alternating
// key/value pairs; thread is pulled out to fill the bracketed
// thread-name slot and everything else is rendered space-joined as the
// message: the msg value first, then the remaining pairs as key=value
// in the order supplied.
func (l *lineLogger) Log(keyvals ...interface{}) error {
	thread := "main"
	var parts []string

	for i := 0; i+1 < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		val := keyvals[i+1]
		if key == threadKey {
			thread = fmt.Sprint(val)
			continue
		}
		if key == "msg" {
			parts = append([]string{fmt.Sprint(val)}, parts...)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%v", key, val))
	}

	now := time.Now()
	line := fmt.Sprintf("%s --- [%15s] : %s\n",
		now.Format("2006-01-02 15:04:05.000"),
		thread,
		strings.Join(parts, " "),
	)
	_, err := io.WriteString(l.w, line)
	return err
}
