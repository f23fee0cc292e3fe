package logging

import (
	"bytes"
	"testing"

	"github.com/go-kit/log/level"
	"github.com/stretchr/testify/assert"
)

func TestLineFormatIncludesThreadAndMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf)
	logger = WithThread(logger, "listener")

	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}

	err := logger.Log("msg", "listener started")
	require(err == nil, "unexpected error logging")

	line := buf.String()
	assert.Contains(t, line, "[       listener]")
	assert.Contains(t, line, "listener started")
	assert.Contains(t, line, " --- [")
}

func TestRateLimitedLoggerDropsExcess(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf)
	limited := NewRateLimitedLogger(1, level.Error(base))

	for i := 0; i < 50; i++ {
		_ = limited.Log("msg", "noisy error")
	}

	// With a burst of 1 token/sec, far fewer than 50 lines should have
	// been written.
	count := bytes.Count(buf.Bytes(), []byte("noisy error"))
	assert.Less(t, count, 50)
}
