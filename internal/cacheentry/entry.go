// Package cacheentry implements the cache entry type: one cached
// request to response binding, its readiness protocol, and the
// monotonic finished/deleted state transitions that let a single
// producer fan a response out to many concurrent readers.
package cacheentry

import (
	"sync"

	"github.com/avdonina/cacheproxy/internal/message"
)

// Entry binds a raw request key to the response chain being filled for
// it. finished and deleted are monotonic 0->1 transitions guarded by
// mu; ready is broadcast on every segment append and on either
// transition. At most one of the two flags is ever set: once either has
// latched, MarkFinished and MarkDeleted are no-ops. Readers parked on
// ready must re-check their predicate on every wake, since wake-ups may
// be spurious.
type Entry struct {
	mu    sync.Mutex
	ready *sync.Cond

	request []byte
	chain   *message.Chain

	finished bool
	deleted  bool
}

// New creates a fresh, unfinished, undeleted entry for request. The
// caller retains ownership of request's backing array only until New
// returns; New copies it.
func New(request []byte) *Entry {
	req := make([]byte, len(request))
	copy(req, request)

	e := &Entry{
		request: req,
		chain:   message.NewChain(),
	}
	e.ready = sync.NewCond(&e.mu)
	return e
}

// Request returns the raw request bytes this entry was created for.
func (e *Entry) Request() []byte {
	return e.request
}

// AppendSegment appends b to the response chain and wakes every waiter
// parked in WaitForChange. It is the caller's responsibility to ensure
// only one goroutine ever calls AppendSegment for a given entry.
func (e *Entry) AppendSegment(b []byte) {
	e.chain.Append(b)

	e.mu.Lock()
	e.ready.Broadcast()
	e.mu.Unlock()
}

// Head returns the current head of the response chain. Safe to call
// without holding the entry's lock; the chain itself is safe for
// concurrent read while a single writer appends.
func (e *Entry) Head() *message.Segment {
	return e.chain.Head()
}

// MarkFinished sets finished=1 and wakes every waiter. A no-op if the
// entry is already finished or deleted.
func (e *Entry) MarkFinished() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.deleted {
		return
	}
	e.finished = true
	e.ready.Broadcast()
}

// MarkDeleted sets deleted=1 and wakes every waiter. A no-op if the
// entry is already finished or deleted.
func (e *Entry) MarkDeleted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.finished || e.deleted {
		return
	}
	e.deleted = true
	e.ready.Broadcast()
}

// Finished reports whether the entry has been fully populated from the
// origin.
func (e *Entry) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// Deleted reports whether the entry has been abandoned or evicted.
func (e *Entry) Deleted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.deleted
}

// WaitForChange blocks until pred(e) holds, re-evaluating pred under
// the entry's mutex on every wake of the ready condition variable. It
// is meant to be called directly with a predicate that reads Terminal
// or the chain's current tail. Finished and Deleted take the mutex
// themselves and must not be called from pred.
func (e *Entry) WaitForChange(pred func(*Entry) bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for !pred(e) {
		e.ready.Wait()
	}
}

// Terminal reports whether the entry has reached a terminal state
// (finished or deleted); once true it never reverts to false. It does
// not take the entry's mutex, so it can be called from a WaitForChange
// predicate, which runs with the mutex held; a concurrent caller outside
// such a predicate is not synchronized with MarkFinished/MarkDeleted.
func (e *Entry) Terminal() bool {
	return e.finished || e.deleted
}
