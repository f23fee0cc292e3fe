// Package message implements the append-only segment chain used to
// accumulate a streaming origin response while it is being relayed to
// one or more clients.
package message

import "sync/atomic"

// Segment is an immutable chunk of response bytes with a forward link to
// the next segment in the chain. Once published via Chain.Append, a
// Segment's Bytes and next-once-set link are never mutated, which lets
// readers walk a stable tail without taking a lock.
type Segment struct {
	bytes []byte
	next  atomic.Pointer[Segment]
}

// Bytes returns the segment's payload. Safe to call without holding any
// lock once the segment has been observed via Next or Chain.Head.
func (s *Segment) Bytes() []byte {
	return s.bytes
}

// Next returns the following segment, or nil if this is currently the
// tail of the chain.
func (s *Segment) Next() *Segment {
	return s.next.Load()
}

// Chain is an append-only, singly-linked list of Segments. A Chain has
// exactly one writer (the handler streaming an origin response) and any
// number of concurrent readers walking from Head via Next.
type Chain struct {
	head atomic.Pointer[Segment]
	tail atomic.Pointer[Segment]
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Append copies b into a freshly allocated Segment and links it at the
// tail. It is only safe to call Append from a single goroutine per
// Chain; concurrent readers observe the new segment as soon as the
// previous tail's next pointer is published.
func (c *Chain) Append(b []byte) *Segment {
	cp := make([]byte, len(b))
	copy(cp, b)
	seg := &Segment{bytes: cp}

	tail := c.tail.Load()
	if tail == nil {
		c.head.Store(seg)
		c.tail.Store(seg)
		return seg
	}
	tail.next.Store(seg)
	c.tail.Store(seg)
	return seg
}

// Head returns the first segment of the chain, or nil if nothing has
// been appended yet.
func (c *Chain) Head() *Segment {
	return c.head.Load()
}
