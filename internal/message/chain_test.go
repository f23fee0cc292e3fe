package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainAppendAndWalk(t *testing.T) {
	c := NewChain()
	require.Nil(t, c.Head())

	c.Append([]byte("hello "))
	c.Append([]byte("world"))
	c.Append([]byte("!"))

	var got bytes.Buffer
	for seg := c.Head(); seg != nil; seg = seg.Next() {
		got.Write(seg.Bytes())
	}
	assert.Equal(t, "hello world!", got.String())
}

func TestChainAppendCopiesInput(t *testing.T) {
	c := NewChain()
	b := []byte("mutate me")
	c.Append(b)
	b[0] = 'X'

	seg := c.Head()
	require.NotNil(t, seg)
	assert.Equal(t, "mutate me", string(seg.Bytes()))
}

func TestChainEmptyAppend(t *testing.T) {
	c := NewChain()
	c.Append(nil)
	seg := c.Head()
	require.NotNil(t, seg)
	assert.Len(t, seg.Bytes(), 0)
	assert.Nil(t, seg.Next())
}
