package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHubRegisterBroadcastUnregister(t *testing.T) {
	hub := NewHub(quietLogger())
	c1 := &Client{hub: hub, send: make(chan []byte, 1)}
	c2 := &Client{hub: hub, send: make(chan []byte, 1)}
	hub.Register(c1)
	hub.Register(c2)
	assert.Equal(t, 2, hub.ClientCount())

	hub.Broadcast([]byte("a"))
	assert.Equal(t, []byte("a"), <-c1.send)
	assert.Equal(t, []byte("a"), <-c2.send)

	// Full buffers drop instead of blocking.
	hub.Broadcast([]byte("b"))
	hub.Broadcast([]byte("c"))
	assert.Equal(t, []byte("b"), <-c1.send)

	hub.Unregister(c1)
	assert.Equal(t, 1, hub.ClientCount())
	_, open := <-c1.send
	assert.False(t, open)

	hub.Unregister(c1)
	assert.Equal(t, 1, hub.ClientCount())
}
