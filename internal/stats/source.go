package stats

import "sync/atomic"

// StreamSource reports the activity of the media server.
type StreamSource interface {
	// Streams returns the number of active streams.
	Streams() int
	// Clients returns the number of connected clients.
	Clients() int
}

// NopSource is used when the agent has no access to the media server counters.
type NopSource struct{}

func (NopSource) Streams() int { return 0 }

func (NopSource) Clients() int { return 0 }

// Counters is a StreamSource updated by the host process. It is safe for concurrent use.
type Counters struct {
	streams atomic.Int64
	clients atomic.Int64
}

func (c *Counters) SetStreams(n int) {
	c.streams.Store(int64(n))
}

func (c *Counters) SetClients(n int) {
	c.clients.Store(int64(n))
}

// AddStreams adds delta to the number of streams. delta can be negative.
func (c *Counters) AddStreams(delta int) {
	c.streams.Add(int64(delta))
}

func (c *Counters) AddClients(delta int) {
	c.clients.Add(int64(delta))
}

func (c *Counters) Streams() int {
	return int(c.streams.Load())
}

func (c *Counters) Clients() int {
	return int(c.clients.Load())
}
