package pipe

import (
	"io"
	"sync"

	"ffpipe/internal/faults"
	"ffpipe/internal/fileutil"
)

const component = "pipe"

// Stream is one end of a connected channel.
type Stream = io.ReadWriteCloser

// Channel is a named channel that has been created but not yet listened on.
type Channel struct {
	path string

	mu       sync.Mutex
	consumed bool
	ep       *endpoint
}

// Create claims a channel under a fresh random name.
func Create() (*Channel, error) {
	return CreateWithName(fileutil.RandomName(fileutil.DefaultNameLength))
}

// CreateWithName claims the channel addressed by name.
func CreateWithName(name string) (*Channel, error) {
	return CreateAt(PathForName(name))
}

// CreateAt claims the channel at an explicit platform path. A stale node left
// behind by an earlier run is replaced.
func CreateAt(path string) (*Channel, error) {
	ep, err := createEndpoint(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, component, "create", path, err)
	}
	return &Channel{path: path, ep: ep}, nil
}

// PathForName returns the platform path used for a channel name.
func PathForName(name string) string {
	return pathForName(name)
}

// Connect opens the client end of the channel at path.
func Connect(path string) (Stream, error) {
	s, err := dial(path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, component, "connect", path, err)
	}
	return s, nil
}

// ConnectName opens the client end of the channel addressed by name.
func ConnectName(name string) (Stream, error) {
	return Connect(PathForName(name))
}

// Path returns the address to pass to the peer process.
func (c *Channel) Path() string {
	if c == nil {
		return ""
	}
	return c.path
}

// Listen consumes the channel and returns the server end of the stream.
func (c *Channel) Listen() (Stream, error) {
	ep, err := c.take("listen")
	if err != nil {
		return nil, err
	}
	s, err := ep.listen()
	if err != nil {
		return nil, faults.Wrap(faults.ErrIO, component, "listen", c.path, err)
	}
	return s, nil
}

// Close releases a channel that was never listened on. It is a no-op once
// Listen has been called.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.consumed {
		c.mu.Unlock()
		return nil
	}
	c.consumed = true
	ep := c.ep
	c.ep = nil
	c.mu.Unlock()
	if err := ep.close(); err != nil {
		return faults.Wrap(faults.ErrIO, component, "close", c.path, err)
	}
	return nil
}

func (c *Channel) take(op string) (*endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consumed {
		return nil, faults.Wrap(faults.ErrStateViolation, component, op, "channel already consumed", nil)
	}
	c.consumed = true
	ep := c.ep
	c.ep = nil
	return ep, nil
}
