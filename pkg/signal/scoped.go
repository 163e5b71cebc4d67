package signal

import "sync"

// ScopedConnection ties a connection's lifetime to a value. Dispose (or a
// defer of it) severs the connection exactly once; further calls are no-ops.
// It is the mechanism behind "disconnect when the subscriber goes away"
// without weak references.
type ScopedConnection struct {
	once    sync.Once
	dispose func() bool
}

// ConnectScoped registers fn like ConnectWithType and wraps the resulting
// connection so it can be severed through the returned handle.
func ConnectScoped[T any](s *Signal[T], fn func(T), kind ConnectionType) *ScopedConnection {
	id := s.ConnectWithType(fn, kind)
	return &ScopedConnection{
		dispose: func() bool { return s.Disconnect(id) },
	}
}

// Dispose disconnects the underlying connection. It returns true on the
// first call if the connection was still alive.
func (c *ScopedConnection) Dispose() bool {
	ok := false
	c.once.Do(func() { ok = c.dispose() })
	return ok
}
