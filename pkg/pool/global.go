package pool

import (
	"errors"
	"sync"
)

// ErrGlobalInitialized is returned by InitGlobal once the shared pool
// exists, whether built explicitly or lazily by Global.
var ErrGlobalInitialized = errors.New("pool: global pool already initialized")

var (
	globalMu   sync.Mutex
	globalPool *Pool
)

// Global returns the process-wide shared pool, constructing it with default
// configuration on first use. Call ShutdownGlobal during process teardown to
// drain it.
func Global() *Pool {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalPool == nil {
		globalPool = New(Config{Name: "global"})
	}
	return globalPool
}

// InitGlobal constructs the shared pool with explicit configuration. It must
// run before the first Global call; afterwards it fails with
// ErrGlobalInitialized.
func InitGlobal(cfg Config) (*Pool, error) {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalPool != nil {
		return nil, ErrGlobalInitialized
	}
	if cfg.Name == "" {
		cfg.Name = "global"
	}
	globalPool = New(cfg)
	return globalPool, nil
}

// ShutdownGlobal closes the shared pool, draining queued tasks, and clears
// it so a later Global call builds a fresh one. No-op when never built.
func ShutdownGlobal() {
	globalMu.Lock()
	p := globalPool
	globalPool = nil
	globalMu.Unlock()

	if p != nil {
		p.Close()
	}
}
