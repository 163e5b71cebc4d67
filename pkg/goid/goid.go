// Package goid exposes the id of the calling goroutine.
//
// The runtime does not expose goroutine ids through a public API, so the id
// is parsed from the first line of the goroutine's stack trace, which always
// has the form "goroutine N [status]:". The parse touches a small stack
// buffer and is cheap enough to sit on the signal emission path.
package goid

import (
	"runtime"
	"strconv"
)

// Get returns the id of the calling goroutine.
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	return parse(buf[:n])
}

// parse extracts N from a "goroutine N [...]:" stack header.
func parse(b []byte) uint64 {
	const prefix = "goroutine "
	if len(b) < len(prefix) {
		return 0
	}
	b = b[len(prefix):]
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	id, err := strconv.ParseUint(string(b[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
