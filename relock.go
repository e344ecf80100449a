package shared

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// reentrantMutex is a mutual-exclusion lock that may be re-acquired by the
// goroutine already holding it. Mutation-notification hooks run while the
// box lock is held and may read the same box, so the plain sync.Mutex would
// self-deadlock there.
type reentrantMutex struct {
	mu    sync.Mutex
	owner atomic.Int64
	depth int
}

func (m *reentrantMutex) Lock() {
	id := goroutineID()
	if m.owner.Load() == id {
		m.depth++
		return
	}
	m.mu.Lock()
	m.owner.Store(id)
	m.depth = 1
}

func (m *reentrantMutex) Unlock() {
	if m.owner.Load() != goroutineID() {
		panic("shared: unlock of re-entrant mutex by non-owner")
	}
	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID parses the current goroutine id from the stack header. The
// runtime offers no stable API for this; the header format has been fixed
// since Go 1.4.
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, goroutinePrefix)
	if i := bytes.IndexByte(buf, ' '); i >= 0 {
		buf = buf[:i]
	}
	id, err := strconv.ParseInt(string(buf), 10, 64)
	if err != nil {
		panic("shared: cannot parse goroutine id: " + err.Error())
	}
	return id
}
