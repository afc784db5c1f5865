package media

import (
	"sync"
	"time"

	"github.com/conorfennell/knoldeck/internal/domain"
	"github.com/google/uuid"
)

// URLPrefix is the path handles are served under.
const URLPrefix = "/media/"

// Handle is a retained, addressable media asset. It stays resolvable until
// Release is called, its arena is closed, or a Sweep finds it idle.
type Handle struct {
	Token string
	URL   string
	Asset *domain.MediaAsset

	arena    *Arena
	once     sync.Once
	lastUsed time.Time // guarded by arena.mu
}

// Release drops the handle. Calling it more than once is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.arena.mu.Lock()
		delete(h.arena.handles, h.Token)
		h.arena.mu.Unlock()
	})
}

// Arena owns every handle acquired from it. It is safe for concurrent use.
type Arena struct {
	mu      sync.Mutex
	handles map[string]*Handle
	now     func() time.Time
}

func NewArena() *Arena {
	return &Arena{handles: make(map[string]*Handle), now: time.Now}
}

// Acquire registers asset and returns a handle addressing it.
func (a *Arena) Acquire(asset *domain.MediaAsset) *Handle {
	token := uuid.Must(uuid.NewV7()).String()
	h := &Handle{Token: token, URL: URLPrefix + token, Asset: asset, arena: a}
	a.mu.Lock()
	h.lastUsed = a.now()
	a.handles[token] = h
	a.mu.Unlock()
	return h
}

// Lookup returns the live handle for token and marks it used.
func (a *Arena) Lookup(token string) (*Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.handles[token]
	if ok {
		h.lastUsed = a.now()
	}
	return h, ok
}

// Release drops the handle for token and reports whether it was live.
func (a *Arena) Release(token string) bool {
	h, ok := a.Lookup(token)
	if ok {
		h.Release()
	}
	return ok
}

// Len returns the number of live handles.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

// Close releases every live handle.
func (a *Arena) Close() {
	a.mu.Lock()
	live := make([]*Handle, 0, len(a.handles))
	for _, h := range a.handles {
		live = append(live, h)
	}
	a.mu.Unlock()
	for _, h := range live {
		h.Release()
	}
}

// Sweep releases every handle not acquired or looked up within idle and
// returns how many it released.
func (a *Arena) Sweep(idle time.Duration) int {
	a.mu.Lock()
	cutoff := a.now().Add(-idle)
	var stale []*Handle
	for _, h := range a.handles {
		if !h.lastUsed.After(cutoff) {
			stale = append(stale, h)
		}
	}
	a.mu.Unlock()
	for _, h := range stale {
		h.Release()
	}
	return len(stale)
}

// Scoped acquires a handle for the duration of fn and releases it however fn
// returns, including by panic.
func (a *Arena) Scoped(asset *domain.MediaAsset, fn func(*Handle) error) error {
	h := a.Acquire(asset)
	defer h.Release()
	return fn(h)
}
