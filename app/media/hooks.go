package media

import "sync"

// Hook runs after a photo or recording has been fully written.
type Hook func(kind MediaKind, path string)

type Hooks struct {
	mu   sync.RWMutex
	list []Hook
}

func (h *Hooks) Add(hook Hook) {
	h.mu.Lock()
	h.list = append(h.list, hook)
	h.mu.Unlock()
}

func (h *Hooks) Run(kind MediaKind, path string) {
	if h == nil {
		return
	}
	h.mu.RLock()
	list := append([]Hook(nil), h.list...)
	h.mu.RUnlock()

	for _, hook := range list {
		hook(kind, path)
	}
}
