package crawler

import "sync"

// VisitedSet records which URLs have been queued during a run.
type VisitedSet interface {
	// Visit marks url as seen and reports whether it was new.
	Visit(url string) (bool, error)
}

// MemoryVisited is an in-process VisitedSet.
type MemoryVisited struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryVisited creates an empty in-memory visited set.
func NewMemoryVisited() *MemoryVisited {
	return &MemoryVisited{seen: make(map[string]struct{})}
}

func (m *MemoryVisited) Visit(url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[url]; ok {
		return false, nil
	}
	m.seen[url] = struct{}{}
	return true, nil
}

// Len returns the number of URLs seen.
func (m *MemoryVisited) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}
