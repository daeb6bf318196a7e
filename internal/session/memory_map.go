package session

import "sync"

type memoryMap struct {
	mu     sync.Mutex
	stores map[string]*Memory
}

func newMemoryMap() *memoryMap {
	return &memoryMap{stores: make(map[string]*Memory)}
}

func (m *memoryMap) get(sid string) Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[sid]
	if !ok {
		s = NewMemory()
		m.stores[sid] = s
	}
	return s
}
