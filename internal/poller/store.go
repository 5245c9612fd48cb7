package poller

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Snapshot is the latest known state of one router.
type Snapshot struct {
	RouterID   string           `json:"id"`
	Name       string           `json:"name"`
	Address    string           `json:"address"`
	State      string           `json:"state"`
	Interfaces []InterfaceStats `json:"interfaces"`
	UpdatedAt  time.Time        `json:"updated_at"`
	LastError  string           `json:"last_error,omitempty"`
}

// Store keeps one Snapshot per router id.
type Store struct {
	mu    sync.RWMutex
	items map[string]Snapshot
}

func NewStore() *Store {
	return &Store{items: make(map[string]Snapshot)}
}

func (s *Store) Set(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[snap.RouterID] = snap
}

// Update applies fn to the current snapshot of id, creating it if absent.
func (s *Store) Update(id string, fn func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.items[id]
	if !ok {
		snap = Snapshot{RouterID: id}
	}
	fn(&snap)
	s.items[id] = snap
}

func (s *Store) Get(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.items[id]
	return snap, ok
}

// List returns all snapshots ordered by router id.
func (s *Store) List() []Snapshot {
	s.mu.RLock()
	out := make([]Snapshot, 0, len(s.items))
	for _, snap := range s.items {
		out = append(out, snap)
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Snapshot) int {
		return strings.Compare(a.RouterID, b.RouterID)
	})
	return out
}
