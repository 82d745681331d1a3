package status

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Slot is the one-level undo state of a confirmation: the status it had
// before the last change and the status that change set.
type Slot struct {
	Previous string
	Current  string
}

// UndoStore holds undo slots for the serving process only. Slots are lost
// on restart.
type UndoStore interface {
	Put(confirmationID uuid.UUID, slot Slot)
	Peek(confirmationID uuid.UUID) (Slot, bool)
	// Take returns and clears the slot.
	Take(confirmationID uuid.UUID) (Slot, bool)
}

// CacheUndoStore keeps slots in go-cache so abandoned ones expire.
type CacheUndoStore struct {
	mu    sync.Mutex
	slots *cache.Cache
}

func NewCacheUndoStore(ttl time.Duration) *CacheUndoStore {
	return &CacheUndoStore{slots: cache.New(ttl, 2*ttl)}
}

func (s *CacheUndoStore) Put(confirmationID uuid.UUID, slot Slot) {
	s.slots.SetDefault(confirmationID.String(), slot)
}

func (s *CacheUndoStore) Peek(confirmationID uuid.UUID) (Slot, bool) {
	v, ok := s.slots.Get(confirmationID.String())
	if !ok {
		return Slot{}, false
	}
	return v.(Slot), true
}

func (s *CacheUndoStore) Take(confirmationID uuid.UUID) (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := confirmationID.String()
	v, ok := s.slots.Get(key)
	if !ok {
		return Slot{}, false
	}
	s.slots.Delete(key)
	return v.(Slot), true
}
