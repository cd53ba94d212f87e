package batch

import (
	"sync"

	"batchedit/internal/domain"
)

// ReleaseFunc frees the preview handle identified by key. The Store invokes
// it whenever an item is discarded so no handle outlives its owning item.
type ReleaseFunc func(key string)

// Listener receives a copy of an item after each mutation. The copy is taken
// under the store lock, so a listener never observes a half-updated item.
type Listener func(item domain.WorkItem)

// Store owns the batch and is its single source of truth. All mutation goes
// through Store methods; callers outside the controller only read snapshots.
type Store struct {
	mu        sync.Mutex
	items     []domain.WorkItem
	prompt    string
	release   ReleaseFunc
	listeners []Listener
}

// NewStore creates an empty store. release may be nil when items carry no
// preview handles.
func NewStore(release ReleaseFunc) *Store {
	return &Store{release: release}
}

// Subscribe registers a listener for item mutations. Listeners are invoked
// after the mutation is committed, outside the store lock, in mutation order
// for the single-writer paths used during a run.
func (s *Store) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// ReplaceAll discards the current items, releasing their preview handles,
// and installs the given ordered list with every status forced to pending.
// The caller must ensure no run is active.
func (s *Store) ReplaceAll(items []domain.WorkItem) {
	s.mu.Lock()
	released := s.previewKeysLocked()
	s.items = make([]domain.WorkItem, len(items))
	for i, item := range items {
		item.Status = domain.StatusPending
		item.Result = nil
		item.ErrorMessage = ""
		s.items[i] = item
	}
	s.mu.Unlock()
	s.releaseAll(released)
}

// Clear empties the batch and releases every preview handle.
func (s *Store) Clear() {
	s.mu.Lock()
	released := s.previewKeysLocked()
	s.items = nil
	s.prompt = ""
	s.mu.Unlock()
	s.releaseAll(released)
}

// SetPrompt records the shared edit instruction for the next run.
func (s *Store) SetPrompt(prompt string) {
	s.mu.Lock()
	s.prompt = prompt
	s.mu.Unlock()
}

// Prompt returns the shared edit instruction.
func (s *Store) Prompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompt
}

// SetProcessing transitions the item with the given ID to processing.
func (s *Store) SetProcessing(id string) {
	s.setStatus(id, domain.StatusProcessing, nil, "")
}

// SetCompleted transitions the item to completed and attaches the edited
// image payload.
func (s *Store) SetCompleted(id string, result domain.ImagePayload) {
	s.setStatus(id, domain.StatusCompleted, &result, "")
}

// SetError transitions the item to error and records the failure message.
func (s *Store) SetError(id, message string) {
	s.setStatus(id, domain.StatusError, nil, message)
}

// setStatus applies one transition atomically. Unknown IDs are ignored; the
// controller only passes IDs it read from a snapshot.
func (s *Store) setStatus(id string, status domain.ItemStatus, result *domain.ImagePayload, message string) {
	s.mu.Lock()
	var changed *domain.WorkItem
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		s.items[i].Status = status
		s.items[i].Result = result
		s.items[i].ErrorMessage = message
		copied := s.items[i].Clone()
		changed = &copied
		break
	}
	listeners := s.listeners
	s.mu.Unlock()

	if changed != nil {
		for _, fn := range listeners {
			fn(*changed)
		}
	}
}

// ResetProcessingToPending repairs items left processing when a run ends,
// clearing any partial result or error. It returns the number of repaired
// items.
func (s *Store) ResetProcessingToPending() int {
	s.mu.Lock()
	var repaired []domain.WorkItem
	for i := range s.items {
		if s.items[i].Status != domain.StatusProcessing {
			continue
		}
		s.items[i].Status = domain.StatusPending
		s.items[i].Result = nil
		s.items[i].ErrorMessage = ""
		repaired = append(repaired, s.items[i].Clone())
	}
	listeners := s.listeners
	s.mu.Unlock()

	for _, item := range repaired {
		for _, fn := range listeners {
			fn(item)
		}
	}
	return len(repaired)
}

// ResetToPending resets one completed or error item back to pending so a
// later run reprocesses it. It reports whether the item was reset; pending
// and processing items are left untouched.
func (s *Store) ResetToPending(id string) bool {
	s.mu.Lock()
	var changed *domain.WorkItem
	for i := range s.items {
		if s.items[i].ID != id {
			continue
		}
		if s.items[i].Status != domain.StatusCompleted && s.items[i].Status != domain.StatusError {
			break
		}
		s.items[i].Status = domain.StatusPending
		s.items[i].Result = nil
		s.items[i].ErrorMessage = ""
		copied := s.items[i].Clone()
		changed = &copied
		break
	}
	listeners := s.listeners
	s.mu.Unlock()

	if changed == nil {
		return false
	}
	for _, fn := range listeners {
		fn(*changed)
	}
	return true
}

// Snapshot returns a copy of the items in batch order.
func (s *Store) Snapshot() []domain.WorkItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.WorkItem, len(s.items))
	for i, item := range s.items {
		out[i] = item.Clone()
	}
	return out
}

// Item returns a copy of the item with the given ID.
func (s *Store) Item(id string) (domain.WorkItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			return s.items[i].Clone(), true
		}
	}
	return domain.WorkItem{}, false
}

// Len returns the number of items in the batch.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) previewKeysLocked() []string {
	var keys []string
	for i := range s.items {
		if s.items[i].PreviewKey != "" {
			keys = append(keys, s.items[i].PreviewKey)
		}
	}
	return keys
}

func (s *Store) releaseAll(keys []string) {
	if s.release == nil {
		return
	}
	for _, key := range keys {
		s.release(key)
	}
}
