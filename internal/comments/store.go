package comments

import (
	"fmt"
	"slices"
)

// PendingStore holds submitted comments that the remote source has not
// confirmed yet, in insertion order. It is not safe for concurrent use; the
// Controller serializes access.
type PendingStore struct {
	order []string
	items map[string]Comment
}

// NewPendingStore returns an empty store
func NewPendingStore() *PendingStore {
	return &PendingStore{items: make(map[string]Comment)}
}

// Insert appends c. The id must be a pending id not already present.
func (s *PendingStore) Insert(c Comment) error {
	if !IsPendingID(c.ID) {
		return fmt.Errorf("%w: %q is not a pending id", ErrValidation, c.ID)
	}
	if _, exists := s.items[c.ID]; exists {
		return fmt.Errorf("%w: pending id %q already stored", ErrValidation, c.ID)
	}
	c = c.clone()
	c.Pending = true
	s.items[c.ID] = c
	s.order = append(s.order, c.ID)
	return nil
}

// Restore puts back an entry taken out earlier, ahead of the first entry
// stamped after it
func (s *PendingStore) Restore(c Comment) error {
	if !IsPendingID(c.ID) {
		return fmt.Errorf("%w: %q is not a pending id", ErrValidation, c.ID)
	}
	if _, exists := s.items[c.ID]; exists {
		return nil
	}
	c = c.clone()
	c.Pending = true
	s.items[c.ID] = c

	at := len(s.order)
	for i, id := range s.order {
		if s.items[id].CreatedAt.After(c.CreatedAt) {
			at = i
			break
		}
	}
	s.order = slices.Insert(s.order, at, c.ID)
	return nil
}

// Remove deletes the entry with the given id and returns it
func (s *PendingStore) Remove(id string) (Comment, bool) {
	c, ok := s.items[id]
	if !ok {
		return Comment{}, false
	}
	delete(s.items, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return c, true
}

// Get returns a copy of the entry with the given id
func (s *PendingStore) Get(id string) (Comment, bool) {
	c, ok := s.items[id]
	if !ok {
		return Comment{}, false
	}
	return c.clone(), true
}

// List returns copies of all entries in insertion order
func (s *PendingStore) List() []Comment {
	out := make([]Comment, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].clone())
	}
	return out
}

// IDs returns the pending ids in insertion order
func (s *PendingStore) IDs() []string {
	return slices.Clone(s.order)
}

// Len returns the number of pending entries
func (s *PendingStore) Len() int {
	return len(s.order)
}
