package ledger

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store. It backs local development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Set creates or replaces the record for an identity.
func (s *MemoryStore) Set(userEmail string, pageCredits, pagesUsed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userEmail] = Record{UserEmail: userEmail, PageCredits: pageCredits, PagesUsed: pagesUsed}
}

func (s *MemoryStore) Get(_ context.Context, userEmail string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userEmail]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Consume(_ context.Context, userEmail string, pages int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[userEmail]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	if !rec.Allows(pages) {
		return rec, ErrInsufficientCredit
	}
	rec.PagesUsed += pages
	s.records[userEmail] = rec
	return rec, nil
}
