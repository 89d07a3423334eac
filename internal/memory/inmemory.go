package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Corleone-Yang/Sekai-Take-Home/internal/models"
)

type ownerKey struct {
	session   string
	character string
}

// InMemoryStore keeps memories in process. Callers always get copies.
type InMemoryStore struct {
	mu        sync.RWMutex
	longTerm  map[ownerKey][]models.LongTermMemory
	shortTerm map[ownerKey][]models.ShortTermMemory
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		longTerm:  make(map[ownerKey][]models.LongTermMemory),
		shortTerm: make(map[ownerKey][]models.ShortTermMemory),
	}
}

func (s *InMemoryStore) LongTerm(_ context.Context, sessionID, characterID string) ([]models.LongTermMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.longTerm[ownerKey{sessionID, characterID}]
	return append([]models.LongTermMemory(nil), src...), nil
}

func (s *InMemoryStore) ShortTerm(_ context.Context, sessionID, characterID string) ([]models.ShortTermMemory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.shortTerm[ownerKey{sessionID, characterID}]
	return append([]models.ShortTermMemory(nil), src...), nil
}

func (s *InMemoryStore) AppendShortTerm(_ context.Context, sessionID, characterID string, entry models.ShortTermMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerKey{sessionID, characterID}
	entries := append(s.shortTerm[key], entry)
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TurnNumber < entries[j].TurnNumber })
	s.shortTerm[key] = entries
	return nil
}

func (s *InMemoryStore) ReplaceShortTerm(_ context.Context, sessionID, characterID string, entries []models.ShortTermMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shortTerm[ownerKey{sessionID, characterID}] = append([]models.ShortTermMemory(nil), entries...)
	return nil
}

func (s *InMemoryStore) SeedLongTerm(_ context.Context, sessionID string, entries []models.LongTermMemory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		key := ownerKey{sessionID, e.CharacterID}
		s.longTerm[key] = append(s.longTerm[key], e)
	}
	return nil
}

func (s *InMemoryStore) HasLongTerm(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key, entries := range s.longTerm {
		if key.session == sessionID && len(entries) > 0 {
			return true, nil
		}
	}
	return false, nil
}
