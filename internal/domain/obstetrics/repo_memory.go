package obstetrics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type memoryRecord struct {
	document      []byte
	riskLevel     RiskLevel
	authenticated bool
}

// MemoryStore keeps profiles as encoded documents so every Load returns an
// independent copy, the same as the durable stores.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*memoryRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]*memoryRecord)}
}

func (s *MemoryStore) record(id uuid.UUID) *memoryRecord {
	r, ok := s.records[id]
	if !ok {
		r = &memoryRecord{}
		s.records[id] = r
	}
	return r
}

func (s *MemoryStore) Load(_ context.Context, id uuid.UUID) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok || r.document == nil {
		return nil, ErrProfileNotFound
	}
	var p Profile
	if err := json.Unmarshal(r.document, &p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", id, err)
	}
	return &p, nil
}

func (s *MemoryStore) Save(_ context.Context, p *Profile) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile %s: %w", p.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(p.ID).document = doc
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) List(_ context.Context, filter ProfileFilter, limit, offset int) ([]*ProfileSummary, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*ProfileSummary
	for id, r := range s.records {
		if r.document == nil || !filter.Matches(r.riskLevel) {
			continue
		}
		var p Profile
		if err := json.Unmarshal(r.document, &p); err != nil {
			return nil, 0, fmt.Errorf("decode profile %s: %w", id, err)
		}
		all = append(all, Summarize(&p, r.riskLevel))
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UpdatedAt.Equal(all[j].UpdatedAt) {
			return all[i].UpdatedAt.After(all[j].UpdatedAt)
		}
		return all[i].ID.String() < all[j].ID.String()
	})

	total := len(all)
	if offset >= total {
		return []*ProfileSummary{}, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

func (s *MemoryStore) SaveRiskLevel(_ context.Context, id uuid.UUID, level RiskLevel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(id).riskLevel = level
	return nil
}

func (s *MemoryStore) LoadRiskLevel(_ context.Context, id uuid.UUID) (RiskLevel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok || r.riskLevel == "" {
		return "", ErrProfileNotFound
	}
	return r.riskLevel, nil
}

func (s *MemoryStore) SetAuthenticated(_ context.Context, id uuid.UUID, authenticated bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(id).authenticated = authenticated
	return nil
}

func (s *MemoryStore) IsAuthenticated(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return ok && r.authenticated, nil
}
