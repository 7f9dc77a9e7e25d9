// Package leads holds the lead lookup and update collaborator used by the
// engine, the conditions and the providers.
package leads

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
)

var ErrLeadNotFound = errors.New("lead not found")

// Store is the lead collaborator. Implementations return copies.
type Store interface {
	GetLead(ctx context.Context, id string) (*models.Lead, error)
	UpdateLead(ctx context.Context, id string, fields map[string]any) (*models.Lead, error)
	FindByPhone(ctx context.Context, phone string) (*models.Lead, error)
	List(ctx context.Context) ([]*models.Lead, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	leads map[string]*models.Lead
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads: make(map[string]*models.Lead),
		now:   time.Now,
	}
}

// Save inserts or replaces a lead.
func (s *MemoryStore) Save(_ context.Context, lead *models.Lead) error {
	if lead.ID == "" {
		return errors.New("lead id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := lead.Clone()

	now := s.now().UTC()
	if existing, ok := s.leads[lead.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}

	stored.UpdatedAt = now
	s.leads[lead.ID] = stored

	return nil
}

func (s *MemoryStore) GetLead(_ context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}

	return lead.Clone(), nil
}

// UpdateLead merges fields into the lead and returns the result.
func (s *MemoryStore) UpdateLead(_ context.Context, id string, fields map[string]any) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}

	lead.Apply(fields)
	lead.UpdatedAt = s.now().UTC()

	return lead.Clone(), nil
}

// FindByPhone matches on digits only, so formatting differences are ignored.
func (s *MemoryStore) FindByPhone(_ context.Context, phone string) (*models.Lead, error) {
	want := digits(phone)
	if want == "" {
		return nil, ErrLeadNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, lead := range s.leads {
		if digits(lead.Phone) == want {
			return lead.Clone(), nil
		}
	}

	return nil, ErrLeadNotFound
}

// List returns every lead ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Lead, 0, len(s.leads))
	for _, lead := range s.leads {
		out = append(out, lead.Clone())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func digits(s string) string {
	out := make([]byte, 0, len(s))

	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}

	return string(out)
}
