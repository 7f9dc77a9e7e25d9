package compliance

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
)

var ErrConsentNotFound = errors.New("consent record not found")

// Store keeps one consent record per normalized phone number. Updates touch
// only the fields they name so concurrent consent and inbound writes do not
// overwrite each other.
type Store interface {
	Get(ctx context.Context, phone string) (*models.ConsentRecord, error)
	SetConsent(ctx context.Context, phone string, optedIn bool, method string, at time.Time) error
	SetLastInbound(ctx context.Context, phone string, at time.Time) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// MemoryStore is a Store for tests and single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.ConsentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.ConsentRecord)}
}

func (s *MemoryStore) Get(_ context.Context, phone string) (*models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[phone]
	if !ok {
		return nil, ErrConsentNotFound
	}

	if record.LastInboundAt != nil {
		at := *record.LastInboundAt
		record.LastInboundAt = &at
	}

	return &record, nil
}

func (s *MemoryStore) SetConsent(_ context.Context, phone string, optedIn bool, method string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[phone]
	record.Phone = phone
	record.OptedIn = optedIn
	record.OptedOut = !optedIn
	record.Method = method
	record.UpdatedAt = at
	s.records[phone] = record

	return nil
}

func (s *MemoryStore) SetLastInbound(_ context.Context, phone string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[phone]
	record.Phone = phone
	record.LastInboundAt = &at
	s.records[phone] = record

	return nil
}

func (s *MemoryStore) HealthCheck(context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
