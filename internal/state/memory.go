package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/digital-iq/llm-report/pkg/models"
)

// MemoryStore keeps histories in process memory as encoded blobs, the same
// whole-value shape the SQL store persists.
type MemoryStore struct {
	locks *keyedMutex

	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks: newKeyedMutex(),
		blobs: make(map[string][]byte),
	}
}

// Append adds rec to identity's history.
func (s *MemoryStore) Append(ctx context.Context, identity string, rec models.RunRecord) error {
	if err := checkIdentity(identity); err != nil {
		return err
	}
	unlock := s.locks.Lock(identity)
	defer unlock()

	records, err := decodeRecords(s.load(identity))
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	blob, err := encodeRecords(append(records, rec))
	if err != nil {
		return err
	}
	s.store(identity, blob)
	return nil
}

// List returns identity's history.
func (s *MemoryStore) List(ctx context.Context, identity string) ([]models.RunRecord, error) {
	if err := checkIdentity(identity); err != nil {
		return nil, err
	}
	return decodeRecords(s.load(identity))
}

// Clear empties identity's history.
func (s *MemoryStore) Clear(ctx context.Context, identity string) error {
	if err := checkIdentity(identity); err != nil {
		return err
	}
	unlock := s.locks.Lock(identity)
	defer unlock()

	s.store(identity, []byte("[]"))
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) load(identity string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blobs[identity]
}

func (s *MemoryStore) store(identity string, blob []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[identity] = blob
}

func decodeRecords(blob []byte) ([]models.RunRecord, error) {
	records := []models.RunRecord{}
	if len(blob) == 0 {
		return records, nil
	}
	if err := json.Unmarshal(blob, &records); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	if records == nil {
		records = []models.RunRecord{}
	}
	return records, nil
}

func encodeRecords(records []models.RunRecord) ([]byte, error) {
	if records == nil {
		records = []models.RunRecord{}
	}
	blob, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return blob, nil
}

var _ HistoryStore = (*MemoryStore)(nil)
