package registry

import (
	"context"
	"crypto/subtle"
	"sync"

	"nura/internal/models"
)

type memoryStore struct {
	mu      sync.RWMutex
	devices map[string]*models.Device
	byCode  map[string]string
}

// NewMemoryStore — in-memory реализация (store.backend=memory и тесты).
func NewMemoryStore() Store {
	return &memoryStore{
		devices: make(map[string]*models.Device),
		byCode:  make(map[string]string),
	}
}

func (s *memoryStore) Create(_ context.Context, d *models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byCode[d.ActivationCode]; ok {
		return ErrDuplicateCode
	}
	if _, ok := s.devices[d.DeviceID]; ok {
		return ErrDuplicateID
	}
	cp := *d
	s.devices[d.DeviceID] = &cp
	s.byCode[d.ActivationCode] = d.DeviceID
	return nil
}

func (s *memoryStore) Get(_ context.Context, deviceID string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memoryStore) FindByCredentials(_ context.Context, deviceID, code string) (*models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[deviceID]
	if !ok || subtle.ConstantTimeCompare([]byte(d.ActivationCode), []byte(code)) != 1 {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *memoryStore) ListConnectedByOwner(_ context.Context, owner string) ([]models.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Device
	for _, d := range s.devices {
		if d.Owner == owner && d.Connected() {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *memoryStore) CompareAndSwap(_ context.Context, next *models.Device, expected uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.devices[next.DeviceID]
	if !ok || cur.Revision != expected {
		return false, nil
	}
	cur.Owner = next.Owner
	cur.Status = next.Status
	cur.LastSeen = next.LastSeen
	cur.Revision = expected + 1
	next.Revision = cur.Revision
	return true, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }
