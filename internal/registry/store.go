package registry

import (
	"context"

	"nura/internal/models"
)

// Store — хранилище записей устройств. Все мутации после Create идут только через
// CompareAndSwap, поэтому проверка-и-запись в реестре атомарна на уровне одной записи.
type Store interface {
	// Create сохраняет новую запись. ErrDuplicateCode — код уже занят.
	Create(ctx context.Context, d *models.Device) error
	// Get возвращает запись по id или ErrNotFound.
	Get(ctx context.Context, deviceID string) (*models.Device, error)
	// FindByCredentials ищет по паре (id, code); совпадение только id не считается.
	FindByCredentials(ctx context.Context, deviceID, code string) (*models.Device, error)
	// ListConnectedByOwner — все подключённые устройства владельца.
	ListConnectedByOwner(ctx context.Context, owner string) ([]models.Device, error)
	// CompareAndSwap записывает Owner/Status/LastSeen из next, если ревизия в хранилище
	// равна expected. При успехе ревизия становится expected+1 (и next.Revision тоже).
	CompareAndSwap(ctx context.Context, next *models.Device, expected uint64) (bool, error)
	Ping(ctx context.Context) error
}
