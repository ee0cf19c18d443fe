package registry

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"nura/internal/models"
)

type gormStore struct{ db *gorm.DB }

// NewGormStore — хранилище поверх gorm (postgres | mysql | sqlite).
// db должен быть открыт с TranslateError, см. db.Open.
func NewGormStore(db *gorm.DB) Store { return &gormStore{db: db} }

func (s *gormStore) Create(ctx context.Context, d *models.Device) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Device{}).
			Where("activation_code = ?", d.ActivationCode).
			Count(&n).Error; err != nil {
			return fmt.Errorf("check activation code: %w", err)
		}
		if n > 0 {
			return ErrDuplicateCode
		}
		// гонку между Count и Insert ловит уникальный индекс
		if err := tx.Create(d).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateCode
			}
			return fmt.Errorf("insert device: %w", err)
		}
		return nil
	})
}

func (s *gormStore) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *gormStore) FindByCredentials(ctx context.Context, deviceID, code string) (*models.Device, error) {
	var d models.Device
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND activation_code = ?", deviceID, code).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *gormStore) ListConnectedByOwner(ctx context.Context, owner string) ([]models.Device, error) {
	var out []models.Device
	err := s.db.WithContext(ctx).
		Where("owner = ? AND status = ?", owner, models.StatusConnected).
		Order("last_seen DESC").Order("device_id ASC").
		Find(&out).Error
	return out, err
}

// CompareAndSwap — один условный UPDATE по (device_id, revision): строка меняется
// атомарно, проигравший конкурент получает RowsAffected == 0.
func (s *gormStore) CompareAndSwap(ctx context.Context, next *models.Device, expected uint64) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Device{}).
		Where("device_id = ? AND revision = ?", next.DeviceID, expected).
		Updates(map[string]any{
			"owner":     next.Owner,
			"status":    next.Status,
			"last_seen": next.LastSeen,
			"revision":  gorm.Expr("revision + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	next.Revision = expected + 1
	return true, nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
