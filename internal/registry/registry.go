// Package registry — единственный источник истины об устройствах: существование,
// владелец и статус. Все изменения проходят через CompareAndSwap хранилища.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"nura/internal/logs"
	"nura/internal/models"
)

const (
	MaxDeviceIDLen       = 100
	MaxActivationCodeLen = 10

	maxCASAttempts  = 8
	maxCodeAttempts = 5
)

type Registry struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Registry {
	return &Registry{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Ping — готовность хранилища (для /readyz).
func (r *Registry) Ping(ctx context.Context) error { return r.store.Ping(ctx) }

// Claim привязывает устройство к user и помечает его подключённым.
//
// Устройство ищется строго по паре (deviceID, code). Если оно подключено к другому
// пользователю — ErrOwnershipConflict без каких-либо изменений. Иначе (свободно,
// отключено или уже принадлежит user) — owner=user, status=connected, lastSeen=now.
// Проигрыш CAS означает, что запись изменилась: перечитываем и решаем заново.
func (r *Registry) Claim(ctx context.Context, deviceID, code, user string) (models.ClaimOutcome, error) {
	if strings.TrimSpace(deviceID) == "" || strings.TrimSpace(code) == "" || user == "" {
		return models.ClaimOutcome{}, ErrInvalidInput
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		d, err := r.store.FindByCredentials(ctx, deviceID, code)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				logs.Device(deviceID).WithField("user", user).Info("claim rejected: bad id/code pair")
			}
			return models.ClaimOutcome{}, err
		}

		if d.Connected() && d.Owner != user {
			logs.Device(deviceID).WithFields(logrus.Fields{
				"user":  user,
				"owner": d.Owner,
			}).Warn("claim rejected: ownership conflict")
			return models.ClaimOutcome{}, ErrOwnershipConflict
		}

		prevOwner := d.Owner
		expected := d.Revision
		d.Owner = user
		d.Status = models.StatusConnected
		d.LastSeen = r.now()

		ok, err := r.store.CompareAndSwap(ctx, d, expected)
		if err != nil {
			return models.ClaimOutcome{}, fmt.Errorf("claim %s: %w", deviceID, err)
		}
		if ok {
			logs.Device(deviceID).WithFields(logrus.Fields{
				"user":       user,
				"prev_owner": prevOwner,
				"revision":   d.Revision,
			}).Info("device claimed")
			return models.ClaimOutcome{DeviceID: d.DeviceID, Status: d.Status}, nil
		}
		logs.Device(deviceID).WithField("attempt", attempt+1).Debug("claim lost CAS race, retrying")
	}
	return models.ClaimOutcome{}, ErrContention
}

// StatusForUser возвращает подключённое устройство пользователя. Отсутствие такого
// устройства — обычный ответ {status: disconnected}, не ошибка; ошибка возвращается
// только при сбое хранилища.
//
// Если подключённых устройств несколько, выбирается с самым свежим LastSeen,
// при равенстве — с меньшим DeviceID.
func (r *Registry) StatusForUser(ctx context.Context, user string) (models.StatusView, error) {
	disconnected := models.StatusView{Status: models.StatusDisconnected}
	if user == "" {
		return disconnected, nil
	}

	list, err := r.store.ListConnectedByOwner(ctx, user)
	if err != nil {
		return disconnected, fmt.Errorf("list devices of %s: %w", user, err)
	}
	if len(list) == 0 {
		return disconnected, nil
	}

	sort.Slice(list, func(i, j int) bool {
		if !list[i].LastSeen.Equal(list[j].LastSeen) {
			return list[i].LastSeen.After(list[j].LastSeen)
		}
		return list[i].DeviceID < list[j].DeviceID
	})
	return models.StatusView{DeviceID: list[0].DeviceID, Status: models.StatusConnected}, nil
}

// Provision заводит новое устройство: свежий uuid, без владельца, disconnected.
// Пустой code — сгенерировать.
func (r *Registry) Provision(ctx context.Context, code string) (*models.Device, error) {
	code = strings.TrimSpace(code)
	if len(code) > MaxActivationCodeLen {
		return nil, ErrInvalidInput
	}
	generated := code == ""

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		if generated {
			c, err := NewActivationCode()
			if err != nil {
				return nil, err
			}
			code = c
		}

		now := r.now()
		d := &models.Device{
			DeviceID:       uuid.NewString(),
			ActivationCode: code,
			Status:         models.StatusDisconnected,
			CreatedAt:      now,
			LastSeen:       now,
		}
		err := r.store.Create(ctx, d)
		if err == nil {
			logs.Device(d.DeviceID).WithField("generated_code", generated).Info("device provisioned")
			return d, nil
		}
		if errors.Is(err, ErrDuplicateCode) && !generated {
			return nil, err
		}
		if !errors.Is(err, ErrDuplicateCode) && !errors.Is(err, ErrDuplicateID) {
			return nil, fmt.Errorf("provision: %w", err)
		}
	}
	return nil, ErrDuplicateCode
}

// SetStatus — примитив для репортёра живости: меняет status и lastSeen, владельца не трогает.
// connected для устройства без владельца запрещён (ErrUnowned).
func (r *Registry) SetStatus(ctx context.Context, deviceID string, st models.Status) (*models.Device, error) {
	if st != models.StatusConnected && st != models.StatusDisconnected {
		return nil, ErrInvalidInput
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		d, err := r.store.Get(ctx, deviceID)
		if err != nil {
			return nil, err
		}
		if st == models.StatusConnected && d.Owner == "" {
			return nil, ErrUnowned
		}

		prev := d.Status
		expected := d.Revision
		d.Status = st
		d.LastSeen = r.now()

		ok, err := r.store.CompareAndSwap(ctx, d, expected)
		if err != nil {
			return nil, fmt.Errorf("set status %s: %w", deviceID, err)
		}
		if ok {
			logs.Device(deviceID).WithFields(logrus.Fields{
				"from":  prev,
				"to":    st,
				"owner": d.Owner,
			}).Info("device status changed")
			return d, nil
		}
	}
	return nil, ErrContention
}

func (r *Registry) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	return r.store.Get(ctx, deviceID)
}
