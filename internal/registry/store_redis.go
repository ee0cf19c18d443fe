package registry

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"nura/internal/models"
)

// Раскладка ключей:
//
//	<prefix>device:<id>          — JSON записи
//	<prefix>device:code:<code>   — id устройства (уникальность кода через SETNX)
//	<prefix>device:owner:<user>  — SET id устройств владельца
type redisStore struct {
	client *redis.Client
	prefix string
}

// redisRecord — у models.Device ревизия скрыта из JSON, здесь она нужна.
type redisRecord struct {
	models.Device
	Revision uint64 `json:"revision"`
}

func encodeRecord(d *models.Device) ([]byte, error) {
	return json.Marshal(redisRecord{Device: *d, Revision: d.Revision})
}

func NewRedisStore(client *redis.Client, prefix string) Store {
	return &redisStore{client: client, prefix: prefix}
}

func (s *redisStore) deviceKey(id string) string { return s.prefix + "device:" + id }
func (s *redisStore) codeKey(code string) string { return s.prefix + "device:code:" + code }
func (s *redisStore) ownerKey(owner string) string { return s.prefix + "device:owner:" + owner }

func (s *redisStore) Create(ctx context.Context, d *models.Device) error {
	data, err := encodeRecord(d)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.codeKey(d.ActivationCode), d.DeviceID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve activation code: %w", err)
	}
	if !ok {
		return ErrDuplicateCode
	}
	ok, err = s.client.SetNX(ctx, s.deviceKey(d.DeviceID), data, 0).Result()
	if err != nil || !ok {
		_ = s.client.Del(ctx, s.codeKey(d.ActivationCode)).Err()
		if err != nil {
			return fmt.Errorf("store device: %w", err)
		}
		return ErrDuplicateID
	}
	return nil
}

// getter — общий знаменатель *redis.Client и *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisStore) load(ctx context.Context, c getter, id string) (*models.Device, error) {
	raw, err := c.Get(ctx, s.deviceKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode device %s: %w", id, err)
	}
	d := rec.Device
	d.Revision = rec.Revision
	return &d, nil
}

func (s *redisStore) Get(ctx context.Context, deviceID string) (*models.Device, error) {
	return s.load(ctx, s.client, deviceID)
}

func (s *redisStore) FindByCredentials(ctx context.Context, deviceID, code string) (*models.Device, error) {
	d, err := s.load(ctx, s.client, deviceID)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(d.ActivationCode), []byte(code)) != 1 {
		return nil, ErrNotFound
	}
	return d, nil
}

func (s *redisStore) ListConnectedByOwner(ctx context.Context, owner string) ([]models.Device, error) {
	ids, err := s.client.SMembers(ctx, s.ownerKey(owner)).Result()
	if err != nil {
		return nil, err
	}
	var out []models.Device
	for _, id := range ids {
		d, err := s.load(ctx, s.client, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		// индекс владельца может отставать от записи — фильтруем по самой записи
		if d.Owner == owner && d.Connected() {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *redisStore) CompareAndSwap(ctx context.Context, next *models.Device, expected uint64) (bool, error) {
	key := s.deviceKey(next.DeviceID)
	swapped := false

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, next.DeviceID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if cur.Revision != expected {
			return nil
		}

		upd := *cur
		upd.Owner = next.Owner
		upd.Status = next.Status
		upd.LastSeen = next.LastSeen
		upd.Revision = expected + 1
		data, err := encodeRecord(&upd)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			if cur.Owner != "" && cur.Owner != upd.Owner {
				p.SRem(ctx, s.ownerKey(cur.Owner), upd.DeviceID)
			}
			if upd.Owner != "" {
				p.SAdd(ctx, s.ownerKey(upd.Owner), upd.DeviceID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		swapped = true
		next.Revision = upd.Revision
		return nil
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return swapped, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
