package models

import (
	"fmt"
	"strings"
	"time"
)

// Status — состояние связи устройства.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
)

// ParseStatus принимает и "внешние" синонимы от репортёров живости (online/offline и т.п.).
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "connected", "online", "running":
		return StatusConnected, nil
	case "disconnected", "offline", "idle":
		return StatusDisconnected, nil
	default:
		return "", fmt.Errorf("unknown device status %q", s)
	}
}

type Device struct {
	DeviceID       string    `gorm:"primaryKey;size:100" json:"device_id"`
	ActivationCode string    `gorm:"uniqueIndex;size:10;not null" json:"activation_code"`
	Owner          string    `gorm:"index;size:100" json:"owner,omitempty"`
	Status         Status    `gorm:"size:20;not null;default:'disconnected'" json:"status"`
	Revision       uint64    `gorm:"not null;default:0" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	LastSeen       time.Time `json:"last_seen"`
}

// Connected — устройство подключено (и, по инварианту, имеет владельца).
func (d *Device) Connected() bool { return d.Status == StatusConnected }

// ClaimOutcome — публичная проекция успешного claim.
type ClaimOutcome struct {
	DeviceID string `json:"device_id"`
	Status   Status `json:"status"`
}

// StatusView — ответ на запрос статуса пользователя. DeviceID пуст, если подключённого устройства нет.
type StatusView struct {
	DeviceID string `json:"device_id,omitempty"`
	Status   Status `json:"status"`
}
