package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	WorkerOnline      = "online"
	WorkerOffline     = "offline"
	WorkerMaintenance = "maintenance"
)

type HardwareDetails struct {
	Version int    `json:"version"`
	CPU     string `json:"cpu"`
	GPU     string `json:"gpu"`
	Memory  string `json:"memory"`
	Storage string `json:"storage"`
}

func (d HardwareDetails) Value() (driver.Value, error) {
	if d.Version == 0 {
		d.Version = 1
	}
	return json.Marshal(d)
}

func (d *HardwareDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = HardwareDetails{Version: 1}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	}
	return errors.New("hardware_details: unsupported column type")
}

type MiningWorker struct {
	ID              string          `gorm:"primaryKey;size:32" json:"id"`
	UserID          string          `gorm:"size:32;index;not null" json:"user_id"`
	SessionID       *string         `gorm:"size:32;index" json:"session_id"`
	Name            string          `gorm:"size:100;not null" json:"name"`
	WorkerType      string          `gorm:"size:20;default:'gpu'" json:"worker_type"`
	Status          string          `gorm:"type:enum('online','offline','maintenance');default:'offline'" json:"status"`
	Hashrate        float64         `gorm:"default:0" json:"hashrate"`
	Temperature     float64         `gorm:"default:0" json:"temperature"`
	PowerUsage      float64         `gorm:"default:0" json:"power_usage"`
	HardwareDetails HardwareDetails `gorm:"type:json" json:"hardware_details"`
	LastActive      time.Time       `json:"last_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"-"`
}

func (MiningWorker) TableName() string {
	return "mining_workers"
}
