package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

const (
	SessionActive     = "active"
	SessionCompleted  = "completed"
	SessionTerminated = "terminated"
)

// WorkerDetails is the structured replacement for the old free-form JSON bag.
// Version is bumped whenever a field is added so stale rows stay readable.
type WorkerDetails struct {
	Version    int      `json:"version"`
	IsOffline  bool     `json:"is_offline"`
	WorkerIDs  []string `json:"worker_ids,omitempty"`
	LastUpdate string   `json:"last_update,omitempty"`
}

func (d WorkerDetails) Value() (driver.Value, error) {
	if d.Version == 0 {
		d.Version = 1
	}
	return json.Marshal(d)
}

func (d *WorkerDetails) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = WorkerDetails{Version: 1}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	}
	return errors.New("worker_details: unsupported column type")
}

type MiningSession struct {
	ID             string        `gorm:"primaryKey;size:32" json:"id"`
	UserID         string        `gorm:"size:32;index;not null" json:"user_id"`
	StartedAt      time.Time     `json:"started_at"`
	EndedAt        *time.Time    `json:"ended_at"`
	Status         string        `gorm:"type:enum('active','completed','terminated');default:'active'" json:"status"`
	TotalHashrate  float64       `gorm:"default:0" json:"total_hashrate"`
	SharesAccepted int64         `gorm:"default:0" json:"shares_accepted"`
	SharesRejected int64         `gorm:"default:0" json:"shares_rejected"`
	RewardsEarned  float64       `gorm:"default:0" json:"rewards_earned"`
	WorkerDetails  WorkerDetails `gorm:"type:json" json:"worker_details"`
	// ActiveOwner mirrors UserID while the session is active and is cleared on
	// close. The unique index makes a second concurrent insert for the same
	// user fail, which is how at-most-one-active-session is enforced.
	ActiveOwner *string   `gorm:"size:32;uniqueIndex" json:"-"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

func (MiningSession) TableName() string {
	return "mining_sessions"
}
