package models

import "time"

const (
	TaskDaily  = "daily"
	TaskWeekly = "weekly"
	TaskSocial = "social"
)

type Task struct {
	ID          string    `gorm:"primaryKey;size:32" json:"id"`
	Title       string    `gorm:"size:100;not null" json:"title"`
	Description string    `gorm:"size:255" json:"description"`
	Type        string    `gorm:"type:enum('daily','weekly','social');default:'daily'" json:"type"`
	Points      int       `gorm:"not null" json:"points"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

type UserTask struct {
	ID          string    `gorm:"primaryKey;size:32" json:"id"`
	UserID      string    `gorm:"size:32;not null;uniqueIndex:idx_user_task" json:"user_id"`
	TaskID      string    `gorm:"size:32;not null;uniqueIndex:idx_user_task" json:"task_id"`
	CompletedAt time.Time `json:"completed_at"`
}
