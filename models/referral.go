package models

import "time"

type Referral struct {
	ID            string    `gorm:"primaryKey;size:32" json:"id"`
	ReferrerID    string    `gorm:"size:32;not null;uniqueIndex:idx_referral_pair" json:"referrer_id"`
	ReferredID    string    `gorm:"size:32;not null;uniqueIndex:idx_referral_pair" json:"referred_id"`
	PointsAwarded bool      `gorm:"default:false" json:"points_awarded"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Referral) TableName() string {
	return "referrals"
}
