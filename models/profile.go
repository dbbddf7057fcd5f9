package models

import "time"

type Profile struct {
	ID              string    `gorm:"primaryKey;size:32" json:"id"`
	Username        string    `gorm:"size:100;not null" json:"username"`
	WalletAddress   *string   `gorm:"size:64;uniqueIndex" json:"wallet_address"`
	WalletVerified  bool      `gorm:"default:false" json:"wallet_verified"`
	WalletSignature string    `gorm:"size:255" json:"-"`
	ReferralCode    *string   `gorm:"size:20;uniqueIndex" json:"referral_code"`
	ReferredBy      *string   `gorm:"column:referred_by;size:32" json:"referred_by"`
	Hashrate        float64   `gorm:"default:0" json:"hashrate"`
	TotalShares     int64     `gorm:"default:0" json:"total_shares"`
	MiningRewards   float64   `gorm:"default:0" json:"mining_rewards"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}

func (Profile) TableName() string {
	return "profiles"
}
