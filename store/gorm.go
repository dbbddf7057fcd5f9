package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sphere/models"
)

// Gorm is the MySQL-backed implementation.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// go-sql-driver surfaces MySQL error 1062 as a plain message
	return err != nil && strings.Contains(err.Error(), "Duplicate entry")
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case isDuplicate(err):
		return ErrDuplicate
	default:
		return err
	}
}

func (g *Gorm) CreateProfile(ctx context.Context, p *models.Profile) error {
	return translate(g.db.WithContext(ctx).Create(p).Error)
}

func (g *Gorm) GetProfile(ctx context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := g.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (g *Gorm) GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error) {
	var p models.Profile
	if err := g.db.WithContext(ctx).First(&p, "referral_code = ?", code).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (g *Gorm) ClaimReferralCode(ctx context.Context, userID, code string) (string, error) {
	var persisted string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Profile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&p, "id = ?", userID).Error; err != nil {
			return translate(err)
		}
		if p.ReferralCode != nil && *p.ReferralCode != "" {
			persisted = *p.ReferralCode
			return nil
		}
		if err := tx.Model(&models.Profile{}).Where("id = ?", userID).
			Update("referral_code", code).Error; err != nil {
			return translate(err)
		}
		persisted = code
		return nil
	})
	if err != nil {
		return "", err
	}
	return persisted, nil
}

func (g *Gorm) CreditProfileStats(ctx context.Context, userID string, hashrate *float64, sharesDelta int64, rewardsDelta float64) error {
	updates := map[string]interface{}{
		"total_shares":   gorm.Expr("total_shares + ?", sharesDelta),
		"mining_rewards": gorm.Expr("mining_rewards + ?", rewardsDelta),
	}
	if hashrate != nil {
		updates["hashrate"] = *hashrate
	}
	res := g.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) SetWallet(ctx context.Context, userID, address, signature string) error {
	res := g.db.WithContext(ctx).Model(&models.Profile{}).Where("id = ?", userID).
		Updates(map[string]interface{}{
			"wallet_address":   address,
			"wallet_signature": signature,
			"wallet_verified":  true,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) CreateActiveSession(ctx context.Context, s *models.MiningSession) (*models.MiningSession, bool, error) {
	owner := s.UserID
	s.ActiveOwner = &owner
	s.Status = models.SessionActive
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	err := g.db.WithContext(ctx).Create(s).Error
	if err == nil {
		return s, true, nil
	}
	if !isDuplicate(err) {
		return nil, false, err
	}
	// lost the insert race: the unique active_owner index guarantees the
	// winner's row is the one active session, so return that one
	existing, gerr := g.GetActiveSession(ctx, s.UserID)
	if gerr != nil {
		return nil, false, gerr
	}
	return existing, false, nil
}

func (g *Gorm) GetSession(ctx context.Context, userID, sessionID string) (*models.MiningSession, error) {
	var s models.MiningSession
	if err := g.db.WithContext(ctx).
		First(&s, "id = ? AND user_id = ?", sessionID, userID).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (g *Gorm) GetActiveSession(ctx context.Context, userID string) (*models.MiningSession, error) {
	var s models.MiningSession
	if err := g.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.SessionActive).
		Order("started_at DESC").First(&s).Error; err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (g *Gorm) SaveSessionStats(ctx context.Context, s *models.MiningSession) error {
	res := g.db.WithContext(ctx).Model(&models.MiningSession{}).
		Where("id = ? AND user_id = ?", s.ID, s.UserID).
		Updates(map[string]interface{}{
			"total_hashrate":  s.TotalHashrate,
			"shares_accepted": s.SharesAccepted,
			"shares_rejected": s.SharesRejected,
			"rewards_earned":  s.RewardsEarned,
			"worker_details":  s.WorkerDetails,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) CloseSession(ctx context.Context, userID, sessionID string, endedAt time.Time) (*models.MiningSession, error) {
	res := g.db.WithContext(ctx).Model(&models.MiningSession{}).
		Where("id = ? AND user_id = ? AND status = ?", sessionID, userID, models.SessionActive).
		Updates(map[string]interface{}{
			"status":       models.SessionCompleted,
			"ended_at":     endedAt,
			"active_owner": nil,
		})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return g.GetSession(ctx, userID, sessionID)
}

func (g *Gorm) CreateWorker(ctx context.Context, w *models.MiningWorker) error {
	return translate(g.db.WithContext(ctx).Create(w).Error)
}

func (g *Gorm) GetWorker(ctx context.Context, userID, workerID string) (*models.MiningWorker, error) {
	var w models.MiningWorker
	if err := g.db.WithContext(ctx).
		First(&w, "id = ? AND user_id = ?", workerID, userID).Error; err != nil {
		return nil, translate(err)
	}
	return &w, nil
}

func (g *Gorm) SaveWorker(ctx context.Context, w *models.MiningWorker) error {
	res := g.db.WithContext(ctx).Model(&models.MiningWorker{}).
		Where("id = ? AND user_id = ?", w.ID, w.UserID).
		Updates(map[string]interface{}{
			"name":             w.Name,
			"worker_type":      w.WorkerType,
			"status":           w.Status,
			"hashrate":         w.Hashrate,
			"temperature":      w.Temperature,
			"power_usage":      w.PowerUsage,
			"hardware_details": w.HardwareDetails,
			"session_id":       w.SessionID,
			"last_active":      w.LastActive,
		})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) DeleteWorker(ctx context.Context, userID, workerID string) error {
	res := g.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", workerID, userID).
		Delete(&models.MiningWorker{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (g *Gorm) ListWorkers(ctx context.Context, userID string) ([]models.MiningWorker, error) {
	var out []models.MiningWorker
	if err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (g *Gorm) AttachWorkers(ctx context.Context, userID, sessionID string, workerIDs []string, at time.Time) error {
	if len(workerIDs) == 0 {
		return nil
	}
	return translate(g.db.WithContext(ctx).Model(&models.MiningWorker{}).
		Where("user_id = ? AND id IN ?", userID, workerIDs).
		Updates(map[string]interface{}{
			"session_id":  sessionID,
			"status":      models.WorkerOnline,
			"last_active": at,
		}).Error)
}

func (g *Gorm) DetachSessionWorkers(ctx context.Context, sessionID string) error {
	return translate(g.db.WithContext(ctx).Model(&models.MiningWorker{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"session_id": nil,
			"status":     models.WorkerOffline,
		}).Error)
}

func (g *Gorm) ApplyReferral(ctx context.Context, r *models.Referral) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var referred models.Profile
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&referred, "id = ?", r.ReferredID).Error; err != nil {
			return translate(err)
		}
		if referred.ReferredBy != nil {
			return ErrAlreadyReferred
		}
		if err := tx.Create(r).Error; err != nil {
			return translate(err)
		}
		return translate(tx.Model(&models.Profile{}).Where("id = ?", r.ReferredID).
			Update("referred_by", r.ReferrerID).Error)
	})
}

func (g *Gorm) CountReferrals(ctx context.Context, referrerID string) (int64, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&models.Referral{}).
		Where("referrer_id = ?", referrerID).Count(&n).Error
	return n, translate(err)
}

func (g *Gorm) ListTasks(ctx context.Context) ([]models.Task, error) {
	var out []models.Task
	if err := g.db.WithContext(ctx).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (g *Gorm) SeedTasks(ctx context.Context, tasks []models.Task) error {
	var n int64
	if err := g.db.WithContext(ctx).Model(&models.Task{}).Count(&n).Error; err != nil {
		return translate(err)
	}
	if n > 0 {
		return nil
	}
	return translate(g.db.WithContext(ctx).Create(&tasks).Error)
}

func (g *Gorm) ListUserTasks(ctx context.Context, userID string) ([]models.UserTask, error) {
	var out []models.UserTask
	if err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).Find(&out).Error; err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (g *Gorm) CompleteTask(ctx context.Context, ut *models.UserTask) error {
	var task models.Task
	if err := g.db.WithContext(ctx).First(&task, "id = ?", ut.TaskID).Error; err != nil {
		return translate(err)
	}
	return translate(g.db.WithContext(ctx).Create(ut).Error)
}
