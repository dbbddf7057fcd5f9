package store

import (
	"context"
	"errors"
	"time"

	"sphere/models"
)

var (
	// ErrNotFound covers both "row does not exist" and "row not owned by the
	// caller" so handlers cannot leak other users' ids.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a uniqueness constraint would be violated.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrAlreadyReferred is returned by ApplyReferral when the referred
	// profile already carries a referrer.
	ErrAlreadyReferred = errors.New("store: already referred")
)

// Store is the single source of truth all services read and write through.
// Implementations: Memory (tests, dev) and Gorm (MySQL).
type Store interface {
	CreateProfile(ctx context.Context, p *models.Profile) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
	GetProfileByReferralCode(ctx context.Context, code string) (*models.Profile, error)
	// ClaimReferralCode persists code for the profile unless one is already
	// set; the persisted code is returned either way.
	ClaimReferralCode(ctx context.Context, userID, code string) (string, error)
	// CreditProfileStats replaces the hashrate gauge when non-nil and adds
	// the share/reward deltas to the cumulative counters.
	CreditProfileStats(ctx context.Context, userID string, hashrate *float64, sharesDelta int64, rewardsDelta float64) error
	SetWallet(ctx context.Context, userID, address, signature string) error

	// CreateActiveSession inserts s as the user's active session. When the
	// user already has one, the existing session is returned and created is
	// false; no second row is written.
	CreateActiveSession(ctx context.Context, s *models.MiningSession) (session *models.MiningSession, created bool, err error)
	GetSession(ctx context.Context, userID, sessionID string) (*models.MiningSession, error)
	GetActiveSession(ctx context.Context, userID string) (*models.MiningSession, error)
	SaveSessionStats(ctx context.Context, s *models.MiningSession) error
	// CloseSession marks the user's active session completed and stamps
	// ended_at. Closing a session that is not the caller's active one fails
	// with ErrNotFound.
	CloseSession(ctx context.Context, userID, sessionID string, endedAt time.Time) (*models.MiningSession, error)

	CreateWorker(ctx context.Context, w *models.MiningWorker) error
	GetWorker(ctx context.Context, userID, workerID string) (*models.MiningWorker, error)
	SaveWorker(ctx context.Context, w *models.MiningWorker) error
	DeleteWorker(ctx context.Context, userID, workerID string) error
	ListWorkers(ctx context.Context, userID string) ([]models.MiningWorker, error)
	AttachWorkers(ctx context.Context, userID, sessionID string, workerIDs []string, at time.Time) error
	DetachSessionWorkers(ctx context.Context, sessionID string) error

	// ApplyReferral atomically inserts the edge row and sets referred_by on
	// the referred profile; both writes commit or neither does.
	ApplyReferral(ctx context.Context, r *models.Referral) error
	CountReferrals(ctx context.Context, referrerID string) (int64, error)

	ListTasks(ctx context.Context) ([]models.Task, error)
	SeedTasks(ctx context.Context, tasks []models.Task) error
	ListUserTasks(ctx context.Context, userID string) ([]models.UserTask, error)
	// CompleteTask appends the completion record; ErrDuplicate when the
	// (user, task) pair already exists.
	CompleteTask(ctx context.Context, ut *models.UserTask) error
}
