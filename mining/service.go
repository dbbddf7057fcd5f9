package mining

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"sphere/logger"
	"sphere/models"
	"sphere/store"
	"sphere/utils"
)

var (
	// ErrRateLimited distinguishes "retry later" from bad requests.
	ErrRateLimited = errors.New("mining: rate limited")
	// ErrValidation covers missing/malformed arguments, rejected before any
	// store access.
	ErrValidation = errors.New("mining: validation")
)

// Limiter caps per-user action rates; satisfied by middleware.ActionLimiter.
type Limiter interface {
	Allow(ctx context.Context, userID, action string) (bool, time.Duration)
}

const (
	// one-shot yield credited per hashrate unit when an offline session starts
	offlineYieldFactor = 0.01
	// referral bonus multiplier applied to the offline credit
	referredMultiplier = 1.10

	// plausible hashrate range (MH/s) when the caller supplies none
	defaultHashrateMin = 25.0
	defaultHashrateMax = 75.0
)

// StartConfig is the workerData payload accepted by startMining.
type StartConfig struct {
	Hashrate float64  `json:"hashrate"`
	Workers  []string `json:"workers"`
}

// StatsDelta is the workerData payload accepted by updateStats. Hashrate is a
// gauge and replaces the stored value when present; the share and reward
// fields are deltas added to the session counters.
type StatsDelta struct {
	Hashrate       *float64 `json:"hashrate,omitempty"`
	SharesAccepted int64    `json:"shares_accepted"`
	SharesRejected int64    `json:"shares_rejected"`
	Rewards        float64  `json:"rewards"`
	WorkerID       string   `json:"worker_id,omitempty"`
}

// Service owns the mining-session lifecycle.
type Service struct {
	store   store.Store
	limiter Limiter
	rng     *rand.Rand
}

func NewService(st store.Store, limiter Limiter) *Service {
	return &Service{
		store:   st,
		limiter: limiter,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Service) allow(ctx context.Context, userID, action string) error {
	if s.limiter == nil {
		return nil
	}
	if ok, retry := s.limiter.Allow(ctx, userID, action); !ok {
		return fmt.Errorf("%w: retry after %s", ErrRateLimited, retry)
	}
	return nil
}

// Start opens a mining session for userID. Calling it while a session is
// already active returns that session unchanged, so repeated starts never
// produce a second active session. Offline sessions additionally credit the
// profile once, at start, from the hashrate and yield factor.
func (s *Service) Start(ctx context.Context, userID string, cfg StartConfig, isOffline bool) (*models.MiningSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if err := s.allow(ctx, userID, "startMining"); err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	hashrate := cfg.Hashrate
	if hashrate <= 0 {
		hashrate = defaultHashrateMin + s.rng.Float64()*(defaultHashrateMax-defaultHashrateMin)
		hashrate = utils.RoundFloat(hashrate, 2)
	}

	now := time.Now()
	session := &models.MiningSession{
		ID:            utils.NewID(),
		UserID:        userID,
		StartedAt:     now,
		TotalHashrate: hashrate,
		WorkerDetails: models.WorkerDetails{
			Version:    1,
			IsOffline:  isOffline,
			WorkerIDs:  cfg.Workers,
			LastUpdate: now.Format(time.RFC3339),
		},
	}

	created, isNew, err := s.store.CreateActiveSession(ctx, session)
	if err != nil {
		return nil, err
	}
	if !isNew {
		// idempotent start: the existing active session wins, no side effects
		return created, nil
	}

	if len(cfg.Workers) > 0 {
		if err := s.store.AttachWorkers(ctx, userID, created.ID, cfg.Workers, now); err != nil {
			logger.WithError(err).WithFields(logger.Fields{"session_id": created.ID}).Warnf("worker attach failed")
		}
	}

	if isOffline {
		credit := hashrate * offlineYieldFactor
		if profile.ReferredBy != nil {
			credit *= referredMultiplier
		}
		gauge := hashrate
		if err := s.store.CreditProfileStats(ctx, userID, &gauge, 0, utils.RoundFloat(credit, 6)); err != nil {
			// best-effort mirror; the session itself is already durable
			logger.WithError(err).WithFields(logger.Fields{"user_id": userID}).Warnf("offline credit failed")
		}
	}

	return created, nil
}

// Stop completes the caller's session. Sessions that do not exist, belong to
// another user, or are already closed all fail with store.ErrNotFound.
func (s *Service) Stop(ctx context.Context, userID, sessionID string) (*models.MiningSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if err := s.allow(ctx, userID, "stopMining"); err != nil {
		return nil, err
	}

	session, err := s.store.CloseSession(ctx, userID, sessionID, time.Now())
	if err != nil {
		return nil, err
	}

	if err := s.store.DetachSessionWorkers(ctx, sessionID); err != nil {
		logger.WithError(err).WithFields(logger.Fields{"session_id": sessionID}).Warnf("worker detach failed")
	}

	if session.WorkerDetails.IsOffline {
		// the live gauge goes back to zero; accumulated shares/rewards stay
		zero := 0.0
		if err := s.store.CreditProfileStats(ctx, userID, &zero, 0, 0); err != nil {
			logger.WithError(err).WithFields(logger.Fields{"user_id": userID}).Warnf("gauge reset failed")
		}
	}

	return session, nil
}

// UpdateStats applies a delta to the caller's active session: the hashrate
// gauge is replaced, share/reward counters accumulate and never decrease.
// The profile row is mirrored best-effort so profile views track the latest
// active session.
func (s *Service) UpdateStats(ctx context.Context, userID, sessionID string, d StatsDelta) (*models.MiningSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId is required", ErrValidation)
	}
	if err := s.allow(ctx, userID, "updateStats"); err != nil {
		return nil, err
	}

	session, err := s.store.GetSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionActive {
		return nil, store.ErrNotFound
	}

	accepted := maxInt64(d.SharesAccepted, 0)
	rejected := maxInt64(d.SharesRejected, 0)
	rewards := d.Rewards
	if rewards < 0 {
		rewards = 0
	}

	if d.Hashrate != nil {
		hr := *d.Hashrate
		if hr < 0 {
			hr = 0
		}
		session.TotalHashrate = hr
	}
	session.SharesAccepted += accepted
	session.SharesRejected += rejected
	session.RewardsEarned = utils.RoundFloat(session.RewardsEarned+rewards, 6)
	session.WorkerDetails.LastUpdate = time.Now().Format(time.RFC3339)

	if err := s.store.SaveSessionStats(ctx, session); err != nil {
		return nil, err
	}

	gauge := session.TotalHashrate
	if err := s.store.CreditProfileStats(ctx, userID, &gauge, accepted, rewards); err != nil {
		logger.WithError(err).WithFields(logger.Fields{"user_id": userID}).Warnf("profile mirror failed")
	}

	if d.WorkerID != "" {
		s.stampWorker(ctx, userID, sessionID, d.WorkerID, session.TotalHashrate)
	}

	return session, nil
}

func (s *Service) stampWorker(ctx context.Context, userID, sessionID, workerID string, hashrate float64) {
	w, err := s.store.GetWorker(ctx, userID, workerID)
	if err != nil {
		logger.WithError(err).WithFields(logger.Fields{"worker_id": workerID}).Warnf("worker stamp skipped")
		return
	}
	w.Hashrate = hashrate
	w.SessionID = &sessionID
	w.Status = models.WorkerOnline
	w.LastActive = time.Now()
	if err := s.store.SaveWorker(ctx, w); err != nil {
		logger.WithError(err).WithFields(logger.Fields{"worker_id": workerID}).Warnf("worker stamp failed")
	}
}

// ActiveSession returns the caller's active session, store.ErrNotFound if none.
func (s *Service) ActiveSession(ctx context.Context, userID string) (*models.MiningSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return s.store.GetActiveSession(ctx, userID)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
