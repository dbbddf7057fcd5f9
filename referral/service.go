package referral

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sphere/logger"
	"sphere/models"
	"sphere/mq"
	"sphere/store"
	"sphere/utils"
)

// Rejection reasons reported to the caller when a code cannot be applied.
const (
	ReasonInvalidCode     = "invalid_code"
	ReasonSelfReferral    = "self_referral"
	ReasonAlreadyReferred = "already_referred"
)

// ErrValidation covers malformed arguments rejected before any store access.
var ErrValidation = errors.New("referral: validation")

// Bonus tiers: a flat percentage per referral plus the single highest
// milestone reached. Milestones do not stack.
const bonusPerReferral = 5

var milestones = []struct {
	Count int64
	Bonus int64
}{
	{50, 100},
	{25, 50},
	{10, 25},
	{5, 10},
}

// ComputeBonus returns the total bonus percentage for n referrals.
func ComputeBonus(n int64) int64 {
	if n <= 0 {
		return 0
	}
	total := n * bonusPerReferral
	for _, m := range milestones {
		if n >= m.Count {
			total += m.Bonus
			break
		}
	}
	return total
}

// Service owns referral codes, the referral ledger, and change notifications.
type Service struct {
	store store.Store
	queue mq.Queue

	mu      sync.Mutex
	subs    map[string]map[int]func(mq.ReferralEvent)
	nextSub int
	done    chan struct{}
}

// NewService starts the dispatch loop feeding subscribers from the queue.
// Call Close when done.
func NewService(st store.Store, q mq.Queue) *Service {
	s := &Service{
		store: st,
		queue: q,
		subs:  make(map[string]map[int]func(mq.ReferralEvent)),
		done:  make(chan struct{}),
	}
	go s.dispatch()
	return s
}

func (s *Service) dispatch() {
	ch := s.queue.Subscribe()
	for {
		select {
		case <-s.done:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			s.mu.Lock()
			for _, fn := range s.subs[evt.ReferrerID] {
				go fn(evt)
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the dispatch loop. The queue itself is owned by the caller.
func (s *Service) Close() {
	close(s.done)
}

// Subscribe registers fn for referral events where userID is the referrer and
// returns a cancel func. Cancelling twice is harmless.
func (s *Service) Subscribe(userID string, fn func(mq.ReferralEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	if s.subs[userID] == nil {
		s.subs[userID] = make(map[int]func(mq.ReferralEvent))
	}
	s.subs[userID][id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[userID], id)
		if len(s.subs[userID]) == 0 {
			delete(s.subs, userID)
		}
	}
}

// Code returns userID's referral code, minting and persisting one on first
// use. Repeated calls return the same code.
func (s *Service) Code(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: userId is required", ErrValidation)
	}
	p, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if p.ReferralCode != nil && *p.ReferralCode != "" {
		return *p.ReferralCode, nil
	}

	code := utils.DeriveReferralCode(userID)
	for attempt := 0; ; attempt++ {
		claimed, err := s.store.ClaimReferralCode(ctx, userID, code)
		if err == nil {
			return claimed, nil
		}
		if !errors.Is(err, store.ErrDuplicate) || attempt >= 3 {
			return "", err
		}
		// collision with another user's code, retry with a random one
		code = utils.DeriveReferralCode(utils.NewID())
	}
}

// Count returns how many users userID has referred.
func (s *Service) Count(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return s.store.CountReferrals(ctx, userID)
}

// Summary is the referral dashboard payload.
type Summary struct {
	Code      string `json:"code"`
	Referrals int64  `json:"referrals"`
	BonusPct  int64  `json:"bonus_pct"`
}

// Summarize bundles code, count and bonus in one call.
func (s *Service) Summarize(ctx context.Context, userID string) (*Summary, error) {
	code, err := s.Code(ctx, userID)
	if err != nil {
		return nil, err
	}
	n, err := s.Count(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{Code: code, Referrals: n, BonusPct: ComputeBonus(n)}, nil
}

// Apply links userID to the owner of code. It returns (false, reason, nil)
// for the expected rejections: unknown code, the caller's own code, or a
// caller who is already referred. The link is all-or-nothing.
func (s *Service) Apply(ctx context.Context, userID, code string) (bool, string, error) {
	if userID == "" {
		return false, "", fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if code == "" {
		return false, ReasonInvalidCode, nil
	}

	referrer, err := s.store.GetProfileByReferralCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return false, ReasonInvalidCode, nil
	}
	if err != nil {
		return false, "", err
	}
	if referrer.ID == userID {
		return false, ReasonSelfReferral, nil
	}

	edge := &models.Referral{
		ID:         utils.NewID(),
		ReferrerID: referrer.ID,
		ReferredID: userID,
		CreatedAt:  time.Now(),
	}
	switch err := s.store.ApplyReferral(ctx, edge); {
	case errors.Is(err, store.ErrAlreadyReferred), errors.Is(err, store.ErrDuplicate):
		return false, ReasonAlreadyReferred, nil
	case err != nil:
		return false, "", err
	}

	evt := mq.ReferralEvent{ReferrerID: referrer.ID, ReferredID: userID, CreatedAt: edge.CreatedAt}
	if err := s.queue.Publish(evt); err != nil {
		logger.WithError(err).WithFields(logger.Fields{"referrer_id": referrer.ID}).Warnf("referral event dropped")
	}
	return true, "", nil
}
