package client

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"sphere/logger"
	"sphere/mining"
	"sphere/models"
	"sphere/utils"
)

// Upstream is the slice of the dashboard API the syncer talks to.
type Upstream interface {
	Start(ctx context.Context, cfg mining.StartConfig, isOffline bool) (*models.MiningSession, error)
	UpdateStats(ctx context.Context, sessionID string, d mining.StatsDelta) (*models.MiningSession, error)
	Stop(ctx context.Context, sessionID string) (*models.MiningSession, error)
	ActiveSession(ctx context.Context) (*models.MiningSession, error)
}

const (
	defaultInterval = time.Second
	defaultPushProb = 0.1

	// per-tick drift as a fraction of the base hashrate
	walkStep = 0.05
	// reward credited per hashrate unit per tick
	tickYield = 0.00001
)

// Syncer animates a mining session locally: a once-a-second random walk over
// the hashrate plus steadily growing counters, persisted to the cache every
// tick and pushed upstream on a small fraction of ticks.
type Syncer struct {
	up       Upstream
	cache    Cache
	userID   string
	interval time.Duration
	pushProb float64
	rng      *rand.Rand

	mu   sync.Mutex
	snap Snapshot
	base float64

	// counters accrued locally but not yet absorbed by the server; cleared
	// only when a push succeeds so no tick's progress is ever dropped
	pendAccepted int64
	pendRejected int64
	pendReward   float64

	stop chan struct{}
	done chan struct{}
}

type Option func(*Syncer)

// WithInterval overrides the tick interval, mainly for tests.
func WithInterval(d time.Duration) Option {
	return func(s *Syncer) { s.interval = d }
}

// WithPushProbability overrides the per-tick upstream push chance.
func WithPushProbability(p float64) Option {
	return func(s *Syncer) { s.pushProb = p }
}

func NewSyncer(userID string, up Upstream, cache Cache, opts ...Option) *Syncer {
	s := &Syncer{
		up:       up,
		cache:    cache,
		userID:   userID,
		interval: defaultInterval,
		pushProb: defaultPushProb,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mount starts (or re-joins) the upstream session and begins ticking. When
// the cache holds a snapshot for the same session, its counters win over the
// server's so a page reload never shows progress moving backwards.
func (s *Syncer) Mount(ctx context.Context, cfg mining.StartConfig, isOffline bool) error {
	session, err := s.up.Start(ctx, cfg, isOffline)
	if err != nil {
		return err
	}

	snap := Snapshot{
		UserID:         s.userID,
		SessionID:      session.ID,
		Hashrate:       session.TotalHashrate,
		SharesAccepted: session.SharesAccepted,
		SharesRejected: session.SharesRejected,
		Rewards:        session.RewardsEarned,
		UpdatedAt:      time.Now(),
	}
	if cached, err := s.cache.Load(s.userID, session.ID); err == nil {
		if cached.SharesAccepted > snap.SharesAccepted {
			snap.SharesAccepted = cached.SharesAccepted
		}
		if cached.SharesRejected > snap.SharesRejected {
			snap.SharesRejected = cached.SharesRejected
		}
		if cached.Rewards > snap.Rewards {
			snap.Rewards = cached.Rewards
		}
		if cached.Hashrate > 0 {
			snap.Hashrate = cached.Hashrate
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})

	s.mu.Lock()
	s.snap = snap
	s.base = snap.Hashrate
	if s.base <= 0 {
		s.base = 1
	}
	s.pendAccepted = 0
	s.pendRejected = 0
	s.pendReward = 0
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	if err := s.cache.Store(&snap); err != nil {
		logger.WithError(err).Warnf("snapshot persist failed")
	}

	go s.loop(stop, done)
	return nil
}

// loop receives only on the channels handed to it at Mount time, so a
// concurrent Stop can never swap them out from under the running select.
func (s *Syncer) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Syncer) tick() {
	s.mu.Lock()
	// bounded random walk, floored at zero
	drift := (s.rng.Float64()*2 - 1) * s.base * walkStep
	s.snap.Hashrate += drift
	if s.snap.Hashrate < 0 {
		s.snap.Hashrate = 0
	}
	if max := s.base * 1.5; s.snap.Hashrate > max {
		s.snap.Hashrate = max
	}
	s.snap.Hashrate = utils.RoundFloat(s.snap.Hashrate, 2)

	// counters only ever grow
	accepted := int64(s.rng.Intn(3))
	var rejected int64
	if s.rng.Float64() < 0.05 {
		rejected = 1
	}
	reward := s.snap.Hashrate * tickYield
	s.snap.SharesAccepted += accepted
	s.snap.SharesRejected += rejected
	s.snap.Rewards = utils.RoundFloat(s.snap.Rewards+reward, 6)
	s.snap.UpdatedAt = time.Now()
	s.pendAccepted += accepted
	s.pendRejected += rejected
	s.pendReward += reward

	snap := s.snap
	push := s.rng.Float64() < s.pushProb
	s.mu.Unlock()

	if err := s.cache.Store(&snap); err != nil {
		logger.WithError(err).Warnf("snapshot persist failed")
	}

	if push {
		s.push(snap)
	}
}

// push sends everything accrued since the last successful push. The server
// accumulates deltas, so the pending counters clear only once it confirms.
func (s *Syncer) push(snap Snapshot) {
	s.mu.Lock()
	accepted, rejected, reward := s.pendAccepted, s.pendRejected, s.pendReward
	s.mu.Unlock()
	if accepted == 0 && rejected == 0 && reward == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hr := snap.Hashrate
	_, err := s.up.UpdateStats(ctx, snap.SessionID, mining.StatsDelta{
		Hashrate:       &hr,
		SharesAccepted: accepted,
		SharesRejected: rejected,
		Rewards:        reward,
	})
	if err != nil {
		// the next push retries with the still-pending counters
		logger.WithError(err).Debugf("stats push skipped")
		return
	}

	s.mu.Lock()
	s.pendAccepted -= accepted
	s.pendRejected -= rejected
	s.pendReward -= reward
	s.mu.Unlock()
}

// Snapshot returns the current local view.
func (s *Syncer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Refresh bypasses the cache and overwrites the local view with the server's.
func (s *Syncer) Refresh(ctx context.Context) error {
	session, err := s.up.ActiveSession(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.snap.SessionID = session.ID
	s.snap.Hashrate = session.TotalHashrate
	s.snap.SharesAccepted = session.SharesAccepted
	s.snap.SharesRejected = session.SharesRejected
	s.snap.Rewards = session.RewardsEarned
	s.snap.UpdatedAt = time.Now()
	snap := s.snap
	s.mu.Unlock()
	return s.cache.Store(&snap)
}

// Stop tears the session down synchronously: the tick loop halts, unabsorbed
// counters are flushed upstream, the final snapshot is persisted, and the
// upstream session is closed. Stopping an unmounted syncer is a no-op.
func (s *Syncer) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return nil
	}

	close(stop)
	<-done

	s.mu.Lock()
	snap := s.snap
	s.mu.Unlock()

	s.push(snap)
	if err := s.cache.Store(&snap); err != nil {
		logger.WithError(err).Warnf("final snapshot persist failed")
	}
	if _, err := s.up.Stop(ctx, snap.SessionID); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
