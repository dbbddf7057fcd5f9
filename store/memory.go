package store

import (
	"context"
	"sync"
	"time"

	"sphere/models"
)

// Memory keeps everything in process-local maps. It backs the unit tests and
// the dev mode without a MySQL instance, and mirrors the Gorm implementation's
// semantics including the uniqueness constraints.
type Memory struct {
	mu       sync.Mutex
	profiles map[string]models.Profile
	sessions map[string]models.MiningSession
	workers  map[string]models.MiningWorker
	edges    map[string]models.Referral // key referrer_id|referred_id
	tasks    map[string]models.Task
	done     map[string]models.UserTask // key user_id|task_id
}

func NewMemory() *Memory {
	return &Memory{
		profiles: make(map[string]models.Profile),
		sessions: make(map[string]models.MiningSession),
		workers:  make(map[string]models.MiningWorker),
		edges:    make(map[string]models.Referral),
		tasks:    make(map[string]models.Task),
		done:     make(map[string]models.UserTask),
	}
}

func pairKey(a, b string) string { return a + "|" + b }

func (m *Memory) CreateProfile(_ context.Context, p *models.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[p.ID]; ok {
		return ErrDuplicate
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	m.profiles[p.ID] = *p
	return nil
}

func (m *Memory) GetProfile(_ context.Context, id string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := p
	return &cp, nil
}

func (m *Memory) GetProfileByReferralCode(_ context.Context, code string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.profiles {
		if p.ReferralCode != nil && *p.ReferralCode == code {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ClaimReferralCode(_ context.Context, userID, code string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return "", ErrNotFound
	}
	if p.ReferralCode != nil && *p.ReferralCode != "" {
		return *p.ReferralCode, nil
	}
	for _, other := range m.profiles {
		if other.ID != userID && other.ReferralCode != nil && *other.ReferralCode == code {
			return "", ErrDuplicate
		}
	}
	p.ReferralCode = &code
	m.profiles[userID] = p
	return code, nil
}

func (m *Memory) CreditProfileStats(_ context.Context, userID string, hashrate *float64, sharesDelta int64, rewardsDelta float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	if hashrate != nil {
		p.Hashrate = *hashrate
	}
	p.TotalShares += sharesDelta
	p.MiningRewards += rewardsDelta
	p.UpdatedAt = time.Now()
	m.profiles[userID] = p
	return nil
}

func (m *Memory) SetWallet(_ context.Context, userID, address, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.profiles {
		if other.ID != userID && other.WalletAddress != nil && *other.WalletAddress == address {
			return ErrDuplicate
		}
	}
	p.WalletAddress = &address
	p.WalletSignature = signature
	p.WalletVerified = true
	p.UpdatedAt = time.Now()
	m.profiles[userID] = p
	return nil
}

func (m *Memory) CreateActiveSession(_ context.Context, s *models.MiningSession) (*models.MiningSession, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.UserID == s.UserID && existing.Status == models.SessionActive {
			cp := existing
			return &cp, false, nil
		}
	}
	owner := s.UserID
	s.ActiveOwner = &owner
	s.Status = models.SessionActive
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	m.sessions[s.ID] = *s
	cp := *s
	return &cp, true, nil
}

func (m *Memory) GetSession(_ context.Context, userID, sessionID string) (*models.MiningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (m *Memory) GetActiveSession(_ context.Context, userID string) (*models.MiningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Status == models.SessionActive {
			cp := s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) SaveSessionStats(_ context.Context, s *models.MiningSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok || cur.UserID != s.UserID {
		return ErrNotFound
	}
	cur.TotalHashrate = s.TotalHashrate
	cur.SharesAccepted = s.SharesAccepted
	cur.SharesRejected = s.SharesRejected
	cur.RewardsEarned = s.RewardsEarned
	cur.WorkerDetails = s.WorkerDetails
	cur.UpdatedAt = time.Now()
	m.sessions[s.ID] = cur
	return nil
}

func (m *Memory) CloseSession(_ context.Context, userID, sessionID string, endedAt time.Time) (*models.MiningSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.UserID != userID || s.Status != models.SessionActive {
		return nil, ErrNotFound
	}
	s.Status = models.SessionCompleted
	s.EndedAt = &endedAt
	s.ActiveOwner = nil
	s.UpdatedAt = time.Now()
	m.sessions[sessionID] = s
	cp := s
	return &cp, nil
}

func (m *Memory) CreateWorker(_ context.Context, w *models.MiningWorker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workers[w.ID]; ok {
		return ErrDuplicate
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	m.workers[w.ID] = *w
	return nil
}

func (m *Memory) GetWorker(_ context.Context, userID, workerID string) (*models.MiningWorker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok || w.UserID != userID {
		return nil, ErrNotFound
	}
	cp := w
	return &cp, nil
}

func (m *Memory) SaveWorker(_ context.Context, w *models.MiningWorker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.workers[w.ID]
	if !ok || cur.UserID != w.UserID {
		return ErrNotFound
	}
	w.CreatedAt = cur.CreatedAt
	w.UpdatedAt = time.Now()
	m.workers[w.ID] = *w
	return nil
}

func (m *Memory) DeleteWorker(_ context.Context, userID, workerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[workerID]
	if !ok || w.UserID != userID {
		return ErrNotFound
	}
	delete(m.workers, workerID)
	return nil
}

func (m *Memory) ListWorkers(_ context.Context, userID string) ([]models.MiningWorker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MiningWorker
	for _, w := range m.workers {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *Memory) AttachWorkers(_ context.Context, userID, sessionID string, workerIDs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range workerIDs {
		w, ok := m.workers[id]
		if !ok || w.UserID != userID {
			continue
		}
		w.SessionID = &sessionID
		w.Status = models.WorkerOnline
		w.LastActive = at
		m.workers[id] = w
	}
	return nil
}

func (m *Memory) DetachSessionWorkers(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.workers {
		if w.SessionID != nil && *w.SessionID == sessionID {
			w.SessionID = nil
			w.Status = models.WorkerOffline
			m.workers[id] = w
		}
	}
	return nil
}

func (m *Memory) ApplyReferral(_ context.Context, r *models.Referral) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	referred, ok := m.profiles[r.ReferredID]
	if !ok {
		return ErrNotFound
	}
	if referred.ReferredBy != nil {
		return ErrAlreadyReferred
	}
	if _, ok := m.edges[pairKey(r.ReferrerID, r.ReferredID)]; ok {
		return ErrDuplicate
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.edges[pairKey(r.ReferrerID, r.ReferredID)] = *r
	referrer := r.ReferrerID
	referred.ReferredBy = &referrer
	referred.UpdatedAt = time.Now()
	m.profiles[r.ReferredID] = referred
	return nil
}

func (m *Memory) CountReferrals(_ context.Context, referrerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, e := range m.edges {
		if e.ReferrerID == referrerID {
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListTasks(_ context.Context) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, t := range m.tasks {
		out = append(out, t)
	}
	return out, nil
}

func (m *Memory) SeedTasks(_ context.Context, tasks []models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) > 0 {
		return nil
	}
	for _, t := range tasks {
		m.tasks[t.ID] = t
	}
	return nil
}

func (m *Memory) ListUserTasks(_ context.Context, userID string) ([]models.UserTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserTask
	for _, ut := range m.done {
		if ut.UserID == userID {
			out = append(out, ut)
		}
	}
	return out, nil
}

func (m *Memory) CompleteTask(_ context.Context, ut *models.UserTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[ut.TaskID]; !ok {
		return ErrNotFound
	}
	key := pairKey(ut.UserID, ut.TaskID)
	if _, ok := m.done[key]; ok {
		return ErrDuplicate
	}
	if ut.CompletedAt.IsZero() {
		ut.CompletedAt = time.Now()
	}
	m.done[key] = *ut
	return nil
}
