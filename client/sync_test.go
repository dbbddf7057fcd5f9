package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"sphere/mining"
	"sphere/models"
	"sphere/store"
)

// fakeUpstream records calls and plays a single active session.
type fakeUpstream struct {
	mu      sync.Mutex
	session models.MiningSession
	started int
	updates int
	stopped int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		session: models.MiningSession{
			ID:             "sess-1",
			UserID:         "alice",
			Status:         models.SessionActive,
			TotalHashrate:  50,
			SharesAccepted: 100,
			RewardsEarned:  1.5,
		},
	}
}

func (f *fakeUpstream) Start(_ context.Context, _ mining.StartConfig, _ bool) (*models.MiningSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	cp := f.session
	return &cp, nil
}

func (f *fakeUpstream) UpdateStats(_ context.Context, _ string, d mining.StatsDelta) (*models.MiningSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	f.session.SharesAccepted += d.SharesAccepted
	f.session.SharesRejected += d.SharesRejected
	f.session.RewardsEarned += d.Rewards
	cp := f.session
	return &cp, nil
}

func (f *fakeUpstream) snapshot() models.MiningSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeUpstream) Stop(_ context.Context, _ string) (*models.MiningSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.session.Status = models.SessionCompleted
	cp := f.session
	return &cp, nil
}

func (f *fakeUpstream) ActiveSession(_ context.Context) (*models.MiningSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session.Status != models.SessionActive {
		return nil, store.ErrNotFound
	}
	cp := f.session
	return &cp, nil
}

func (f *fakeUpstream) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.updates, f.stopped
}

func TestMountPrefersCachedCounters(t *testing.T) {
	up := newFakeUpstream()
	cache := NewMemoryCache()
	// a previous run got further than the server's view
	_ = cache.Store(&Snapshot{UserID: "alice", SessionID: "sess-1", Hashrate: 55, SharesAccepted: 140, Rewards: 2.0})

	s := NewSyncer("alice", up, cache, WithInterval(time.Hour))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	if snap.SharesAccepted != 140 || snap.Rewards != 2.0 || snap.Hashrate != 55 {
		t.Fatalf("cached counters lost: %+v", snap)
	}
}

func TestMountIgnoresCacheForOtherSession(t *testing.T) {
	up := newFakeUpstream()
	cache := NewMemoryCache()
	_ = cache.Store(&Snapshot{UserID: "alice", SessionID: "old-sess", SharesAccepted: 9999})

	s := NewSyncer("alice", up, cache, WithInterval(time.Hour))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer s.Stop(context.Background())

	if snap := s.Snapshot(); snap.SharesAccepted != 100 {
		t.Fatalf("stale cache leaked in: %+v", snap)
	}
}

func TestTicksKeepCountersMonotonic(t *testing.T) {
	up := newFakeUpstream()
	s := NewSyncer("alice", up, NewMemoryCache(), WithInterval(time.Hour), WithPushProbability(0))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer s.Stop(context.Background())

	prev := s.Snapshot()
	for i := 0; i < 200; i++ {
		s.tick()
		cur := s.Snapshot()
		if cur.SharesAccepted < prev.SharesAccepted || cur.Rewards < prev.Rewards {
			t.Fatalf("counters regressed at tick %d: %+v -> %+v", i, prev, cur)
		}
		if cur.Hashrate < 0 {
			t.Fatalf("hashrate went negative: %v", cur.Hashrate)
		}
		prev = cur
	}
}

func TestEveryTickPushesWhenProbabilityIsOne(t *testing.T) {
	up := newFakeUpstream()
	s := NewSyncer("alice", up, NewMemoryCache(), WithInterval(time.Hour), WithPushProbability(1))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer s.Stop(context.Background())

	for i := 0; i < 5; i++ {
		s.tick()
	}
	if _, updates, _ := up.counts(); updates != 5 {
		t.Fatalf("updates = %d, want 5", updates)
	}
}

func TestSnapshotSurvivesRemount(t *testing.T) {
	up := newFakeUpstream()
	cache := NewMemoryCache()

	s := NewSyncer("alice", up, cache, WithInterval(time.Hour), WithPushProbability(0))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	for i := 0; i < 50; i++ {
		s.tick()
	}
	before := s.Snapshot()

	// simulate a reload: fresh syncer, same cache, same active session
	s2 := NewSyncer("alice", up, cache, WithInterval(time.Hour))
	if err := s2.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("remount: %v", err)
	}
	defer s2.Stop(context.Background())

	after := s2.Snapshot()
	if after.SharesAccepted < before.SharesAccepted || after.Rewards < before.Rewards {
		t.Fatalf("reload regressed: %+v -> %+v", before, after)
	}
	_ = s.Stop(context.Background())
}

func TestStopImmediatelyAfterMount(t *testing.T) {
	up := newFakeUpstream()
	s := NewSyncer("alice", up, NewMemoryCache(), WithInterval(time.Millisecond))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}

	// Stop right on the heels of Mount must still halt the loop and return
	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop(context.Background()) }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return, tick loop still running")
	}
	if _, _, n := up.counts(); n != 1 {
		t.Fatalf("stopped = %d, want 1", n)
	}
}

func TestServerAbsorbsAllCountersDespitePushSkips(t *testing.T) {
	up := newFakeUpstream()
	s := NewSyncer("alice", up, NewMemoryCache(), WithInterval(time.Hour), WithPushProbability(0.5))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	for i := 0; i < 500; i++ {
		s.tick()
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	local := s.Snapshot()
	server := up.snapshot()
	if server.SharesAccepted != local.SharesAccepted {
		t.Fatalf("server shares = %d, local = %d; ticks skipped by pushes were never absorbed",
			server.SharesAccepted, local.SharesAccepted)
	}
	if server.SharesRejected != local.SharesRejected {
		t.Fatalf("server rejected = %d, local = %d", server.SharesRejected, local.SharesRejected)
	}
}

func TestStopIsSynchronousAndIdempotent(t *testing.T) {
	up := newFakeUpstream()
	s := NewSyncer("alice", up, NewMemoryCache(), WithInterval(5*time.Millisecond), WithPushProbability(0))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_, _, stopped := up.counts()
	if stopped != 1 {
		t.Fatalf("stopped = %d, want 1", stopped)
	}

	snap := s.Snapshot()
	time.Sleep(20 * time.Millisecond)
	if got := s.Snapshot(); got.SharesAccepted != snap.SharesAccepted {
		t.Fatal("ticks continued after stop")
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if _, _, stopped := up.counts(); stopped != 1 {
		t.Fatalf("second stop reached upstream: %d", stopped)
	}
}

func TestRefreshOverwritesLocalView(t *testing.T) {
	up := newFakeUpstream()
	s := NewSyncer("alice", up, NewMemoryCache(), WithInterval(time.Hour), WithPushProbability(0))
	if err := s.Mount(context.Background(), mining.StartConfig{}, false); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer s.Stop(context.Background())

	for i := 0; i < 20; i++ {
		s.tick()
	}
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	snap := s.Snapshot()
	if snap.SharesAccepted != 100 || snap.Hashrate != 50 {
		t.Fatalf("refresh kept local drift: %+v", snap)
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	cache, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	want := &Snapshot{UserID: "alice", SessionID: "sess-1", Hashrate: 42.5, SharesAccepted: 7, Rewards: 0.1, UpdatedAt: time.Now()}
	if err := cache.Store(want); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := cache.Load("alice", "sess-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.SharesAccepted != 7 || got.Hashrate != 42.5 {
		t.Fatalf("round trip lost data: %+v", got)
	}
	if _, err := cache.Load("alice", "other"); err != ErrCacheMiss {
		t.Fatalf("miss = %v, want ErrCacheMiss", err)
	}
}
