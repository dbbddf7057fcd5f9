package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"sphere/models"
)

func seedProfiles(t *testing.T, m *Memory, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := m.CreateProfile(context.Background(), &models.Profile{ID: id}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestCreateActiveSessionReturnsExisting(t *testing.T) {
	m := NewMemory()
	seedProfiles(t, m, "u1")
	ctx := context.Background()

	first, created, err := m.CreateActiveSession(ctx, &models.MiningSession{ID: "s1", UserID: "u1"})
	if err != nil || !created {
		t.Fatalf("first create = %v %v", created, err)
	}
	if first.Status != models.SessionActive || first.ActiveOwner == nil {
		t.Fatalf("session not marked active: %+v", first)
	}

	second, created, err := m.CreateActiveSession(ctx, &models.MiningSession{ID: "s2", UserID: "u1"})
	if err != nil || created {
		t.Fatalf("second create = %v %v, want existing", created, err)
	}
	if second.ID != "s1" {
		t.Fatalf("got session %s, want s1", second.ID)
	}
}

func TestCloseSessionOnlyOnce(t *testing.T) {
	m := NewMemory()
	seedProfiles(t, m, "u1")
	ctx := context.Background()

	if _, _, err := m.CreateActiveSession(ctx, &models.MiningSession{ID: "s1", UserID: "u1"}); err != nil {
		t.Fatal(err)
	}
	closed, err := m.CloseSession(ctx, "u1", "s1", time.Now())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != models.SessionCompleted || closed.ActiveOwner != nil {
		t.Fatalf("close left session %+v", closed)
	}
	if _, err := m.CloseSession(ctx, "u1", "s1", time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("double close: err = %v, want ErrNotFound", err)
	}

	// closed session frees the slot for a new active one
	if _, created, err := m.CreateActiveSession(ctx, &models.MiningSession{ID: "s2", UserID: "u1"}); err != nil || !created {
		t.Fatalf("new session after close = %v %v", created, err)
	}
}

func TestClaimReferralCode(t *testing.T) {
	m := NewMemory()
	seedProfiles(t, m, "u1", "u2")
	ctx := context.Background()

	code, err := m.ClaimReferralCode(ctx, "u1", "SPHAAAAAAA")
	if err != nil || code != "SPHAAAAAAA" {
		t.Fatalf("claim = %q %v", code, err)
	}
	// second claim keeps the first code regardless of the new candidate
	code, err = m.ClaimReferralCode(ctx, "u1", "SPHBBBBBBB")
	if err != nil || code != "SPHAAAAAAA" {
		t.Fatalf("re-claim = %q %v, want stable code", code, err)
	}
	// another user cannot take the same code
	if _, err := m.ClaimReferralCode(ctx, "u2", "SPHAAAAAAA"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("collision: err = %v, want ErrDuplicate", err)
	}
}

func TestApplyReferralConstraints(t *testing.T) {
	m := NewMemory()
	seedProfiles(t, m, "referrer", "referred", "other")
	ctx := context.Background()

	if err := m.ApplyReferral(ctx, &models.Referral{ID: "r1", ReferrerID: "referrer", ReferredID: "referred"}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	p, _ := m.GetProfile(ctx, "referred")
	if p.ReferredBy == nil || *p.ReferredBy != "referrer" {
		t.Fatalf("referred_by not set: %+v", p.ReferredBy)
	}

	err := m.ApplyReferral(ctx, &models.Referral{ID: "r2", ReferrerID: "other", ReferredID: "referred"})
	if !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("second referrer: err = %v, want ErrAlreadyReferred", err)
	}
	err = m.ApplyReferral(ctx, &models.Referral{ID: "r3", ReferrerID: "referrer", ReferredID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown referred: err = %v, want ErrNotFound", err)
	}

	n, _ := m.CountReferrals(ctx, "referrer")
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestSetWalletUnique(t *testing.T) {
	m := NewMemory()
	seedProfiles(t, m, "u1", "u2")
	ctx := context.Background()

	addr := "0x00000000000000000000000000000000000000aa"
	if err := m.SetWallet(ctx, "u1", addr, "sig"); err != nil {
		t.Fatalf("set wallet: %v", err)
	}
	if err := m.SetWallet(ctx, "u2", addr, "sig"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("reused wallet: err = %v, want ErrDuplicate", err)
	}
	p, _ := m.GetProfile(ctx, "u1")
	if p.WalletAddress == nil || !p.WalletVerified {
		t.Fatalf("wallet not recorded: %+v", p)
	}
}

func TestWorkerAttachDetach(t *testing.T) {
	m := NewMemory()
	seedProfiles(t, m, "u1")
	ctx := context.Background()

	for _, id := range []string{"w1", "w2"} {
		if err := m.CreateWorker(ctx, &models.MiningWorker{ID: id, UserID: "u1", Status: models.WorkerOffline}); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.AttachWorkers(ctx, "u1", "s1", []string{"w1", "w2", "missing"}, time.Now()); err != nil {
		t.Fatalf("attach: %v", err)
	}
	w, _ := m.GetWorker(ctx, "u1", "w1")
	if w.SessionID == nil || *w.SessionID != "s1" || w.Status != models.WorkerOnline {
		t.Fatalf("attach missed w1: %+v", w)
	}

	if err := m.DetachSessionWorkers(ctx, "s1"); err != nil {
		t.Fatalf("detach: %v", err)
	}
	w, _ = m.GetWorker(ctx, "u1", "w2")
	if w.SessionID != nil || w.Status != models.WorkerOffline {
		t.Fatalf("detach missed w2: %+v", w)
	}
}
