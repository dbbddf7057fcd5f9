package mining

import (
	"context"
	"errors"
	"testing"

	"sphere/models"
	"sphere/store"
)

func TestWorkerCRUD(t *testing.T) {
	svc, _ := newTestService(t, "alice")
	ctx := context.Background()

	w, err := svc.CreateWorker(ctx, "alice", WorkerInput{Name: "rig-01"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.WorkerType != "gpu" || w.Status != models.WorkerOffline {
		t.Fatalf("defaults not applied: %+v", w)
	}

	hr := 33.0
	w, err = svc.UpdateWorker(ctx, "alice", WorkerInput{ID: w.ID, Status: models.WorkerOnline, Hashrate: &hr})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if w.Status != models.WorkerOnline || w.Hashrate != 33 {
		t.Fatalf("update lost fields: %+v", w)
	}
	if w.Name != "rig-01" {
		t.Fatalf("partial update wiped name: %q", w.Name)
	}

	list, err := svc.ListWorkers(ctx, "alice")
	if err != nil || len(list) != 1 {
		t.Fatalf("list = %v, %v", list, err)
	}

	if err := svc.DeleteWorker(ctx, "alice", w.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.UpdateWorker(ctx, "alice", WorkerInput{ID: w.ID, Name: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("update after delete: err = %v, want ErrNotFound", err)
	}
}

func TestWorkerOwnershipScoped(t *testing.T) {
	svc, _ := newTestService(t, "alice", "mallory")
	ctx := context.Background()

	w, err := svc.CreateWorker(ctx, "alice", WorkerInput{Name: "rig-01"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.UpdateWorker(ctx, "mallory", WorkerInput{ID: w.ID, Name: "stolen"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-user update: err = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteWorker(ctx, "mallory", w.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-user delete: err = %v, want ErrNotFound", err)
	}
	list, _ := svc.ListWorkers(ctx, "mallory")
	if len(list) != 0 {
		t.Fatalf("mallory sees %d workers, want 0", len(list))
	}
}

func TestWorkerValidation(t *testing.T) {
	svc, _ := newTestService(t, "alice")
	ctx := context.Background()

	if _, err := svc.CreateWorker(ctx, "alice", WorkerInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("nameless create: err = %v, want ErrValidation", err)
	}
	if _, err := svc.CreateWorker(ctx, "alice", WorkerInput{Name: "rig", Status: "exploded"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad status: err = %v, want ErrValidation", err)
	}
}
