package mining

import (
	"context"
	"fmt"
	"time"

	"sphere/models"
	"sphere/utils"
)

// WorkerInput is the workerData payload for worker create/update actions.
// Pointer fields are only applied when present so partial updates work.
type WorkerInput struct {
	ID         string                  `json:"id,omitempty"`
	Name       string                  `json:"name" validate:"nameok"`
	WorkerType string                  `json:"worker_type,omitempty"`
	Status     string                  `json:"status,omitempty"`
	Hashrate   *float64                `json:"hashrate,omitempty"`
	Hardware   *models.HardwareDetails `json:"hardware,omitempty"`
}

// CreateWorker registers a rig under userID's account.
func (s *Service) CreateWorker(ctx context.Context, userID string, in WorkerInput) (*models.MiningWorker, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: worker name is required", ErrValidation)
	}
	if in.Status != "" && !validWorkerStatus(in.Status) {
		return nil, fmt.Errorf("%w: unknown worker status %q", ErrValidation, in.Status)
	}

	w := &models.MiningWorker{
		ID:         utils.NewID(),
		UserID:     userID,
		Name:       in.Name,
		WorkerType: in.WorkerType,
		Status:     in.Status,
		LastActive: time.Now(),
		CreatedAt:  time.Now(),
	}
	if w.WorkerType == "" {
		w.WorkerType = "gpu"
	}
	if w.Status == "" {
		w.Status = models.WorkerOffline
	}
	if in.Hashrate != nil {
		w.Hashrate = *in.Hashrate
	}
	if in.Hardware != nil {
		w.HardwareDetails = *in.Hardware
		if w.HardwareDetails.Version == 0 {
			w.HardwareDetails.Version = 1
		}
	}

	if err := s.store.CreateWorker(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateWorker applies a partial update to a worker the caller owns.
func (s *Service) UpdateWorker(ctx context.Context, userID string, in WorkerInput) (*models.MiningWorker, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if in.ID == "" {
		return nil, fmt.Errorf("%w: worker id is required", ErrValidation)
	}
	if in.Status != "" && !validWorkerStatus(in.Status) {
		return nil, fmt.Errorf("%w: unknown worker status %q", ErrValidation, in.Status)
	}

	w, err := s.store.GetWorker(ctx, userID, in.ID)
	if err != nil {
		return nil, err
	}
	if in.Name != "" {
		w.Name = in.Name
	}
	if in.WorkerType != "" {
		w.WorkerType = in.WorkerType
	}
	if in.Status != "" {
		w.Status = in.Status
	}
	if in.Hashrate != nil {
		w.Hashrate = *in.Hashrate
	}
	if in.Hardware != nil {
		w.HardwareDetails = *in.Hardware
	}
	w.LastActive = time.Now()

	if err := s.store.SaveWorker(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// DeleteWorker removes a worker the caller owns.
func (s *Service) DeleteWorker(ctx context.Context, userID, workerID string) error {
	if userID == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if workerID == "" {
		return fmt.Errorf("%w: worker id is required", ErrValidation)
	}
	return s.store.DeleteWorker(ctx, userID, workerID)
}

// ListWorkers returns every worker owned by userID.
func (s *Service) ListWorkers(ctx context.Context, userID string) ([]models.MiningWorker, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return s.store.ListWorkers(ctx, userID)
}

func validWorkerStatus(status string) bool {
	switch status {
	case models.WorkerOnline, models.WorkerOffline, models.WorkerMaintenance:
		return true
	}
	return false
}
