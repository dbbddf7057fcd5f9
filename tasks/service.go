package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sphere/models"
	"sphere/store"
	"sphere/utils"
)

// ErrValidation covers malformed arguments rejected before any store access.
var ErrValidation = errors.New("tasks: validation")

// Service owns the onboarding/engagement task catalog and per-user progress.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// DefaultTasks is the catalog seeded into an empty store.
func DefaultTasks() []models.Task {
	return []models.Task{
		{ID: "daily-checkin", Title: "Daily Check-In", Description: "Open the dashboard today", Type: models.TaskDaily, Points: 10},
		{ID: "start-first-session", Title: "Fire Up a Miner", Description: "Start your first mining session", Type: models.TaskDaily, Points: 25},
		{ID: "add-worker", Title: "Register a Worker", Description: "Add a mining rig to your account", Type: models.TaskWeekly, Points: 50},
		{ID: "connect-wallet", Title: "Connect a Wallet", Description: "Link a payout wallet to your profile", Type: models.TaskWeekly, Points: 50},
		{ID: "invite-friend", Title: "Invite a Friend", Description: "Have someone sign up with your referral code", Type: models.TaskSocial, Points: 100},
	}
}

// Seed installs the default catalog when the store has no tasks yet.
func (s *Service) Seed(ctx context.Context) error {
	return s.store.SeedTasks(ctx, DefaultTasks())
}

// List returns the full task catalog.
func (s *Service) List(ctx context.Context) ([]models.Task, error) {
	return s.store.ListTasks(ctx)
}

// Completed returns the caller's completion records.
func (s *Service) Completed(ctx context.Context, userID string) ([]models.UserTask, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	return s.store.ListUserTasks(ctx, userID)
}

// Complete marks taskID done for userID. The second return is false when the
// task was already completed; completions are append-only and never undone.
func (s *Service) Complete(ctx context.Context, userID, taskID string) (*models.UserTask, bool, error) {
	if userID == "" {
		return nil, false, fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if taskID == "" {
		return nil, false, fmt.Errorf("%w: taskId is required", ErrValidation)
	}

	if _, err := s.taskByID(ctx, taskID); err != nil {
		return nil, false, err
	}

	ut := &models.UserTask{
		ID:          utils.NewID(),
		UserID:      userID,
		TaskID:      taskID,
		CompletedAt: time.Now(),
	}
	if err := s.store.CompleteTask(ctx, ut); errors.Is(err, store.ErrDuplicate) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	return ut, true, nil
}

// Points sums the point values of every task the user has completed.
func (s *Service) Points(ctx context.Context, userID string) (int, error) {
	done, err := s.Completed(ctx, userID)
	if err != nil {
		return 0, err
	}
	catalog, err := s.store.ListTasks(ctx)
	if err != nil {
		return 0, err
	}
	points := make(map[string]int, len(catalog))
	for _, t := range catalog {
		points[t.ID] = t.Points
	}
	total := 0
	for _, ut := range done {
		total += points[ut.TaskID]
	}
	return total, nil
}

func (s *Service) taskByID(ctx context.Context, taskID string) (*models.Task, error) {
	catalog, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	for i := range catalog {
		if catalog[i].ID == taskID {
			return &catalog[i], nil
		}
	}
	return nil, store.ErrNotFound
}
