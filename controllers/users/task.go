package users

import (
	"errors"
	"net/http"

	"sphere/logger"
	"sphere/middleware"
	"sphere/store"
	"sphere/tasks"
	"sphere/utils"
)

type TaskController struct {
	Svc *tasks.Service
}

func NewTaskController(svc *tasks.Service) *TaskController {
	return &TaskController{Svc: svc}
}

// GET /v1/tasks
func (c *TaskController) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := utils.GetUserID(r); !ok {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	list, err := c.Svc.List(r.Context())
	if err != nil {
		logger.WithError(err).Errorf("task list failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: list})
}

// GET /v1/tasks/completed
func (c *TaskController) Completed(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	done, err := c.Svc.Completed(r.Context(), uid)
	if err != nil {
		logger.WithError(err).Errorf("task completed-list failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: done})
}

type completeRequest struct {
	TaskID string `json:"taskId" validate:"required"`
}

// POST /v1/tasks/complete
func (c *TaskController) Complete(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	var req completeRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	ut, created, err := c.Svc.Complete(r.Context(), uid, req.TaskID)
	switch {
	case errors.Is(err, tasks.ErrValidation):
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	case errors.Is(err, store.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Unknown task"})
		return
	case err != nil:
		logger.WithError(err).Errorf("task complete failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	if !created {
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task already completed"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Task completed", Data: ut})
}

// GET /v1/tasks/points
func (c *TaskController) Points(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	total, err := c.Svc.Points(r.Context(), uid)
	if err != nil {
		logger.WithError(err).Errorf("task points failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: map[string]int{"points": total}})
}
