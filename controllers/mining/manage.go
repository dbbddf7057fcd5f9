package mining

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"sphere/logger"
	"sphere/mining"
	"sphere/store"
	"sphere/utils"
)

// Controller serves the dashboard's function endpoints. Both endpoints take a
// single POST body with an action field and dispatch on it, the way the
// dashboard frontend calls them.
type Controller struct {
	Svc *mining.Service
}

func NewController(svc *mining.Service) *Controller {
	return &Controller{Svc: svc}
}

type manageRequest struct {
	Action     string          `json:"action" validate:"required"`
	UserID     string          `json:"userId" validate:"required"`
	SessionID  string          `json:"sessionId,omitempty"`
	WorkerID   string          `json:"workerId,omitempty"`
	IsOffline  bool            `json:"isOffline,omitempty"`
	WorkerData json.RawMessage `json:"workerData,omitempty"`
}

// authedUser extracts the token subject and rejects bodies claiming another
// user. The body's userId is kept for parity with the frontend payloads, but
// the token is authoritative.
func authedUser(w http.ResponseWriter, r *http.Request, bodyUserID string) (string, bool) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return "", false
	}
	if bodyUserID != "" && bodyUserID != uid {
		utils.WriteJSON(w, http.StatusForbidden, utils.APIResponse{Success: false, Message: "User ID mismatch"})
		return "", false
	}
	return uid, true
}

func decodeManage(w http.ResponseWriter, r *http.Request) (*manageRequest, bool) {
	var req manageRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return nil, false
	}
	if req.Action == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "action is required"})
		return nil, false
	}
	return &req, true
}

// writeServiceError maps service failures onto the response envelope.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mining.ErrValidation):
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Not found"})
	case errors.Is(err, store.ErrDuplicate):
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Conflict"})
	case errors.Is(err, mining.ErrRateLimited):
		w.Header().Set("Retry-After", strconv.Itoa(int((30 * time.Second).Seconds())))
		utils.WriteJSON(w, http.StatusTooManyRequests, utils.APIResponse{Success: false, Message: "Too many requests, slow down"})
	default:
		logger.WithError(err).Errorf("mining controller failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
	}
}

// ManageMining handles POST /v1/functions/manage-mining.
func (c *Controller) ManageMining(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeManage(w, r)
	if !ok {
		return
	}
	uid, ok := authedUser(w, r, req.UserID)
	if !ok {
		return
	}

	switch req.Action {
	case "startMining":
		var cfg mining.StartConfig
		if len(req.WorkerData) > 0 {
			if err := json.Unmarshal(req.WorkerData, &cfg); err != nil {
				utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid workerData"})
				return
			}
		}
		session, err := c.Svc.Start(r.Context(), uid, cfg, req.IsOffline)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Mining session active", Data: session})

	case "stopMining":
		session, err := c.Svc.Stop(r.Context(), uid, req.SessionID)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Mining session stopped", Data: session})

	case "updateStats":
		var delta mining.StatsDelta
		if len(req.WorkerData) > 0 {
			if err := json.Unmarshal(req.WorkerData, &delta); err != nil {
				utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid workerData"})
				return
			}
		}
		session, err := c.Svc.UpdateStats(r.Context(), uid, req.SessionID, delta)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Stats updated", Data: session})

	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Unknown action: " + req.Action})
	}
}

// ManageWorkers handles POST /v1/functions/manage-workers.
func (c *Controller) ManageWorkers(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeManage(w, r)
	if !ok {
		return
	}
	uid, ok := authedUser(w, r, req.UserID)
	if !ok {
		return
	}

	var in mining.WorkerInput
	if len(req.WorkerData) > 0 {
		if err := json.Unmarshal(req.WorkerData, &in); err != nil {
			utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid workerData"})
			return
		}
	}
	// a top-level workerId wins over one embedded in workerData
	if req.WorkerID != "" {
		in.ID = req.WorkerID
	}

	switch req.Action {
	case "createWorker":
		worker, err := c.Svc.CreateWorker(r.Context(), uid, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Worker created", Data: worker})

	case "updateWorker":
		worker, err := c.Svc.UpdateWorker(r.Context(), uid, in)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Worker updated", Data: worker})

	case "deleteWorker":
		if err := c.Svc.DeleteWorker(r.Context(), uid, in.ID); err != nil {
			writeServiceError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Worker deleted"})

	case "getWorkers", "listWorkers":
		workers, err := c.Svc.ListWorkers(r.Context(), uid)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: workers})

	default:
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Unknown action: " + req.Action})
	}
}

// ActiveSession handles GET /v1/mining/session.
func (c *Controller) ActiveSession(w http.ResponseWriter, r *http.Request) {
	uid, ok := authedUser(w, r, "")
	if !ok {
		return
	}
	session, err := c.Svc.ActiveSession(r.Context(), uid)
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: session})
}
