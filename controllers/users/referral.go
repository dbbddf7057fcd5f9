package users

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"sphere/logger"
	"sphere/middleware"
	"sphere/mq"
	"sphere/referral"
	"sphere/utils"
)

type ReferralController struct {
	Svc *referral.Service
}

func NewReferralController(svc *referral.Service) *ReferralController {
	return &ReferralController{Svc: svc}
}

// GET /v1/referral/code
func (c *ReferralController) Code(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	code, err := c.Svc.Code(r.Context(), uid)
	if err != nil {
		logger.WithError(err).Errorf("referral code failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: map[string]string{"code": code}})
}

// GET /v1/referral/summary
func (c *ReferralController) Summary(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	sum, err := c.Svc.Summarize(r.Context(), uid)
	if err != nil {
		logger.WithError(err).Errorf("referral summary failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: sum})
}

type applyRequest struct {
	Code string `json:"code" validate:"required,refcode"`
}

// POST /v1/referral/apply
func (c *ReferralController) Apply(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	var req applyRequest
	if err := middleware.ValidateJSON(w, r, &req); err != nil {
		return
	}

	applied, reason, err := c.Svc.Apply(r.Context(), uid, req.Code)
	if errors.Is(err, referral.ErrValidation) {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}
	if err != nil {
		logger.WithError(err).Errorf("referral apply failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	if !applied {
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: false, Message: reason, Data: map[string]any{"applied": false, "reason": reason}})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Referral applied", Data: map[string]any{"applied": true}})
}

// GET /v1/referral/subscribe upgrades to a websocket and pushes a frame for
// every new referral credited to the caller. The connection closes when the
// client goes away or the server shuts down.
func (c *ReferralController) Subscribe(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		logger.WithError(err).Warnf("websocket upgrade failed")
		return
	}

	events := make(chan mq.ReferralEvent, 8)
	cancel := c.Svc.Subscribe(uid, func(evt mq.ReferralEvent) {
		select {
		case events <- evt:
		default: // slow consumer, drop rather than block the dispatcher
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cancel()
		defer conn.Close()
		for {
			select {
			case <-done:
				return
			case evt := <-events:
				payload, err := json.Marshal(evt)
				if err != nil {
					continue
				}
				if err := wsutil.WriteServerMessage(conn, ws.OpText, payload); err != nil {
					return
				}
			}
		}
	}()
}
