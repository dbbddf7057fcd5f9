package users

import (
	"encoding/json"
	"errors"
	"net/http"

	"sphere/logger"
	"sphere/store"
	"sphere/utils"
)

type InfoController struct {
	Store store.Store
}

func NewInfoController(st store.Store) *InfoController {
	return &InfoController{Store: st}
}

// GET /v1/users/info
func (c *InfoController) Info(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	p, err := c.Store.GetProfile(r.Context(), uid)
	if errors.Is(err, store.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Profile not found"})
		return
	}
	if err != nil {
		logger.WithError(err).Errorf("profile fetch failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "OK", Data: p})
}

type walletRequest struct {
	Address   string `json:"address" validate:"required,walletaddr"`
	Signature string `json:"signature"`
}

// PUT /v1/users/wallet
func (c *InfoController) SetWallet(w http.ResponseWriter, r *http.Request) {
	uid, ok := utils.GetUserID(r)
	if !ok || uid == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.APIResponse{Success: false, Message: "Unauthorized"})
		return
	}
	var req walletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: "Invalid JSON body"})
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.APIResponse{Success: false, Message: err.Error()})
		return
	}

	switch err := c.Store.SetWallet(r.Context(), uid, req.Address, req.Signature); {
	case errors.Is(err, store.ErrDuplicate):
		utils.WriteJSON(w, http.StatusConflict, utils.APIResponse{Success: false, Message: "Wallet already linked to another account"})
	case errors.Is(err, store.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.APIResponse{Success: false, Message: "Profile not found"})
	case err != nil:
		logger.WithError(err).Errorf("wallet update failure")
		utils.WriteJSON(w, http.StatusInternalServerError, utils.APIResponse{Success: false, Message: "Internal error"})
	default:
		utils.WriteJSON(w, http.StatusOK, utils.APIResponse{Success: true, Message: "Wallet linked"})
	}
}
