package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"sphere/mining"
	"sphere/models"
	"sphere/store"
)

// API talks to the dashboard backend over HTTP with a bearer token. It
// implements Upstream.
type API struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewAPI(baseURL, token string) *API {
	return &API{
		BaseURL: baseURL,
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type manageBody struct {
	Action     string      `json:"action"`
	SessionID  string      `json:"sessionId,omitempty"`
	IsOffline  bool        `json:"isOffline,omitempty"`
	WorkerData interface{} `json:"workerData,omitempty"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *API) manage(ctx context.Context, body manageBody) (*models.MiningSession, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+"/v1/functions/manage-mining", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, store.ErrNotFound
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, mining.ErrRateLimited
	}
	if !env.Success {
		return nil, fmt.Errorf("%s: %s", body.Action, env.Message)
	}

	var session models.MiningSession
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &session); err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
	}
	return &session, nil
}

func (a *API) Start(ctx context.Context, cfg mining.StartConfig, isOffline bool) (*models.MiningSession, error) {
	return a.manage(ctx, manageBody{Action: "startMining", IsOffline: isOffline, WorkerData: cfg})
}

func (a *API) UpdateStats(ctx context.Context, sessionID string, d mining.StatsDelta) (*models.MiningSession, error) {
	return a.manage(ctx, manageBody{Action: "updateStats", SessionID: sessionID, WorkerData: d})
}

func (a *API) Stop(ctx context.Context, sessionID string) (*models.MiningSession, error) {
	return a.manage(ctx, manageBody{Action: "stopMining", SessionID: sessionID})
}

func (a *API) ActiveSession(ctx context.Context) (*models.MiningSession, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.BaseURL+"/v1/mining/session", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.Token)

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// 204 means no active session; there is no envelope to decode.
	if resp.StatusCode == http.StatusNoContent {
		return nil, store.ErrNotFound
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("session fetch: %s", env.Message)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, store.ErrNotFound
	}
	var session models.MiningSession
	if err := json.Unmarshal(env.Data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}
