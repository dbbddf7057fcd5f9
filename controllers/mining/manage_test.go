package mining

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sphere/mining"
	"sphere/models"
	"sphere/store"
	"sphere/utils"
)

func newTestController(t *testing.T) (*Controller, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	if err := st.CreateProfile(context.Background(), &models.Profile{ID: "alice"}); err != nil {
		t.Fatal(err)
	}
	return NewController(mining.NewService(st, nil)), st
}

func post(t *testing.T, handler http.HandlerFunc, uid, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/functions/manage-mining", strings.NewReader(body))
	if uid != "" {
		req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, uid))
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestManageMiningRequiresAuth(t *testing.T) {
	c, _ := newTestController(t)

	rr := post(t, c.ManageMining, "", `{"action":"startMining"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestManageMiningRejectsUserIDMismatch(t *testing.T) {
	c, _ := newTestController(t)

	rr := post(t, c.ManageMining, "alice", `{"action":"startMining","userId":"mallory"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestManageMiningStartStopRoundTrip(t *testing.T) {
	c, _ := newTestController(t)

	rr := post(t, c.ManageMining, "alice", `{"action":"startMining","userId":"alice","workerData":{"hashrate":55}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Success bool                 `json:"success"`
		Data    models.MiningSession `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Data.ID == "" || resp.Data.TotalHashrate != 55 {
		t.Fatalf("start response = %+v", resp)
	}

	rr = post(t, c.ManageMining, "alice", `{"action":"stopMining","userId":"alice","sessionId":"`+resp.Data.ID+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", rr.Code, rr.Body.String())
	}
}

func TestManageMiningUnknownAction(t *testing.T) {
	c, _ := newTestController(t)

	rr := post(t, c.ManageMining, "alice", `{"action":"selfDestruct","userId":"alice"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestManageMiningMapsNotFound(t *testing.T) {
	c, _ := newTestController(t)

	rr := post(t, c.ManageMining, "alice", `{"action":"stopMining","userId":"alice","sessionId":"nope"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestManageWorkersCRUD(t *testing.T) {
	c, _ := newTestController(t)

	rr := post(t, c.ManageWorkers, "alice", `{"action":"createWorker","userId":"alice","workerData":{"name":"rig-01"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Data models.MiningWorker `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}

	// workerId at the top level addresses the worker, no workerData.id needed
	rr = post(t, c.ManageWorkers, "alice", `{"action":"updateWorker","userId":"alice","workerId":"`+resp.Data.ID+`","workerData":{"name":"rig-renamed"}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = post(t, c.ManageWorkers, "alice", `{"action":"deleteWorker","userId":"alice","workerId":"`+resp.Data.ID+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d: %s", rr.Code, rr.Body.String())
	}

	rr = post(t, c.ManageWorkers, "alice", `{"action":"getWorkers","userId":"alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
}

func TestActiveSessionNoContentWhenIdle(t *testing.T) {
	c, _ := newTestController(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/mining/session", nil)
	req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, "alice"))
	rr := httptest.NewRecorder()
	c.ActiveSession(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Fatalf("body = %q, want empty", rr.Body.String())
	}
}

func TestActiveSessionReturnsRunningSession(t *testing.T) {
	c, _ := newTestController(t)

	rr := post(t, c.ManageMining, "alice", `{"action":"startMining","userId":"alice"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rr.Code, rr.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/mining/session", nil)
	req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, "alice"))
	rec := httptest.NewRecorder()
	c.ActiveSession(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data models.MiningSession `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Data.Status != models.SessionActive {
		t.Fatalf("status = %q, want %q", resp.Data.Status, models.SessionActive)
	}
}
