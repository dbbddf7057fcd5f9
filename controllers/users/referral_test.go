package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"sphere/models"
	"sphere/mq"
	"sphere/referral"
	"sphere/store"
	"sphere/tasks"
	"sphere/utils"
)

func newTestControllers(t *testing.T) (*ReferralController, *TaskController, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	for _, id := range []string{"alice", "bob"} {
		if err := st.CreateProfile(context.Background(), &models.Profile{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	q := mq.NewMemoryQueue(8)
	t.Cleanup(func() { _ = q.Close() })
	rsvc := referral.NewService(st, q)
	t.Cleanup(rsvc.Close)
	tsvc := tasks.NewService(st)
	if err := tsvc.Seed(context.Background()); err != nil {
		t.Fatal(err)
	}
	return NewReferralController(rsvc), NewTaskController(tsvc), st
}

func postJSON(t *testing.T, handler http.HandlerFunc, uid, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if uid != "" {
		req = req.WithContext(context.WithValue(req.Context(), utils.UserIDKey, uid))
	}
	rr := httptest.NewRecorder()
	handler(rr, req)
	return rr
}

func TestApplyRequiresJSONContentType(t *testing.T) {
	rc, _, _ := newTestControllers(t)

	rr := postJSON(t, rc.Apply, "alice", `{"code":"SPHAAAAAAA"}`, "text/plain")
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rr.Code)
	}
}

func TestApplyRejectsMalformedCode(t *testing.T) {
	rc, _, _ := newTestControllers(t)

	for _, body := range []string{`{}`, `{"code":"not-a-code"}`, `{"code":"sphabcdefg"}`} {
		rr := postJSON(t, rc.Apply, "alice", body, "application/json")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rr.Code)
		}
		var env utils.APIResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
			t.Fatal(err)
		}
		if env.Success {
			t.Fatalf("body %s: success = true, want false", body)
		}
	}
}

func TestApplyAcceptsWellFormedCode(t *testing.T) {
	rc, _, _ := newTestControllers(t)

	code, err := rc.Svc.Code(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}

	rr := postJSON(t, rc.Apply, "alice", `{"code":"`+code+`"}`, "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var env utils.APIResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if !env.Success {
		t.Fatalf("success = false: %s", rr.Body.String())
	}
}

func TestCompleteRequiresTaskID(t *testing.T) {
	_, tc, _ := newTestControllers(t)

	rr := postJSON(t, tc.Complete, "alice", `{}`, "application/json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestCompleteKnownTask(t *testing.T) {
	_, tc, _ := newTestControllers(t)

	rr := postJSON(t, tc.Complete, "alice", `{"taskId":"daily-checkin"}`, "application/json")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
}
