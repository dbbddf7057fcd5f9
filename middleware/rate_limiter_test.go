package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientIPGeneric_DirectRemote(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.local/", nil)
	req.RemoteAddr = "203.0.113.5:54321"
	ip := clientIPGeneric(req, nil)
	if ip != "203.0.113.5" {
		t.Fatalf("expected direct remote IP, got %s", ip)
	}
}

func TestClientIPGeneric_TrustedProxyXFF(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.local/", nil)
	req.RemoteAddr = "198.51.100.10:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.10")
	// trustedCIDR contains the remote IP
	ip := clientIPGeneric(req, []string{"198.51.100.10"})
	if ip != "203.0.113.7" {
		t.Fatalf("expected X-Forwarded-For first value, got %s", ip)
	}
}

func TestClientIPGeneric_UntrustedProxyIgnoresXFF(t *testing.T) {
	req := httptest.NewRequest("GET", "http://example.local/", nil)
	req.RemoteAddr = "198.51.100.11:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.8, 198.51.100.11")
	ip := clientIPGeneric(req, []string{"198.51.100.10"})
	if ip != "198.51.100.11" {
		t.Fatalf("expected remote IP when proxy untrusted, got %s", ip)
	}
}

func TestActionLimiter_CapsPerAction(t *testing.T) {
	l := NewActionLimiter(time.Minute, map[string]int{"startMining": 3})
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if ok, _ := l.Allow(ctx, "u1", "startMining"); !ok {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}
	ok, retry := l.Allow(ctx, "u1", "startMining")
	if ok {
		t.Fatal("fourth call within the window should be denied")
	}
	if retry <= 0 {
		t.Fatalf("expected positive retry-after, got %v", retry)
	}
}

func TestActionLimiter_IsolatesUsersAndActions(t *testing.T) {
	l := NewActionLimiter(time.Minute, map[string]int{"startMining": 1, "stopMining": 1})
	ctx := context.Background()
	if ok, _ := l.Allow(ctx, "u1", "startMining"); !ok {
		t.Fatal("first call denied")
	}
	if ok, _ := l.Allow(ctx, "u1", "startMining"); ok {
		t.Fatal("second call for same user+action should be denied")
	}
	if ok, _ := l.Allow(ctx, "u2", "startMining"); !ok {
		t.Fatal("other user must not share the counter")
	}
	if ok, _ := l.Allow(ctx, "u1", "stopMining"); !ok {
		t.Fatal("other action class must not share the counter")
	}
}

func TestActionLimiter_UnknownActionUnlimited(t *testing.T) {
	l := NewActionLimiter(time.Minute, map[string]int{"startMining": 1})
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		if ok, _ := l.Allow(ctx, "u1", "getWorkers"); !ok {
			t.Fatal("actions without a configured cap must pass")
		}
	}
}
