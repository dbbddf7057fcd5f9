package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"sphere/logger"
	"sphere/models"
	"sphere/store"
	"sphere/utils"
)

// Auth validates the caller's identity token and resolves it to a profile
// row. Profiles are created lazily on first authenticated request since
// sign-up itself happens at the external identity provider.
type Auth struct {
	store store.Store
}

func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		tokenStr := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		claims, err := utils.ValidateAccessToken(tokenStr)
		if err != nil {
			if strings.Contains(err.Error(), "expired") {
				utils.WriteError(w, http.StatusUnauthorized, "Session expired, please sign in again")
				return
			}
			utils.WriteError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		uid, err := utils.SubjectFromClaims(claims)
		if err != nil {
			utils.WriteError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if err := a.ensureProfile(r.Context(), uid, claims["username"]); err != nil {
			logger.WithError(err).WithFields(logger.Fields{"user_id": uid}).Error("profile bootstrap failed")
			utils.WriteError(w, http.StatusInternalServerError, "Server error")
			return
		}

		ctx := context.WithValue(r.Context(), utils.UserIDKey, uid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Auth) ensureProfile(ctx context.Context, uid string, rawUsername interface{}) error {
	_, err := a.store.GetProfile(ctx, uid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	username, _ := rawUsername.(string)
	if username == "" {
		username = "miner-" + uid[:minInt(8, len(uid))]
	}
	err = a.store.CreateProfile(ctx, &models.Profile{ID: uid, Username: username})
	// a concurrent request may have created it first
	if errors.Is(err, store.ErrDuplicate) {
		return nil
	}
	return err
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
