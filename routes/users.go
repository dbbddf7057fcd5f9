package routes

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	miningctl "sphere/controllers/mining"
	"sphere/controllers/users"
	"sphere/middleware"
)

func registerUserRoutes(api *mux.Router, auth *middleware.Auth, deps Deps) {
	miningController := miningctl.NewController(deps.Mining)
	referralController := users.NewReferralController(deps.Referral)
	taskController := users.NewTaskController(deps.Tasks)
	infoController := users.NewInfoController(deps.Store)

	// burst protection in front of the function endpoints, per-action caps
	// are enforced inside the mining service
	fnLimiter := middleware.NewIPRateLimiter(600, time.Minute)

	fn := api.PathPrefix("/functions").Subrouter()
	fn.Use(fnLimiter.Middleware)
	fn.Use(auth.Middleware)
	fn.Handle("/manage-mining", http.HandlerFunc(miningController.ManageMining)).Methods(http.MethodPost)
	fn.Handle("/manage-workers", http.HandlerFunc(miningController.ManageWorkers)).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(auth.Middleware)

	authed.Handle("/mining/session", http.HandlerFunc(miningController.ActiveSession)).Methods(http.MethodGet)

	authed.Handle("/referral/code", http.HandlerFunc(referralController.Code)).Methods(http.MethodGet)
	authed.Handle("/referral/summary", http.HandlerFunc(referralController.Summary)).Methods(http.MethodGet)
	authed.Handle("/referral/apply", http.HandlerFunc(referralController.Apply)).Methods(http.MethodPost)

	authed.Handle("/tasks", http.HandlerFunc(taskController.List)).Methods(http.MethodGet)
	authed.Handle("/tasks/completed", http.HandlerFunc(taskController.Completed)).Methods(http.MethodGet)
	authed.Handle("/tasks/points", http.HandlerFunc(taskController.Points)).Methods(http.MethodGet)
	authed.Handle("/tasks/complete", http.HandlerFunc(taskController.Complete)).Methods(http.MethodPost)

	authed.Handle("/users/info", http.HandlerFunc(infoController.Info)).Methods(http.MethodGet)
	authed.Handle("/users/wallet", http.HandlerFunc(infoController.SetWallet)).Methods(http.MethodPut)
}
