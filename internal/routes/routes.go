package routes

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"SmartWater.influxDB/internal/controller"
	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/middleware"
	"SmartWater.influxDB/internal/models"
	"SmartWater.influxDB/internal/utils"
)

// Deps are the handlers mounted by RegisterRoutes.
type Deps struct {
	Command *controller.CommandController
	Live    http.HandlerFunc // websocket upgrade
	Metrics *metrics.Metrics
	Auth    middleware.Middleware // nil means no authentication
}

// RegisterRoutes registers all application routes.
func RegisterRoutes(router *mux.Router, deps Deps) {
	auth := deps.Auth
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	// Device control
	router.Handle("/command", auth(http.HandlerFunc(deps.Command.HandleCommand))).Methods(http.MethodPost)

	// Live enriched records
	router.HandleFunc("/ws", deps.Live).Methods(http.MethodGet)

	router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	}).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiErr := models.NewAPIError(models.ErrorCodeMethodNotAllowed, "Method not allowed", http.StatusMethodNotAllowed)
		utils.RespondWithError(w, apiErr)
	})
}
