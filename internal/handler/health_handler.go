package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/unclebandit/bulkmail-backend/internal/controller"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports liveness and database reachability.
func HealthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status, code := "ok", http.StatusOK
		dbStatus := "up"
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				status, code, dbStatus = "degraded", http.StatusServiceUnavailable, "down"
			}
		}
		controller.RespondJSON(w, code, map[string]string{
			"status":   status,
			"database": dbStatus,
			"time":     time.Now().UTC().Format(time.RFC3339),
		})
	}
}
