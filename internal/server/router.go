package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/unclebandit/bulkmail-backend/internal/controller"
	"github.com/unclebandit/bulkmail-backend/internal/handler"
	"github.com/unclebandit/bulkmail-backend/internal/middleware"
	"github.com/unclebandit/bulkmail-backend/internal/service"
)

// Deps are the services the HTTP surface is built from.
type Deps struct {
	Auth       *service.AuthService
	Templates  *service.TemplateService
	Recipients *service.RecipientService
	Campaigns  *service.CampaignService
	DB         handler.Pinger
	Log        zerolog.Logger

	// AuthRatePerMinute limits register/login per client IP. 0 disables it.
	AuthRatePerMinute int
}

func NewRouter(d Deps) http.Handler {
	authCtrl := &controller.AuthController{AuthService: d.Auth, Log: d.Log}
	templateCtrl := &controller.TemplateController{TemplateService: d.Templates, Log: d.Log}
	recipientCtrl := &controller.RecipientController{RecipientService: d.Recipients, Log: d.Log}
	campaignCtrl := &controller.CampaignController{CampaignService: d.Campaigns, Log: d.Log}
	campaignHandler := handler.NewCampaignHandler(d.Campaigns, d.Log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.HealthHandler(d.DB))

		r.Route("/auth", func(r chi.Router) {
			if d.AuthRatePerMinute > 0 {
				r.Use(middleware.NewRateLimiter(d.AuthRatePerMinute, d.AuthRatePerMinute).Middleware)
			}
			r.Post("/register", authCtrl.Register)
			r.Post("/login", authCtrl.Login)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(d.Auth))

			r.Route("/templates", func(r chi.Router) {
				r.Post("/", templateCtrl.CreateTemplate)
				r.Get("/", templateCtrl.ListTemplates)
				r.Get("/{id}", templateCtrl.GetTemplate)
				r.Put("/{id}", templateCtrl.UpdateTemplate)
				r.Delete("/{id}", templateCtrl.DeleteTemplate)
			})

			r.Route("/recipients", func(r chi.Router) {
				r.Post("/", recipientCtrl.CreateRecipient)
				r.Get("/", recipientCtrl.ListRecipients)
				r.Delete("/", recipientCtrl.DeleteAllRecipients)
				r.Post("/bulk", recipientCtrl.BulkClassify)
				r.Post("/import", recipientCtrl.Import)
				r.Get("/{id}", recipientCtrl.GetRecipient)
				r.Put("/{id}", recipientCtrl.UpdateRecipient)
				r.Delete("/{id}", recipientCtrl.DeleteRecipient)
			})

			r.Route("/campaigns", func(r chi.Router) {
				r.Post("/", campaignCtrl.CreateCampaign)
				r.Get("/", campaignCtrl.ListCampaigns)
				r.Post("/validate-emails", campaignCtrl.ValidateEmails)
				r.Get("/{id}", campaignCtrl.GetCampaign)
				r.Put("/{id}", campaignCtrl.UpdateCampaign)
				r.Delete("/{id}", campaignCtrl.DeleteCampaign)
				r.Post("/{id}/schedule", campaignCtrl.ScheduleCampaign)
				r.Post("/{id}/send", campaignCtrl.SendCampaign)
				r.Post("/{id}/personalized-preview", campaignCtrl.PersonalizedPreview)
				r.Get("/{id}/history", campaignHandler.HistoryHandler)
				r.Get("/{id}/stats", campaignHandler.StatsHandler)
			})
		})
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("took", time.Since(start)).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
