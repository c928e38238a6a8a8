package routes

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/Dosada05/padel-system/docs"
	"github.com/Dosada05/padel-system/handlers"
	"github.com/Dosada05/padel-system/middleware"
	"github.com/Dosada05/padel-system/models"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Pairing     *handlers.PairingHandler
	Bracket     *handlers.BracketHandler
	Schedule    *handlers.ScheduleHandler
	Match       *handlers.MatchHandler
	Standings   *handlers.StandingsHandler
	Matchmaking *handlers.MatchmakingHandler
	WebSocket   *handlers.WebSocketHandler
	Health      http.Handler
	Metrics     http.Handler
}

type Options struct {
	JWTSecret      []byte
	AllowedOrigins []string
	// ScheduleLimiter caps auto-schedule runs per organization.
	ScheduleLimiter *middleware.OrgRateLimiter
	Logger          *slog.Logger
}

func SetupRoutes(router *chi.Mux, h Handlers, opts Options) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(requestLogger(opts.Logger))
	router.Use(chiMiddleware.Recoverer)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/healthz", h.Health.ServeHTTP)
	router.Handle("/metrics", h.Metrics)
	router.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// Публичная подписка на события турнира
	router.Get("/ws/events/{eventID}", h.WebSocket.ServeWs)

	organizer := middleware.Authorize(models.RoleOrganizer, models.RoleAdmin)
	anyone := middleware.Authorize(models.RoleOrganizer, models.RoleAdmin, models.RolePlayer)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(opts.JWTSecret, opts.Logger))

		r.Route("/events/{eventID}", func(r chi.Router) {
			r.With(anyone).Post("/pairings", h.Pairing.CreateHandler)

			r.Group(func(r chi.Router) {
				r.Use(organizer)
				r.Post("/brackets", h.Bracket.GenerateHandler)
				r.Get("/matches", h.Bracket.ListMatchesHandler)
				r.With(middleware.RateLimitByOrg(opts.ScheduleLimiter)).Post("/schedule", h.Schedule.AutoScheduleHandler)
				r.Get("/standings/{group}", h.Standings.GetHandler)
				r.Post("/standings/{group}/rebuild", h.Standings.RebuildHandler)
			})
		})

		r.Route("/pairings/{pairingID}", func(r chi.Router) {
			r.With(anyone).Get("/", h.Pairing.GetHandler)
			r.With(anyone).Post("/claim", h.Pairing.ClaimHandler)

			r.Group(func(r chi.Router) {
				r.Use(organizer)
				r.Post("/payments", h.Pairing.PaymentHandler)
				r.Post("/actions", h.Pairing.ActionHandler)
				r.Post("/guarantee", h.Pairing.GuaranteeHandler)
				r.Post("/cancel", h.Pairing.CancelHandler)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(organizer)
			r.Post("/agenda/check", h.Schedule.AgendaCheckHandler)

			r.Get("/matches/{matchID}", h.Match.GetHandler)
			r.Post("/matches/{matchID}/result", h.Match.RecordResultHandler)
			r.Put("/matches/{matchID}/schedule", h.Match.RescheduleHandler)

			r.Post("/matchmaking/rounds", h.Matchmaking.GenerateRoundHandler)
		})
	})
}

// requestLogger пишет одну строку на запрос через slog
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				slog.String("request_id", chiMiddleware.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
