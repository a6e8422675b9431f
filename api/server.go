/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. Logger:        Request logging
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. Metrics:       Prometheus request counters and latency
  5. CORS:          Cross-origin requests for frontends
  6. RequireSender: Mutating /api routes need X-Tontine-Sender

ROUTE GROUPS:
  /api/engine           Engine options
  /api/tontine/*        Creation, lifecycle, aggregates, audit log
  /api/members/*        Member management
  /api/rounds/*         Deposits, distribution, advancement
  /api/beneficiaries/*  Payout order
  /api/history/*        Deposit, distribution, penalty history
  /api/penalties/*      Penalty operations (deferred)
  /api/fees/*           Fee operations (deferred)
  /api/disputes/*       Dispute operations (deferred)
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/tontine-engine/metrics"
)

// DefaultCORSOrigins is used when NewRouter gets no origins.
var DefaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins ...string) *chi.Mux {
	if len(corsOrigins) == 0 {
		corsOrigins = DefaultCORSOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", SenderHeader},
		AllowCredentials: true,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(RequireSender)

		r.Get("/engine", h.GetEngine)

		r.Route("/tontine", func(r chi.Router) {
			r.Post("/", h.Instantiate)
			r.Get("/", h.GetState)
			r.Get("/config", h.GetConfig)
			r.Get("/statistics", h.GetStatistics)
			r.Get("/balance", h.GetBalance)
			r.Get("/escrow", h.GetEscrow)
			r.Get("/events", h.ListEvents)
			r.Post("/start", h.Start)
			r.Post("/pause", h.Pause)
			r.Post("/resume", h.Resume)
			r.Post("/close", h.Close)
			r.Post("/finalize", h.Finalize)
			r.Post("/migrate", h.Migrate)
		})

		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.RegisterMember)
			r.Post("/replace", h.ReplaceMember)
			r.Get("/{address}", h.GetMember)
			r.Delete("/{address}", h.RemoveMember)
			r.Get("/{address}/penalties", h.GetMemberPenalties)
		})

		r.Route("/rounds", func(r chi.Router) {
			r.Get("/", h.ListRounds)
			r.Get("/current", h.GetCurrentRound)
			r.Post("/current/deposits", h.Deposit)
			r.Post("/current/distribute", h.Distribute)
			r.Post("/advance", h.AdvanceRound)
			r.Get("/{n}", h.GetRound)
		})

		r.Route("/beneficiaries", func(r chi.Router) {
			r.Get("/", h.GetBeneficiaries)
			r.Get("/schedule", h.GetBeneficiarySchedule)
		})

		r.Route("/history", func(r chi.Router) {
			r.Get("/deposits", h.DepositHistory)
			r.Get("/distributions", h.DistributionHistory)
			r.Get("/penalties", h.PenaltyHistory)
		})

		r.Route("/penalties", func(r chi.Router) {
			r.Post("/declare-late", h.DeclareLate)
			r.Post("/apply", h.ApplyPenalty)
			r.Post("/pay", h.PayPenalty)
		})

		r.Route("/fees", func(r chi.Router) {
			r.Post("/withdraw", h.WithdrawFees)
			r.Post("/collect", h.CollectFees)
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", h.ListDisputes)
			r.Post("/resolve", h.ResolveDispute)
			r.Post("/arbitrate", h.ArbitrateDispute)
		})

		r.Post("/advance-payment", h.AdvancePayment)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetStore)
		})
	})

	return r
}
