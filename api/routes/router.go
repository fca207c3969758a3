package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/morningmarket/morningmarket-backend/api/controllers"
	"github.com/morningmarket/morningmarket-backend/api/middleware"
	"github.com/morningmarket/morningmarket-backend/internal/orders"
	"github.com/morningmarket/morningmarket-backend/internal/reservations"
	"github.com/morningmarket/morningmarket-backend/internal/settlement"
	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/db"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
	"github.com/morningmarket/morningmarket-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	reservationsService reservations.Service,
	ordersService orders.Service,
	settlementService settlement.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/reservations", func(r chi.Router) {
			r.Get("/", controllers.ListReservations(reservationsService, logg))
			r.Post("/", controllers.CreateReservation(reservationsService, logg))
			r.Post("/{reservationId}/cancel", controllers.CancelReservation(reservationsService, logg))
			r.Post("/{reservationId}/self-pickup", controllers.SelfPickupReservation(reservationsService, logg))
		})

		r.Post("/checkout", controllers.Checkout(ordersService, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/{orderId}", controllers.OrderDetail(ordersService, logg))
			r.Post("/{orderId}/approve", controllers.ApproveOrder(ordersService, logg))
			r.Post("/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Post("/reservations/{reservationId}/pickup", controllers.AdminConfirmPickup(reservationsService, logg))
		r.Get("/aggregates", controllers.AdminAggregates(settlementService, logg))
		r.Route("/settlement", func(r chi.Router) {
			r.Get("/orphans", controllers.AdminSettlementOrphans(settlementService, logg))
			r.Post("/orphans/{batchUid}/refold", controllers.AdminRefoldBatch(settlementService, logg))
		})
	})

	return r
}
