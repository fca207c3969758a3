package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/morningmarket/morningmarket-backend/internal/orders"
	"github.com/morningmarket/morningmarket-backend/internal/reservations"
	"github.com/morningmarket/morningmarket-backend/internal/settlement"
	pkgAuth "github.com/morningmarket/morningmarket-backend/pkg/auth"
	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	"github.com/morningmarket/morningmarket-backend/pkg/enums"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
	"github.com/morningmarket/morningmarket-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubReservationsService struct{}

func (stubReservationsService) Reserve(ctx context.Context, input reservations.ReserveInput) (*models.Reservation, error) {
	return &models.Reservation{ID: uuid.New()}, nil
}

func (stubReservationsService) Cancel(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error) {
	return &models.Reservation{ID: reservationID}, nil
}

func (stubReservationsService) ConfirmPickup(ctx context.Context, reservationID uuid.UUID) (*models.Reservation, error) {
	return &models.Reservation{ID: reservationID}, nil
}

func (stubReservationsService) MarkSelfPickReady(ctx context.Context, userID, reservationID uuid.UUID) (*models.Reservation, error) {
	return &models.Reservation{ID: reservationID}, nil
}

func (stubReservationsService) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Reservation, error) {
	return []models.Reservation{}, nil
}

func (stubReservationsService) SweepNoShows(ctx context.Context, pickupDate time.Time) (int64, error) {
	return 0, nil
}

type stubOrdersService struct{}

func (stubOrdersService) Checkout(ctx context.Context, input orders.CheckoutInput) (*models.Order, error) {
	return &models.Order{ID: uuid.New()}, nil
}

func (stubOrdersService) Approve(ctx context.Context, input orders.ApproveInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID}, nil
}

func (stubOrdersService) Cancel(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (stubOrdersService) GetByID(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID}, nil
}

func (stubOrdersService) ReconcilePending(ctx context.Context, gracePeriod time.Duration, limit int) (*orders.ReconcileResult, error) {
	return &orders.ReconcileResult{}, nil
}

type stubSettlementService struct{}

func (stubSettlementService) MarkEligible(ctx context.Context, pickupDate time.Time) (int64, error) {
	return 0, nil
}

func (stubSettlementService) MarkNoShows(ctx context.Context, pickupDate time.Time) (int64, error) {
	return 0, nil
}

func (stubSettlementService) Run(ctx context.Context, pickupDate time.Time) (*settlement.RunResult, error) {
	return &settlement.RunResult{}, nil
}

func (stubSettlementService) ListOrphanedBatches(ctx context.Context) ([]settlement.OrphanedBatch, error) {
	return []settlement.OrphanedBatch{}, nil
}

func (stubSettlementService) RefoldBatch(ctx context.Context, batchUID string) (*settlement.RunResult, error) {
	return &settlement.RunResult{BatchUID: batchUID}, nil
}

func (stubSettlementService) AggregatesForDate(ctx context.Context, sellDate time.Time) ([]models.ProductDailyAgg, error) {
	return []models.ProductDailyAgg{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		(*redis.Client)(nil),
		stubReservationsService{},
		stubOrdersService{},
		stubSettlementService{},
	)
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestReservationsRejectMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestReservationsAcceptCustomerJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/reservations", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	nonAdmin := httptest.NewRequest(http.MethodGet, "/api/admin/v1/aggregates?date=2026-08-31", nil)
	nonAdmin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, nonAdmin)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/admin/v1/aggregates?date=2026-08-31", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestAdminAggregatesRequiresDate(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/aggregates", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleAdmin))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without date got %d", resp.Code)
	}
}

func TestMetricsExposed(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
