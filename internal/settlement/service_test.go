package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	"github.com/morningmarket/morningmarket-backend/pkg/enums"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
	"github.com/morningmarket/morningmarket-backend/pkg/logger"
	"github.com/morningmarket/morningmarket-backend/pkg/metrics"
)

var testDate = time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:settlement_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Product{}, &models.User{}, &models.Reservation{},
		&models.SettlementEvent{}, &models.ProductDailyAgg{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo, metrics.NewSettlementMetrics(nil), logger.New(logger.Options{ServiceName: "settlement-test"}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func seedReservation(t *testing.T, db *gorm.DB, productID uuid.UUID, status enums.ReservationStatus, qty, amountCents int) *models.Reservation {
	t.Helper()
	user := &models.User{ID: uuid.New(), UID: "u-" + uuid.NewString(), Name: "shopper"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	reservation := &models.Reservation{
		ID:              uuid.New(),
		ProductID:       productID,
		UserID:          user.ID,
		Qty:             qty,
		AmountCents:     amountCents,
		PickupDate:      testDate,
		Status:          status,
		StatusChangedAt: testDate.Add(18 * time.Hour),
	}
	if err := db.Create(reservation).Error; err != nil {
		t.Fatalf("seed reservation: %v", err)
	}
	return reservation
}

func seedProductID(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		Name:       "morning box",
		PriceCents: 2000,
		Stock:      10,
		SellDate:   testDate,
		Visible:    true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func loadAgg(t *testing.T, db *gorm.DB, productID uuid.UUID) *models.ProductDailyAgg {
	t.Helper()
	var agg models.ProductDailyAgg
	err := db.First(&agg, "sell_date = ? AND product_id = ?", testDate, productID).Error
	if err != nil {
		t.Fatalf("load agg: %v", err)
	}
	return &agg
}

func TestMarkEligible_Idempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	productID := seedProductID(t, db)

	seedReservation(t, db, productID, enums.ReservationStatusPicked, 2, 4000)
	seedReservation(t, db, productID, enums.ReservationStatusSelfPickReady, 1, 2000)
	seedReservation(t, db, productID, enums.ReservationStatusPending, 1, 2000)

	marked, err := repo.MarkEligible(ctx, testDate)
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if marked != 2 {
		t.Fatalf("expected 2 marked, got %d", marked)
	}

	// Re-run inserts nothing: the (reservation, phase) pair already exists.
	marked, err = repo.MarkEligible(ctx, testDate)
	if err != nil {
		t.Fatalf("second mark: %v", err)
	}
	if marked != 0 {
		t.Fatalf("expected 0 marked on re-run, got %d", marked)
	}

	var count int64
	if err := db.Model(&models.SettlementEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 events total, got %d", count)
	}
}

func TestRun_FullPipeline(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	svc := newTestService(t, repo)
	productID := seedProductID(t, db)

	seedReservation(t, db, productID, enums.ReservationStatusPicked, 2, 4000)
	seedReservation(t, db, productID, enums.ReservationStatusSelfPickReady, 1, 2000)

	result, err := svc.Run(ctx, testDate)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Claimed != 2 || result.Finished != 2 {
		t.Fatalf("expected claimed=finished=2, got %+v", result)
	}

	agg := loadAgg(t, db, productID)
	if agg.Quantity != 3 || agg.AmountCents != 6000 {
		t.Fatalf("unexpected aggregate: %+v", agg)
	}

	// All events terminal now; the next run claims nothing and the
	// aggregate is untouched.
	result, err = svc.Run(ctx, testDate)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Claimed != 0 {
		t.Fatalf("expected empty second run, got %+v", result)
	}
	agg = loadAgg(t, db, productID)
	if agg.Quantity != 3 {
		t.Fatalf("aggregate must not change on empty run: %+v", agg)
	}
}

func TestRun_NoShowMinusDecrements(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	svc := newTestService(t, repo)
	productID := seedProductID(t, db)

	seedReservation(t, db, productID, enums.ReservationStatusPicked, 3, 6000)
	if _, err := svc.Run(ctx, testDate); err != nil {
		t.Fatalf("first run: %v", err)
	}
	agg := loadAgg(t, db, productID)
	if agg.Quantity != 3 {
		t.Fatalf("expected quantity 3, got %+v", agg)
	}

	// A no-show surfaces later and folds negatively.
	seedReservation(t, db, productID, enums.ReservationStatusNoShow, 1, 2000)
	if _, err := svc.Run(ctx, testDate); err != nil {
		t.Fatalf("second run: %v", err)
	}
	agg = loadAgg(t, db, productID)
	if agg.Quantity != 2 || agg.AmountCents != 4000 {
		t.Fatalf("expected quantity 2 amount 4000, got %+v", agg)
	}
}

// Two racing claimers are modeled sequentially: the in-memory sqlite driver
// serializes writers, and the conditional UPDATE on `batch_uid IS NULL` makes
// the sequential outcome the only one possible under concurrency too.
func TestClaim_DisjointCohorts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	productID := seedProductID(t, db)

	seedReservation(t, db, productID, enums.ReservationStatusPicked, 1, 2000)
	seedReservation(t, db, productID, enums.ReservationStatusPicked, 2, 4000)
	if _, err := repo.MarkEligible(ctx, testDate); err != nil {
		t.Fatalf("mark: %v", err)
	}

	first, err := repo.Claim(ctx, "batch-a")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second, err := repo.Claim(ctx, "batch-b")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if first != 2 || second != 0 {
		t.Fatalf("claims must be disjoint: first=%d second=%d", first, second)
	}
}

func TestOrphanedBatch_Refold(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	svc := newTestService(t, repo)
	productID := seedProductID(t, db)

	seedReservation(t, db, productID, enums.ReservationStatusPicked, 2, 4000)
	if _, err := repo.MarkEligible(ctx, testDate); err != nil {
		t.Fatalf("mark: %v", err)
	}

	// Simulate a run that claimed and died before finishing.
	orphanUID := uuid.NewString()
	if _, err := repo.Claim(ctx, orphanUID); err != nil {
		t.Fatalf("claim: %v", err)
	}

	orphans, err := svc.ListOrphanedBatches(ctx)
	if err != nil {
		t.Fatalf("list orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].BatchUID != orphanUID || orphans[0].EventCount != 1 {
		t.Fatalf("unexpected orphans: %+v", orphans)
	}

	// A fresh run must not steal the claimed cohort.
	result, err := svc.Run(ctx, testDate)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Claimed != 0 {
		t.Fatalf("claimed cohort must stay with its token: %+v", result)
	}

	refolded, err := svc.RefoldBatch(ctx, orphanUID)
	if err != nil {
		t.Fatalf("refold: %v", err)
	}
	if refolded.Claimed != 1 || refolded.Finished != 1 {
		t.Fatalf("unexpected refold result: %+v", refolded)
	}

	agg := loadAgg(t, db, productID)
	if agg.Quantity != 2 || agg.AmountCents != 4000 {
		t.Fatalf("unexpected aggregate after refold: %+v", agg)
	}

	orphans, err = svc.ListOrphanedBatches(ctx)
	if err != nil {
		t.Fatalf("list orphans after refold: %v", err)
	}
	if len(orphans) != 0 {
		t.Fatalf("expected no orphans, got %+v", orphans)
	}

	// Refolding a finished batch is rejected: its token no longer exists.
	if _, err := svc.RefoldBatch(ctx, orphanUID); err == nil {
		t.Fatal("expected refold of finished batch to fail")
	} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

// finishTamperRepo fakes a Finish that processes fewer rows than were
// claimed, standing in for a concurrent mutation of the cohort.
type finishTamperRepo struct {
	Repository
}

func (f *finishTamperRepo) Finish(ctx context.Context, batchUID string, at time.Time) (int64, error) {
	n, err := f.Repository.Finish(ctx, batchUID, at)
	if err != nil {
		return n, err
	}
	return n - 1, nil
}

func TestRun_ConsistencyMismatchAborts(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := &finishTamperRepo{Repository: NewRepository(db)}
	svc := newTestService(t, repo)
	productID := seedProductID(t, db)

	seedReservation(t, db, productID, enums.ReservationStatusPicked, 2, 4000)

	_, err := svc.Run(ctx, testDate)
	if err == nil {
		t.Fatal("expected consistency error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConsistency {
		t.Fatalf("unexpected error: %v", err)
	}
}
