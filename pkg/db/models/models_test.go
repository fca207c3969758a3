package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// The schema must migrate on sqlite as well as postgres: the service tests
// all run against in-memory sqlite, so no column may carry a DDL default the
// driver cannot evaluate. IDs are minted in Go, not by the database.
func TestModelsMigrateOnSqlite(t *testing.T) {
	t.Parallel()

	dsn := "file:models_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&Product{}, &User{}, &Reservation{},
		&Order{}, &OrderItem{}, &Payment{},
		&SettlementEvent{}, &ProductDailyAgg{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sellDate := time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC)
	user := &User{ID: uuid.New(), UID: "u-" + uuid.NewString(), Name: "shopper"}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	product := &Product{
		ID:         uuid.New(),
		Name:       "morning box",
		PriceCents: 2000,
		Stock:      5,
		SellDate:   sellDate,
		Visible:    true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	reservation := &Reservation{
		ID:              uuid.New(),
		ProductID:       product.ID,
		UserID:          user.ID,
		Qty:             2,
		AmountCents:     4000,
		PickupDate:      sellDate,
		Status:          enums.ReservationStatusPending,
		StatusChangedAt: time.Now().UTC(),
	}
	if err := db.Create(reservation).Error; err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	order := &Order{
		ID:              uuid.New(),
		UserID:          user.ID,
		IdempotencyKey:  "migrate-1",
		Kind:            enums.OrderKindCourier,
		Status:          enums.OrderStatusPendingPayment,
		TotalCents:      4000,
		FulfillmentDate: sellDate,
		Address:         "12 Harbor St",
		Items: []OrderItem{{
			ID:          uuid.New(),
			ProductID:   product.ID,
			ProductName: product.Name,
			Qty:         2,
			AmountCents: 4000,
		}},
		Payments: []Payment{{
			ID:          uuid.New(),
			Provider:    "paygate",
			Status:      enums.PaymentStatusReady,
			AmountCents: 4000,
		}},
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	event := &SettlementEvent{
		ID:            uuid.New(),
		ReservationID: reservation.ID,
		Phase:         enums.SettlementPhasePickedPlus,
	}
	if err := db.Create(event).Error; err != nil {
		t.Fatalf("create settlement event: %v", err)
	}

	var loaded Order
	if err := db.Preload("Items").Preload("Payments").
		First(&loaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if loaded.ID != order.ID {
		t.Fatalf("round-trip id mismatch: %s vs %s", loaded.ID, order.ID)
	}
	if len(loaded.Items) != 1 || len(loaded.Payments) != 1 {
		t.Fatalf("expected 1 item and 1 payment, got %d and %d",
			len(loaded.Items), len(loaded.Payments))
	}
}
