package stock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:stock_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.Product{}); err != nil {
		t.Fatalf("migrate products: %v", err)
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:         uuid.New(),
		Name:       "morning box",
		PriceCents: 1500,
		Stock:      stock,
		SellDate:   time.Now().UTC().Truncate(24 * time.Hour),
		Visible:    true,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

func TestReserve(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	seeded := seedProduct(t, db, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		product, terr := LockProduct(ctx, tx, seeded.ID)
		if terr != nil {
			return terr
		}
		return Reserve(ctx, tx, product, 3)
	})
	if err != nil {
		t.Fatalf("reserve transaction: %v", err)
	}

	var got models.Product
	if err := db.First(&got, "id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if got.Stock != 2 || got.TotalSold != 3 {
		t.Fatalf("unexpected product state: stock=%d total_sold=%d", got.Stock, got.TotalSold)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	seeded := seedProduct(t, db, 2)

	err := db.Transaction(func(tx *gorm.DB) error {
		product, terr := LockProduct(ctx, tx, seeded.ID)
		if terr != nil {
			return terr
		}
		return Reserve(ctx, tx, product, 3)
	})
	if err == nil {
		t.Fatal("expected insufficient stock error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}

	var got models.Product
	if err := db.First(&got, "id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if got.Stock != 2 || got.TotalSold != 0 {
		t.Fatalf("stock must be untouched after failed reserve: %+v", got)
	}
}

func TestReserveHiddenProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	seeded := seedProduct(t, db, 5)
	if err := db.Model(&models.Product{}).Where("id = ?", seeded.ID).Update("visible", false).Error; err != nil {
		t.Fatalf("hide product: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		product, terr := LockProduct(ctx, tx, seeded.ID)
		if terr != nil {
			return terr
		}
		return Reserve(ctx, tx, product, 1)
	})
	if err == nil {
		t.Fatal("expected validation error for hidden product")
	}
}

func TestRestock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	seeded := seedProduct(t, db, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		product, terr := LockProduct(ctx, tx, seeded.ID)
		if terr != nil {
			return terr
		}
		if terr := Reserve(ctx, tx, product, 4); terr != nil {
			return terr
		}
		return Restock(ctx, tx, product, 4)
	})
	if err != nil {
		t.Fatalf("reserve/restock transaction: %v", err)
	}

	var got models.Product
	if err := db.First(&got, "id = ?", seeded.ID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if got.Stock != 5 || got.TotalSold != 0 {
		t.Fatalf("restock must restore stock: %+v", got)
	}
}

func TestLockProductNotFound(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	_, err := LockProduct(context.Background(), db, uuid.New())
	if err == nil {
		t.Fatal("expected not found")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestReserveInvalidQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	seeded := seedProduct(t, db, 5)

	err := db.Transaction(func(tx *gorm.DB) error {
		product, terr := LockProduct(ctx, tx, seeded.ID)
		if terr != nil {
			return terr
		}
		return Reserve(ctx, tx, product, 0)
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("unexpected error: %v", err)
	}
}
