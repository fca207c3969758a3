package stock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
)

// LockProduct loads the product row under FOR UPDATE. Every stock mutation in
// the same transaction must go through the returned row; concurrent reservers
// serialize here.
func LockProduct(ctx context.Context, tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction is required")
	}
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}

	var product models.Product
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "locking product")
	}
	return &product, nil
}

// Reserve deducts qty from the locked product's stock and bumps total_sold.
// The caller must hold the row lock from LockProduct.
func Reserve(ctx context.Context, tx *gorm.DB, product *models.Product, qty int) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "locked product is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if !product.Visible {
		return pkgerrors.New(pkgerrors.CodeValidation, "product is not for sale")
	}
	if product.Stock < qty {
		return pkgerrors.New(pkgerrors.CodeValidation, "insufficient stock").
			WithDetails(map[string]any{"available": product.Stock, "requested": qty})
	}

	product.Stock -= qty
	product.TotalSold += qty
	return tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"stock":      product.Stock,
			"total_sold": product.TotalSold,
		}).Error
}

// Restock returns qty to the locked product's stock, reversing an earlier
// Reserve. The caller must hold the row lock from LockProduct.
func Restock(ctx context.Context, tx *gorm.DB, product *models.Product, qty int) error {
	if product == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "locked product is required")
	}
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	product.Stock += qty
	product.TotalSold -= qty
	if product.TotalSold < 0 {
		product.TotalSold = 0
	}
	return tx.WithContext(ctx).Model(&models.Product{}).
		Where("id = ?", product.ID).
		Updates(map[string]any{
			"stock":      product.Stock,
			"total_sold": product.TotalSold,
		}).Error
}
