package orders

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/morningmarket/morningmarket-backend/pkg/config"
	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	pkgerrors "github.com/morningmarket/morningmarket-backend/pkg/errors"
	"github.com/morningmarket/morningmarket-backend/pkg/geo"
)

type geocoder interface {
	Geocode(ctx context.Context, address string) (*geo.LatLng, error)
}

// FeeCalculator prices delivery by distance tiers from the store origin and
// courier shipments from per-product fee templates.
type FeeCalculator struct {
	store config.StoreConfig
	geo   geocoder
}

// NewFeeCalculator builds a fee calculator from store config and a geocoder.
func NewFeeCalculator(store config.StoreConfig, geocoder geocoder) *FeeCalculator {
	return &FeeCalculator{store: store, geo: geocoder}
}

// DeliveryFee geocodes the address and prices the trip. Addresses beyond the
// delivery radius are rejected with a validation error.
func (f *FeeCalculator) DeliveryFee(ctx context.Context, address string) (feeCents int, surchargeCents int, err error) {
	if f.geo == nil {
		return 0, 0, pkgerrors.New(pkgerrors.CodeDependency, "geocoder not configured")
	}
	loc, err := f.geo.Geocode(ctx, address)
	if err != nil {
		return 0, 0, err
	}

	origin := geo.LatLng{Latitude: f.store.OriginLat, Longitude: f.store.OriginLng}
	km := decimal.NewFromFloat(geo.DistanceKm(origin, *loc))

	if km.GreaterThan(decimal.NewFromInt(int64(f.store.DeliveryMaxKm))) {
		return 0, 0, pkgerrors.New(pkgerrors.CodeValidation, "address is outside the delivery area").
			WithDetails(map[string]any{"distance_km": km.Round(1).String(), "max_km": f.store.DeliveryMaxKm})
	}

	fee := decimal.NewFromInt(int64(f.store.DeliveryBaseFeeCents))
	billable := km.Sub(decimal.NewFromInt(int64(f.store.DeliveryFreeKm)))
	if billable.IsPositive() {
		fee = fee.Add(billable.Ceil().Mul(decimal.NewFromInt(int64(f.store.DeliveryPerKmCents))))
	}

	surcharge := decimal.Zero
	if km.GreaterThan(decimal.NewFromInt(int64(f.store.DeliverySurchargeAfterKm))) {
		surcharge = decimal.NewFromInt(int64(f.store.DeliverySurchargeCents))
	}

	return int(fee.IntPart()), int(surcharge.IntPart()), nil
}

// CourierFee prices a courier shipment from the product fee templates: the
// highest per-product fee applies, waived entirely once the product subtotal
// clears every free-shipping threshold on the order.
func (f *FeeCalculator) CourierFee(products []models.Product, productAmountCents int) int {
	fee := 0
	waived := true
	for _, product := range products {
		if product.ShippingFeeCents > fee {
			fee = product.ShippingFeeCents
		}
		if product.ShippingFreeOverCents == 0 || productAmountCents < product.ShippingFreeOverCents {
			waived = false
		}
	}
	if waived {
		return 0
	}
	return fee
}
