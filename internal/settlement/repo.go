package settlement

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/morningmarket/morningmarket-backend/pkg/db/models"
	"github.com/morningmarket/morningmarket-backend/pkg/enums"
)

// FoldDelta is one signed aggregate group produced by folding a batch.
type FoldDelta struct {
	SellDate    time.Time
	ProductID   uuid.UUID
	Quantity    int
	AmountCents int
}

// OrphanedBatch describes a claimed-but-unfinished cohort awaiting operator
// intervention.
type OrphanedBatch struct {
	BatchUID   string
	EventCount int64
	OldestMark time.Time
}

// Repository manages the settlement event ledger and daily aggregates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	MarkEligible(ctx context.Context, pickupDate time.Time) (int64, error)
	MarkNoShows(ctx context.Context, pickupDate time.Time) (int64, error)
	Claim(ctx context.Context, batchUID string) (int64, error)
	CountByPhase(ctx context.Context, batchUID string) (map[enums.SettlementPhase]int64, error)
	Fold(ctx context.Context, batchUID string) ([]FoldDelta, error)
	Finish(ctx context.Context, batchUID string, at time.Time) (int64, error)
	ListOrphanedBatches(ctx context.Context) ([]OrphanedBatch, error)
	AggregatesForDate(ctx context.Context, sellDate time.Time) ([]models.ProductDailyAgg, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a settlement repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// MarkEligible inserts picked_plus / self_pickup_ready_plus events for every
// reservation settled on pickupDate. Insert-ignore on (reservation_id,
// phase): re-running after a partial failure is safe.
func (r *repository) MarkEligible(ctx context.Context, pickupDate time.Time) (int64, error) {
	return r.markForStatuses(ctx, pickupDate,
		enums.ReservationStatusPicked, enums.ReservationStatusSelfPickReady)
}

// MarkNoShows inserts no_show_minus events for reservations swept to no_show
// on pickupDate, with the same insert-ignore contract.
func (r *repository) MarkNoShows(ctx context.Context, pickupDate time.Time) (int64, error) {
	return r.markForStatuses(ctx, pickupDate, enums.ReservationStatusNoShow)
}

func (r *repository) markForStatuses(ctx context.Context, pickupDate time.Time, statuses ...enums.ReservationStatus) (int64, error) {
	var reservations []models.Reservation
	if err := r.db.WithContext(ctx).
		Select("id", "status").
		Where("pickup_date = ? AND status IN ?", pickupDate, statuses).
		Find(&reservations).Error; err != nil {
		return 0, err
	}
	if len(reservations) == 0 {
		return 0, nil
	}

	events := make([]models.SettlementEvent, 0, len(reservations))
	for _, reservation := range reservations {
		phase, ok := enums.PhaseForReservationStatus(reservation.Status)
		if !ok {
			continue
		}
		events = append(events, models.SettlementEvent{
			ID:            uuid.New(),
			ReservationID: reservation.ID,
			Phase:         phase,
		})
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reservation_id"}, {Name: "phase"}},
			DoNothing: true,
		}).
		Create(&events)
	return res.RowsAffected, res.Error
}

// Claim stamps every unclaimed, unprocessed event with the batch token. A
// single conditional UPDATE: two concurrent claimers get disjoint cohorts
// because a row matches `batch_uid IS NULL` for at most one of them.
func (r *repository) Claim(ctx context.Context, batchUID string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.SettlementEvent{}).
		Where("processed = ? AND batch_uid IS NULL", false).
		Update("batch_uid", batchUID)
	return res.RowsAffected, res.Error
}

func (r *repository) CountByPhase(ctx context.Context, batchUID string) (map[enums.SettlementPhase]int64, error) {
	var rows []struct {
		Phase enums.SettlementPhase
		N     int64
	}
	if err := r.db.WithContext(ctx).Model(&models.SettlementEvent{}).
		Select("phase, COUNT(*) AS n").
		Where("batch_uid = ? AND processed = ?", batchUID, false).
		Group("phase").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[enums.SettlementPhase]int64, len(rows))
	for _, row := range rows {
		counts[row.Phase] = row.N
	}
	return counts, nil
}

// Fold aggregates the signed quantity/amount of exactly the rows carrying the
// batch token, grouped by (pickup_date, product_id), and adds the deltas into
// product_daily_aggs. Re-runnable for the same token until Finish commits.
func (r *repository) Fold(ctx context.Context, batchUID string) ([]FoldDelta, error) {
	var deltas []FoldDelta
	err := r.db.WithContext(ctx).Raw(`
		SELECT r.pickup_date AS sell_date,
		       r.product_id AS product_id,
		       SUM(CASE WHEN e.phase = ? THEN -r.qty ELSE r.qty END) AS quantity,
		       SUM(CASE WHEN e.phase = ? THEN -r.amount_cents ELSE r.amount_cents END) AS amount_cents
		FROM settlement_events e
		JOIN reservations r ON r.id = e.reservation_id
		WHERE e.batch_uid = ? AND e.processed = ?
		GROUP BY r.pickup_date, r.product_id`,
		enums.SettlementPhaseNoShowMinus, enums.SettlementPhaseNoShowMinus,
		batchUID, false,
	).Scan(&deltas).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	for _, delta := range deltas {
		if err := r.db.WithContext(ctx).Exec(`
			INSERT INTO product_daily_aggs (sell_date, product_id, quantity, amount_cents, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (sell_date, product_id) DO UPDATE SET
				quantity = product_daily_aggs.quantity + excluded.quantity,
				amount_cents = product_daily_aggs.amount_cents + excluded.amount_cents,
				updated_at = excluded.updated_at`,
			delta.SellDate, delta.ProductID, delta.Quantity, delta.AmountCents, now,
		).Error; err != nil {
			return nil, err
		}
	}
	return deltas, nil
}

// Finish marks the batch's rows processed and clears the token. The returned
// count is compared against the claim count; the comparison is the
// exactly-once boundary.
func (r *repository) Finish(ctx context.Context, batchUID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.SettlementEvent{}).
		Where("batch_uid = ? AND processed = ?", batchUID, false).
		Updates(map[string]any{
			"processed":    true,
			"processed_at": at,
			"batch_uid":    nil,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListOrphanedBatches(ctx context.Context) ([]OrphanedBatch, error) {
	var rows []struct {
		BatchUID   string
		EventCount int64
	}
	if err := r.db.WithContext(ctx).Model(&models.SettlementEvent{}).
		Select("batch_uid, COUNT(*) AS event_count").
		Where("processed = ? AND batch_uid IS NOT NULL", false).
		Group("batch_uid").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	// The oldest mark is read through the model so the timestamp decodes
	// the same on every backend. Orphan cohorts are rare, so the extra
	// query per batch does not matter.
	orphans := make([]OrphanedBatch, 0, len(rows))
	for _, row := range rows {
		var oldest models.SettlementEvent
		if err := r.db.WithContext(ctx).
			Where("batch_uid = ? AND processed = ?", row.BatchUID, false).
			Order("created_at ASC").
			First(&oldest).Error; err != nil {
			return nil, err
		}
		orphans = append(orphans, OrphanedBatch{
			BatchUID:   row.BatchUID,
			EventCount: row.EventCount,
			OldestMark: oldest.CreatedAt,
		})
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].OldestMark.Before(orphans[j].OldestMark)
	})
	return orphans, nil
}

func (r *repository) AggregatesForDate(ctx context.Context, sellDate time.Time) ([]models.ProductDailyAgg, error) {
	var aggs []models.ProductDailyAgg
	if err := r.db.WithContext(ctx).
		Where("sell_date = ?", sellDate).
		Order("product_id ASC").
		Find(&aggs).Error; err != nil {
		return nil, err
	}
	return aggs, nil
}
