package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
	"courier-dispatch/internal/service/delivery"
)

const deliveryColumns = `
    id, business_id, business_name, business_address, business_lat, business_lng,
    destination_address, destination_lat, destination_lng, item, payment::float8, status,
    assigned_to, delivered_by, created_at, updated_at, accepted_at, picked_up_at, delivered_at`

// DeliveryRepo represents delivery repository.
type DeliveryRepo struct {
	db *pgxpool.Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(db *pgxpool.Pool) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *DeliveryRepo) WithTx(ctx context.Context, fn func(tx delivery.TxRepository) error) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&TxRepo{tx: tx})
	})
}

// Insert stores a new delivery.
func (r *DeliveryRepo) Insert(ctx context.Context, d domain.Delivery) error {
	if _, err := insertDelivery(ctx, r.db, d, false); err != nil {
		return err
	}
	return nil
}

// InsertIfAbsent stores d unless its id already exists. It reports whether a row was written.
func (r *DeliveryRepo) InsertIfAbsent(ctx context.Context, d domain.Delivery) (bool, error) {
	return insertDelivery(ctx, r.db, d, true)
}

// Get loads one delivery.
func (r *DeliveryRepo) Get(ctx context.Context, id uuid.UUID) (domain.Delivery, error) {
	row := r.db.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id)
	d, err := scanDelivery(row)
	if err != nil {
		if IsNotFound(err) {
			return domain.Delivery{}, fmt.Errorf("delivery %s: %w", id, apperr.ErrNotFound)
		}
		return domain.Delivery{}, fmt.Errorf("get delivery %s: %w", id, err)
	}
	return d, nil
}

// List returns deliveries matching f, newest first.
func (r *DeliveryRepo) List(ctx context.Context, f delivery.Filter) ([]domain.Delivery, error) {
	where, args := buildFilter(f)
	args = append(args, limitOrAll(f.Limit), f.Offset)

	sql := `SELECT ` + deliveryColumns + ` FROM deliveries` + where +
		fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate deliveries: %w", err)
	}
	return out, nil
}

// HasActiveBetween reports whether businessID has a delivery currently held by courierID.
func (r *DeliveryRepo) HasActiveBetween(ctx context.Context, businessID, courierID string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM deliveries
            WHERE business_id = $1 AND assigned_to = $2 AND status IN ('accepted', 'picked_up')
        )
    `, businessID, courierID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check active deliveries: %w", err)
	}
	return ok, nil
}

// buildFilter renders f as a WHERE clause with positional args.
func buildFilter(f delivery.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.BusinessID != "" {
		conds = append(conds, "business_id = "+arg(f.BusinessID))
	}
	if f.CourierID != "" {
		me := arg(f.CourierID)
		own := fmt.Sprintf("assigned_to = %s OR delivered_by = %s", me, me)
		if f.CandidateBox != nil {
			b := f.CandidateBox
			own += fmt.Sprintf(
				" OR (status = 'posted' AND assigned_to IS NULL AND business_lat BETWEEN %s AND %s AND business_lng BETWEEN %s AND %s)",
				arg(b.MinLat), arg(b.MaxLat), arg(b.MinLng), arg(b.MaxLng),
			)
		}
		conds = append(conds, "("+own+")")
	}
	if len(f.Statuses) > 0 {
		ss := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			ss[i] = string(s)
		}
		conds = append(conds, "status = ANY("+arg(ss)+")")
	}
	if f.From != nil {
		conds = append(conds, "created_at >= "+arg(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "created_at < "+arg(*f.To))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// TxRepo represents transaction repository.
type TxRepo struct {
	tx pgx.Tx
}

// GetForUpdate loads a delivery and locks its row until the transaction ends.
func (r *TxRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Delivery, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1 FOR UPDATE`, id)
	d, err := scanDelivery(row)
	if err != nil {
		if IsNotFound(err) {
			return domain.Delivery{}, fmt.Errorf("delivery %s: %w", id, apperr.ErrNotFound)
		}
		return domain.Delivery{}, fmt.Errorf("lock delivery %s: %w", id, err)
	}
	return d, nil
}

// SaveTransition writes the lifecycle fields of d if the row is still in status from.
func (r *TxRepo) SaveTransition(ctx context.Context, from domain.Status, d domain.Delivery) error {
	ct, err := r.tx.Exec(ctx, `
        UPDATE deliveries
        SET status = $3, assigned_to = $4, delivered_by = $5, updated_at = $6,
            accepted_at = $7, picked_up_at = $8, delivered_at = $9
        WHERE id = $1 AND status = $2
    `, d.ID, string(from), string(d.Status), d.AssignedTo, d.DeliveredBy, d.UpdatedAt,
		d.AcceptedAt, d.PickedUpAt, d.DeliveredAt)
	if err != nil {
		return fmt.Errorf("save delivery %s: %w", d.ID, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("delivery %s left %s: %w", d.ID, from, apperr.ErrStaleState)
	}
	return nil
}

// CreditBalance adds a delivery payment to the courier balance.
func (r *TxRepo) CreditBalance(ctx context.Context, courierID string, amount float64) error {
	return creditBalance(ctx, r.tx, courierID, amount)
}

func insertDelivery(ctx context.Context, q querier, d domain.Delivery, skipExisting bool) (bool, error) {
	sql := `
        INSERT INTO deliveries (` + deliveryColumnsInsert + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
	if skipExisting {
		sql += ` ON CONFLICT (id) DO NOTHING`
	}
	ct, err := q.Exec(ctx, sql,
		d.ID, d.BusinessID, d.BusinessName, d.BusinessAddress, d.BusinessLocation.Lat, d.BusinessLocation.Lng,
		d.DestinationAddress, d.DestinationLocation.Lat, d.DestinationLocation.Lng, d.Item, d.Payment,
		string(d.Status), d.AssignedTo, d.DeliveredBy, d.CreatedAt, d.UpdatedAt,
		d.AcceptedAt, d.PickedUpAt, d.DeliveredAt,
	)
	if err != nil {
		switch {
		case IsDuplicate(err):
			return false, fmt.Errorf("delivery %s: %w", d.ID, apperr.ErrConflict)
		case IsForeignKey(err):
			return false, fmt.Errorf("delivery %s references an unknown account: %w", d.ID, apperr.ErrInvalid)
		}
		return false, fmt.Errorf("insert delivery %s: %w", d.ID, err)
	}
	return ct.RowsAffected() == 1, nil
}

const deliveryColumnsInsert = `
    id, business_id, business_name, business_address, business_lat, business_lng,
    destination_address, destination_lat, destination_lng, item, payment, status,
    assigned_to, delivered_by, created_at, updated_at, accepted_at, picked_up_at, delivered_at`

func scanDelivery(row pgx.Row) (domain.Delivery, error) {
	var (
		d      domain.Delivery
		status string
	)
	err := row.Scan(
		&d.ID, &d.BusinessID, &d.BusinessName, &d.BusinessAddress, &d.BusinessLocation.Lat, &d.BusinessLocation.Lng,
		&d.DestinationAddress, &d.DestinationLocation.Lat, &d.DestinationLocation.Lng, &d.Item, &d.Payment, &status,
		&d.AssignedTo, &d.DeliveredBy, &d.CreatedAt, &d.UpdatedAt, &d.AcceptedAt, &d.PickedUpAt, &d.DeliveredAt,
	)
	if err != nil {
		return domain.Delivery{}, err
	}
	d.Status = domain.Status(status)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return d, nil
}
