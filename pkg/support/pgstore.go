package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the Postgres-backed Store. Nested documents (address,
// contract, charges, plan pricing) live in jsonb columns so the schema
// follows the domain types instead of flattening them.
type PGStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPGStore(ctx context.Context, dsn string, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PGStore{pool: pool, logger: logger}, nil
}

func (s *PGStore) Close() {
	s.pool.Close()
}

// mapErr keeps the outage/missing-record distinction: only a true "no
// rows" becomes ErrNotFound, everything else reports the store as
// unavailable.
func (s *PGStore) mapErr(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	s.logger.Error("store query failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func (s *PGStore) FindCustomer(ctx context.Context, identifier string) (*Customer, error) {
	const q = `
		SELECT customer_id, name, name_kana, phone, phone_last_four, email,
		       address, contract, meter_type, payment_method
		FROM customers
		WHERE customer_id = $1 OR phone_last_four = $1
		LIMIT 1`

	var c Customer
	err := s.pool.QueryRow(ctx, q, identifier).Scan(
		&c.CustomerID, &c.Name, &c.NameKana, &c.Phone, &c.PhoneLastFour, &c.Email,
		&c.Address, &c.Contract, &c.MeterType, &c.PaymentMethod,
	)
	if err != nil {
		return nil, s.mapErr("find customer", err)
	}
	return &c, nil
}

func (s *PGStore) BillingHistory(ctx context.Context, customerID string, months int) ([]Billing, error) {
	const q = `
		SELECT id, customer_id, year, month, period_days, usage, charges,
		       payment_status, payment_due_date, plan_id, plan_name
		FROM billings
		WHERE customer_id = $1
		ORDER BY year DESC, month DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, customerID, months)
	if err != nil {
		return nil, s.mapErr("billing history", err)
	}
	defer rows.Close()

	var billings []Billing
	for rows.Next() {
		var b Billing
		if err := rows.Scan(
			&b.ID, &b.CustomerID, &b.Period.Year, &b.Period.Month, &b.Period.Days,
			&b.Usage, &b.Charges, &b.PaymentStatus, &b.PaymentDueDate, &b.PlanID, &b.PlanName,
		); err != nil {
			return nil, s.mapErr("billing history", err)
		}
		billings = append(billings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapErr("billing history", err)
	}
	if len(billings) == 0 {
		return nil, ErrNotFound
	}
	return billings, nil
}

func (s *PGStore) CurrentUsage(ctx context.Context, customerID string) (*CurrentUsage, error) {
	const q = `
		SELECT customer_id, year, month, total_kwh_to_date, days_elapsed,
		       estimated_monthly_kwh, estimated_monthly_charge, last_updated
		FROM current_usages
		WHERE customer_id = $1
		ORDER BY year DESC, month DESC
		LIMIT 1`

	var u CurrentUsage
	err := s.pool.QueryRow(ctx, q, customerID).Scan(
		&u.CustomerID, &u.Year, &u.Month, &u.TotalKwhToDate, &u.DaysElapsed,
		&u.EstimatedMonthlyKwh, &u.EstimatedMonthlyCharge, &u.LastUpdated,
	)
	if err != nil {
		return nil, s.mapErr("current usage", err)
	}
	return &u, nil
}

func (s *PGStore) AvailablePlans(ctx context.Context) ([]Plan, error) {
	const q = `SELECT doc FROM plans WHERE is_available ORDER BY id`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, s.mapErr("available plans", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p); err != nil {
			return nil, s.mapErr("available plans", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.mapErr("available plans", err)
	}
	return plans, nil
}

func (s *PGStore) PlanByID(ctx context.Context, planID string) (*Plan, error) {
	const q = `SELECT doc FROM plans WHERE id = $1`

	var p Plan
	if err := s.pool.QueryRow(ctx, q, planID).Scan(&p); err != nil {
		return nil, s.mapErr("plan by id", err)
	}
	return &p, nil
}

func (s *PGStore) CreatePlanChangeRequest(ctx context.Context, req *PlanChangeRequest) error {
	const q = `
		INSERT INTO plan_change_requests
			(id, customer_id, current_plan, requested_plan, status, requested_effective_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		req.ID, req.CustomerID, req.CurrentPlan, req.RequestedPlan,
		req.Status, req.RequestedEffectiveDate, req.CreatedAt,
	)
	if err != nil {
		return s.mapErr("create plan change request", err)
	}
	return nil
}
