package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Payment is one finalized receipt record.
type Payment struct {
	ID      int64
	UserID  string
	Company string
	Date    time.Time
	Price   decimal.Decimal
}

type PaymentRepository interface {
	Insert(ctx context.Context, p *Payment) (int64, error)
	ListByUser(ctx context.Context, userID string) ([]Payment, error)
}

type paymentRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewPaymentRepository(pool *pgxpool.Pool, logger *slog.Logger) PaymentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &paymentRepository{pool: pool, logger: logger}
}

func (r *paymentRepository) Insert(ctx context.Context, p *Payment) (int64, error) {
	const q = `
INSERT INTO payments (user_id, company, date, price)
VALUES ($1, $2, $3, $4::numeric)
RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, q, p.UserID, p.Company, p.Date, p.Price.String()).Scan(&id)
	if err != nil {
		r.logger.Error("payments.insert.failed", "user_id", p.UserID, "error", err)
		return 0, err
	}
	r.logger.Info("payments.insert.ok", "payment_id", id, "user_id", p.UserID, "price", p.Price.String())
	return id, nil
}

func (r *paymentRepository) ListByUser(ctx context.Context, userID string) ([]Payment, error) {
	const q = `
SELECT id, company, date, price::text
FROM payments
WHERE user_id = $1
ORDER BY date DESC`

	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		r.logger.Error("payments.list.failed", "user_id", userID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		var price string
		if err := rows.Scan(&p.ID, &p.Company, &p.Date, &price); err != nil {
			return nil, err
		}
		p.UserID = userID
		p.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
