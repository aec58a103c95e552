package accounting

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const CategoryPayroll = "Payroll"

var ErrInvalidExpense = errors.New("expense needs a category and a non-negative amount")

type Expense struct {
	ID            string          `json:"id"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	Category      string          `json:"category"`
	PaymentMethod string          `json:"paymentMethod"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func Validate(e Expense) error {
	if strings.TrimSpace(e.Category) == "" || e.Amount.IsNegative() {
		return ErrInvalidExpense
	}
	return nil
}

func (s *Store) RecordExpense(ctx context.Context, e Expense) (Expense, error) {
	if err := Validate(e); err != nil {
		return Expense{}, err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	err := s.DB.QueryRow(ctx, `
    INSERT INTO expenses (amount, description, category, payment_method, created_at)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id
  `, e.Amount, e.Description, e.Category, e.PaymentMethod, e.CreatedAt).Scan(&e.ID)
	return e, err
}

func (s *Store) List(ctx context.Context, category string, limit int) ([]Expense, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, amount, description, category, payment_method, created_at
    FROM expenses
    WHERE ($1 = '' OR category = $1)
    ORDER BY created_at DESC
    LIMIT $2
  `, category, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Expense
	for rows.Next() {
		var e Expense
		if err := rows.Scan(&e.ID, &e.Amount, &e.Description, &e.Category, &e.PaymentMethod, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
