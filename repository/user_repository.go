package repository

import (
	"context"
	"errors"
	"fmt"

	"arenaserver/database"
	"arenaserver/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const userColumns = `id, username, balance, banned, report_count, created_at, updated_at`

// UserRepository implements the UserRepository interface
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Balance,
		&user.Banned,
		&user.ReportCount,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Create inserts a user with an opening balance. Accounts are provisioned
// outside this service; this exists for seeding and tests.
func (r *UserRepository) Create(ctx context.Context, username string, balance decimal.Decimal) (*models.User, error) {
	query := `
		INSERT INTO users (username, balance)
		VALUES ($1, $2)
		RETURNING ` + userColumns

	user, err := scanUser(r.q.QueryRow(ctx, query, username, balance))
	if err != nil {
		return nil, storeError(fmt.Sprintf("create user %q", username), err)
	}
	return user, nil
}

// GetByID retrieves a user by id
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(fmt.Sprintf("get user %d", id), err)
	}
	return user, nil
}

// GetForUpdate retrieves a user and locks the row for the rest of the transaction
func (r *UserRepository) GetForUpdate(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

	user, err := scanUser(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError(fmt.Sprintf("lock user %d", id), err)
	}
	return user, nil
}

// AddBalance adds to a user's balance atomically
func (r *UserRepository) AddBalance(ctx context.Context, id int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE users
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.q.Exec(ctx, query, amount, id)
	if err != nil {
		return storeError(fmt.Sprintf("add balance for user %d", id), err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}

// DeductBalance deducts from a user's balance, failing if funds are insufficient
func (r *UserRepository) DeductBalance(ctx context.Context, id int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}

	query := `
		UPDATE users
		SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1
	`
	result, err := r.q.Exec(ctx, query, amount, id)
	if err != nil {
		return storeError(fmt.Sprintf("deduct balance for user %d", id), err)
	}

	if result.RowsAffected() == 0 {
		user, err := r.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if user == nil {
			return fmt.Errorf("user %d not found", id)
		}
		return fmt.Errorf("%w: have %s, need %s", models.ErrInsufficientBalance, user.Balance.StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

// IncrementReportCount bumps the report counter and returns the new value
func (r *UserRepository) IncrementReportCount(ctx context.Context, id int64) (int, error) {
	query := `
		UPDATE users
		SET report_count = report_count + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING report_count
	`
	var count int
	err := r.q.QueryRow(ctx, query, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("user %d not found", id)
	}
	if err != nil {
		return 0, storeError(fmt.Sprintf("increment report count for user %d", id), err)
	}
	return count, nil
}

// SetBanned sets the ban flag of a user
func (r *UserRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	query := `UPDATE users SET banned = $1, updated_at = NOW() WHERE id = $2`

	result, err := r.q.Exec(ctx, query, banned, id)
	if err != nil {
		return storeError(fmt.Sprintf("set banned for user %d", id), err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", id)
	}
	return nil
}
