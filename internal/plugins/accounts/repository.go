package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/rootapp/internal/apperror"
)

// mysqlDuplicateEntry is the MySQL/MariaDB error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// AccountRepository defines the data access contract for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	FindByID(ctx context.Context, id string) (*Account, error)
	HandleExists(ctx context.Context, handle string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	List(ctx context.Context, offset, limit int) ([]Account, int, error)
}

// accountRepository implements AccountRepository with MariaDB queries.
type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new account repository backed by the given DB pool.
func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, handle, first_name, last_name, display_name, email, bio,
	is_active, last_login_at, created_at, updated_at`

// Create inserts a new account row.
func (r *accountRepository) Create(ctx context.Context, a *Account) error {
	query := `INSERT INTO accounts (id, handle, first_name, last_name, display_name, email, bio,
	                                is_active, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.Handle, a.FirstName, a.LastName, a.DisplayName, a.Email, a.Bio,
		a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	if isDuplicate(err) {
		return apperror.NewConflict("an account with this handle or email already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// FindByID retrieves an account by its UUID.
func (r *accountRepository) FindByID(ctx context.Context, id string) (*Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ?`

	a, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("account not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying account by id: %w", err)
	}
	return a, nil
}

// HandleExists reports whether the handle is taken.
func (r *accountRepository) HandleExists(ctx context.Context, handle string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE handle = ?)`, handle,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking handle: %w", err)
	}
	return exists, nil
}

// EmailExists reports whether the email is taken.
func (r *accountRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ?)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking account email: %w", err)
	}
	return exists, nil
}

// Delete removes an account. Returns NotFound if nothing was deleted.
func (r *accountRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	return requireRow(res, "account not found")
}

// SetActive flips the is_active flag. MariaDB reports zero affected rows
// when the value is unchanged, so existence is checked by the caller.
func (r *accountRepository) SetActive(ctx context.Context, id string, active bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating account activity: %w", err)
	}
	return nil
}

// UpdateLastLogin records the time of the latest successful login.
func (r *accountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET last_login_at = ? WHERE id = ?`, at, id,
	)
	if err != nil {
		return fmt.Errorf("updating last login: %w", err)
	}
	return nil
}

// List returns a page of accounts ordered by creation date, newest first,
// together with the total count.
func (r *accountRepository) List(ctx context.Context, offset, limit int) ([]Account, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting accounts: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning account: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating accounts: %w", err)
	}
	return out, total, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	a := &Account{}
	err := row.Scan(
		&a.ID, &a.Handle, &a.FirstName, &a.LastName, &a.DisplayName, &a.Email, &a.Bio,
		&a.IsActive, &a.LastLoginAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func requireRow(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NewNotFound(notFound)
	}
	return nil
}

func isDuplicate(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateEntry
}
