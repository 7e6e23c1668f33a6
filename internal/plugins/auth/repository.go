package auth

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

// CredentialRepository defines the data access contract for credentials.
// All SQL lives in the concrete implementation. Password writes accept only
// a HashedPassword.
type CredentialRepository interface {
	Create(ctx context.Context, cred *Credential, hash HashedPassword) error
	FindByID(ctx context.Context, id string) (*Credential, error)
	FindByUsername(ctx context.Context, username string) (*Credential, error)
	FindByEmail(ctx context.Context, email string) (*Credential, error)
	FindByAccountID(ctx context.Context, accountID string) (*Credential, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, offset, limit int) ([]Credential, int, error)
	UpdatePassword(ctx context.Context, id string, hash HashedPassword, at time.Time) error
	Delete(ctx context.Context, id string) error
	Touch(ctx context.Context, id string, at time.Time) error

	// Password reset.
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string) error
	FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*Credential, error)

	// ConsumeResetToken replaces the password and clears the reset columns
	// only if the token hash still matches and has not expired. It reports
	// whether a row was updated; exactly one of several concurrent callers
	// gets true.
	ConsumeResetToken(ctx context.Context, id, tokenHash string, hash HashedPassword, now time.Time) (bool, error)
}

// credentialRepository implements CredentialRepository with MariaDB queries.
type credentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new credential repository backed by the given DB pool.
func NewCredentialRepository(db *sql.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

const credentialColumns = `id, account_id, username, email, password_hash,
	reset_token_hash, reset_token_expires_at, last_active_at, created_at, updated_at`

// Create inserts a credential with the given password hash.
func (r *credentialRepository) Create(ctx context.Context, c *Credential, hash HashedPassword) error {
	if hash.IsZero() {
		return errors.New("inserting credential: empty password hash")
	}

	query := `INSERT INTO credentials (id, account_id, username, email, password_hash,
	                                   last_active_at, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.AccountID, c.Username, c.Email, hash.Encoded(),
		c.CreatedAt, c.CreatedAt, c.UpdatedAt,
	)
	if isDuplicate(err) {
		return apperror.NewConflict("a credential with this username or email already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting credential: %w", err)
	}

	c.PasswordHash = hash.Encoded()
	return nil
}

func (r *credentialRepository) FindByID(ctx context.Context, id string) (*Credential, error) {
	return r.findOne(ctx, `id = ?`, id)
}

func (r *credentialRepository) FindByUsername(ctx context.Context, username string) (*Credential, error) {
	return r.findOne(ctx, `username = ?`, username)
}

func (r *credentialRepository) FindByEmail(ctx context.Context, email string) (*Credential, error) {
	return r.findOne(ctx, `email = ?`, email)
}

// FindByAccountID returns the oldest credential of an account.
func (r *credentialRepository) FindByAccountID(ctx context.Context, accountID string) (*Credential, error) {
	return r.findOne(ctx, `account_id = ? ORDER BY created_at LIMIT 1`, accountID)
}

// FindByResetToken returns the credential holding an unexpired reset token
// with the given hash.
func (r *credentialRepository) FindByResetToken(ctx context.Context, tokenHash string, now time.Time) (*Credential, error) {
	return r.findOne(ctx, `reset_token_hash = ? AND reset_token_expires_at > ?`, tokenHash, now)
}

func (r *credentialRepository) findOne(ctx context.Context, where string, args ...any) (*Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE ` + where

	c, err := scanCredential(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("credential not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

func (r *credentialRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM credentials WHERE username = ?)`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}
	return exists, nil
}

func (r *credentialRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM credentials WHERE email = ?)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking credential email: %w", err)
	}
	return exists, nil
}

// List returns a page of credentials ordered by creation date, newest first,
// together with the total count.
func (r *credentialRepository) List(ctx context.Context, offset, limit int) ([]Credential, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting credentials: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+credentialColumns+` FROM credentials ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("listing credentials: %w", err)
	}
	defer rows.Close()

	var out []Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning credential: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating credentials: %w", err)
	}
	return out, total, nil
}

// UpdatePassword stores a new hash. Any outstanding reset token is cleared
// with it.
func (r *credentialRepository) UpdatePassword(ctx context.Context, id string, hash HashedPassword, at time.Time) error {
	if hash.IsZero() {
		return errors.New("updating password: empty password hash")
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials
		    SET password_hash = ?, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = ?
		  WHERE id = ?`,
		hash.Encoded(), at, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireRow(res, "credential not found")
}

func (r *credentialRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	return requireRow(res, "credential not found")
}

// Touch records activity on the credential. A missing row is not an error.
func (r *credentialRepository) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET last_active_at = ? WHERE id = ?`, at, id,
	)
	if err != nil {
		return fmt.Errorf("touching credential: %w", err)
	}
	return nil
}

// SetResetToken stores the hash of a new reset token, replacing any
// previous one.
func (r *credentialRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET reset_token_hash = ?, reset_token_expires_at = ? WHERE id = ?`,
		tokenHash, expiresAt, id,
	)
	if err != nil {
		return fmt.Errorf("storing reset token: %w", err)
	}
	return requireRow(res, "credential not found")
}

func (r *credentialRepository) ClearResetToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET reset_token_hash = NULL, reset_token_expires_at = NULL WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("clearing reset token: %w", err)
	}
	return nil
}

func (r *credentialRepository) ConsumeResetToken(ctx context.Context, id, tokenHash string, hash HashedPassword, now time.Time) (bool, error) {
	if hash.IsZero() {
		return false, errors.New("consuming reset token: empty password hash")
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials
		    SET password_hash = ?, reset_token_hash = NULL, reset_token_expires_at = NULL, updated_at = ?
		  WHERE id = ? AND reset_token_hash = ? AND reset_token_expires_at > ?`,
		hash.Encoded(), now, id, tokenHash, now,
	)
	if err != nil {
		return false, fmt.Errorf("consuming reset token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*Credential, error) {
	c := &Credential{}
	err := row.Scan(
		&c.ID, &c.AccountID, &c.Username, &c.Email, &c.PasswordHash,
		&c.ResetTokenHash, &c.ResetTokenExpiresAt, &c.LastActiveAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
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
