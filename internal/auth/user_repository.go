package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsimate/opsimate-core/internal/infrastructure/database"
)

// UserRepository defines the interface for user account persistence.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	CreateFirstAdmin(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	UpdateRole(ctx context.Context, email string, role Role) error
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}

// SQLUserRepository implements UserRepository on the database facade.
type SQLUserRepository struct {
	db database.Handle
}

var _ UserRepository = (*SQLUserRepository)(nil)

// NewUserRepository creates a new user repository.
func NewUserRepository(db database.Handle) *SQLUserRepository {
	return &SQLUserRepository{db: db}
}

const userColumns = "id, email, full_name, password_hash, role, created_at"

type userRow struct {
	ID           int64  `db:"id"`
	Email        string `db:"email"`
	FullName     string `db:"full_name"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	CreatedAt    string `db:"created_at"`
}

func (row userRow) toUser() User {
	u := User{
		ID:           row.ID,
		Email:        row.Email,
		FullName:     row.FullName,
		PasswordHash: row.PasswordHash,
		Role:         Role(row.Role),
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, row.CreatedAt) //nolint:errcheck // format is controlled
	return u
}

// Create inserts a new user account and sets its ID and CreatedAt.
func (r *SQLUserRepository) Create(ctx context.Context, user *User) error {
	return insertUser(ctx, r.db, user)
}

// CreateFirstAdmin inserts user as admin only when no account exists yet.
// The check and insert share a transaction. On PostgreSQL the users table
// is locked for the transaction so concurrent registrations serialise;
// SQLite already runs every transaction on its single connection.
// Returns ErrRegistrationClosed when any user is already present.
func (r *SQLUserRepository) CreateFirstAdmin(ctx context.Context, user *User) error {
	return r.db.Transaction(ctx, func(tx database.Queryer) error {
		if r.db.Kind() == database.KindPostgres {
			if err := tx.Exec(ctx, "LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE"); err != nil {
				return fmt.Errorf("locking users: %w", err)
			}
		}

		var count int
		if err := tx.Prepare("SELECT COUNT(*) FROM users").Get(ctx, &count); err != nil {
			return fmt.Errorf("counting users: %w", err)
		}
		if count > 0 {
			return ErrRegistrationClosed
		}
		user.Role = RoleAdmin
		return insertUser(ctx, tx, user)
	})
}

func insertUser(ctx context.Context, q database.Queryer, user *User) error {
	user.Email = NormaliseEmail(user.Email)
	if user.Role == "" {
		user.Role = RoleViewer
	}

	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt = now

	var id int64
	err := q.Prepare(`
		INSERT INTO users (email, full_name, password_hash, role, created_at)
		VALUES (?, ?, ?, ?, ?) RETURNING id`,
	).Get(ctx, &id, user.Email, user.FullName, user.PasswordHash, string(user.Role), now.Format(time.RFC3339))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	user.ID = id
	return nil
}

// GetByID retrieves a user by their ID.
func (r *SQLUserRepository) GetByID(ctx context.Context, id int64) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByEmail retrieves a user by email address (case-insensitive).
func (r *SQLUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", NormaliseEmail(email))
}

// List returns all users ordered by ID.
func (r *SQLUserRepository) List(ctx context.Context) ([]User, error) {
	var rows []userRow
	query := "SELECT " + userColumns + " FROM users ORDER BY id ASC"
	if err := r.db.Prepare(query).All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}

	users := make([]User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toUser())
	}
	return users, nil
}

// UpdateRole changes the role of the user with the given email.
func (r *SQLUserRepository) UpdateRole(ctx context.Context, email string, role Role) error {
	res, err := r.db.Prepare("UPDATE users SET role = ? WHERE email = ?").
		Run(ctx, string(role), NormaliseEmail(email))
	if err != nil {
		return fmt.Errorf("updating user role: %w", err)
	}
	if res.Changes == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user account by ID.
func (r *SQLUserRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.Prepare("DELETE FROM users WHERE id = ?").Run(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if res.Changes == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Count returns the total number of user accounts.
func (r *SQLUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.Prepare("SELECT COUNT(*) FROM users").Get(ctx, &count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

func (r *SQLUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	var row userRow
	if err := r.db.Prepare(query).Get(ctx, &row, args...); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("getting user: %w", err)
	}
	u := row.toUser()
	return &u, nil
}
