package repository

import (
	"database/sql"
	"fmt"
	"time"

	"taskhive/internal/database"
	"taskhive/internal/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = "id, name, username, email, password_hash, roles, email_verified, created_at, updated_at"

// CreateUser inserts a new user into the database
func (r *UserRepository) CreateUser(name, username, email, passwordHash string, roles []string) (*models.User, error) {
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}

	query := `
		INSERT INTO users (name, username, email, password_hash, roles)
		VALUES (?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(query, name, username, email, passwordHash, models.JoinRoles(roles))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return &models.User{
		ID:           id,
		Name:         name,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Roles:        roles,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}, nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(id int64) (*models.User, error) {
	return r.getUser("SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetUserByUsername retrieves a user by username
func (r *UserRepository) GetUserByUsername(username string) (*models.User, error) {
	return r.getUser("SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// GetUserByEmail retrieves a user by email address
func (r *UserRepository) GetUserByEmail(email string) (*models.User, error) {
	return r.getUser("SELECT "+userColumns+" FROM users WHERE email = ?", email)
}

func (r *UserRepository) getUser(query string, arg interface{}) (*models.User, error) {
	user := &models.User{}
	var roles string

	err := r.db.QueryRow(query, arg).Scan(
		&user.ID,
		&user.Name,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&roles,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Roles = models.SplitRoles(roles)
	return user, nil
}

// UpdateUser persists mutable profile fields
func (r *UserRepository) UpdateUser(user *models.User) error {
	query := `
		UPDATE users
		SET name = ?, username = ?, email = ?, roles = ?, email_verified = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query, user.Name, user.Username, user.Email,
		models.JoinRoles(user.Roles), user.EmailVerified, time.Now(), user.ID)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// SetEmailVerified marks the user's email address as verified
func (r *UserRepository) SetEmailVerified(id int64) error {
	_, err := r.db.Exec("UPDATE users SET email_verified = ?, updated_at = ? WHERE id = ?",
		true, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the user's password hash
func (r *UserRepository) UpdatePasswordHash(id int64, passwordHash string) error {
	_, err := r.db.Exec("UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		passwordHash, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}

// DeleteUser removes a user; tasks cascade via the foreign key
func (r *UserRepository) DeleteUser(id int64) error {
	_, err := r.db.Exec("DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

// ListUsers returns all users ordered by id
func (r *UserRepository) ListUsers() ([]models.User, error) {
	rows, err := r.db.Query("SELECT " + userColumns + " FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var roles string
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Username,
			&user.Email,
			&user.PasswordHash,
			&roles,
			&user.EmailVerified,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.Roles = models.SplitRoles(roles)
		users = append(users, user)
	}

	return users, rows.Err()
}
