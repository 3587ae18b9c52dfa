package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskhive/internal/credential"
	"taskhive/internal/models"
	"taskhive/internal/repository"
	"taskhive/internal/security"
	"taskhive/internal/validation"
)

var ErrUserNotFound = errors.New("user not found")

// Mailer is the slice of EmailService the user flows need
type Mailer interface {
	SendOTPEmail(ctx context.Context, toEmail, toName, code string) error
	SendPasswordResetEmail(ctx context.Context, toEmail, toName, resetToken string) error
	SendWelcomeEmail(ctx context.Context, toEmail, toName string) error
}

// UserService handles email verification and password reset flows
type UserService struct {
	userRepo *repository.UserRepository
	creds    credential.Store
	mailer   Mailer
	otpTTL   time.Duration
	resetTTL time.Duration
}

// NewUserService creates a new user service
func NewUserService(userRepo *repository.UserRepository, creds credential.Store, mailer Mailer, otpTTL, resetTTL time.Duration) *UserService {
	return &UserService{
		userRepo: userRepo,
		creds:    creds,
		mailer:   mailer,
		otpTTL:   otpTTL,
		resetTTL: resetTTL,
	}
}

// GetUser returns a user by ID, or nil if not found
func (s *UserService) GetUser(id int64) (*models.User, error) {
	return s.userRepo.GetUserByID(id)
}

// ListUsers returns all accounts
func (s *UserService) ListUsers() ([]models.User, error) {
	return s.userRepo.ListUsers()
}

// UpdateProfile changes the user's display name and email address.
// Changing the address drops the verified flag until it is re-confirmed.
func (s *UserService) UpdateProfile(id int64, name, email string) (*models.User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, validation.ValidationError{Field: "name", Message: "name is required"}
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetUserByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	if email != user.Email {
		existing, err := s.userRepo.GetUserByEmail(email)
		if err != nil {
			return nil, fmt.Errorf("failed to check existing user: %w", err)
		}
		if existing != nil && existing.ID != id {
			return nil, ErrEmailTaken
		}
		user.EmailVerified = false
	}

	user.Name = name
	user.Email = email
	if err := s.userRepo.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// UpdateRoles replaces the user's role set
func (s *UserService) UpdateRoles(id int64, roles []string) (*models.User, error) {
	for _, role := range roles {
		if role != models.RoleUser && role != models.RoleAdmin {
			return nil, validation.ValidationError{Field: "roles", Message: fmt.Sprintf("unknown role %q", role)}
		}
	}

	user, err := s.userRepo.GetUserByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	user.Roles = roles
	if err := s.userRepo.UpdateUser(user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// DeleteUser removes the account and, via the foreign key, its tasks
func (s *UserService) DeleteUser(id int64) error {
	user, err := s.userRepo.GetUserByID(id)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := s.userRepo.DeleteUser(id); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	log.Printf("Deleted user %s (id %d)", user.Username, user.ID)
	return nil
}

// BeginEmailVerification issues a one-time code for the address and mails
// it out. An unknown address is a silent success so the endpoint cannot be
// used to probe which emails have accounts.
func (s *UserService) BeginEmailVerification(ctx context.Context, email string) error {
	user, err := s.userRepo.GetUserByEmail(email)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		log.Printf("Verification requested for unknown email %s", email)
		return nil
	}

	code, err := s.creds.Issue(ctx, credential.KindOTP, email, user.Username, s.otpTTL)
	if err != nil {
		return fmt.Errorf("failed to issue verification code: %w", err)
	}

	if err := s.mailer.SendOTPEmail(ctx, user.Email, user.Name, code); err != nil {
		return fmt.Errorf("failed to send verification email: %w", err)
	}
	return nil
}

// ConfirmEmailVerification redeems a one-time code and marks the address
// verified. All failure causes come back as credential.ErrInvalid.
func (s *UserService) ConfirmEmailVerification(ctx context.Context, email, code string) error {
	username, err := s.creds.Redeem(ctx, credential.KindOTP, email, code)
	if err != nil {
		return err
	}

	user, err := s.userRepo.GetUserByUsername(username)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return credential.ErrInvalid
	}

	if err := s.userRepo.SetEmailVerified(user.ID); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	log.Printf("Email verified for user %s", user.Username)
	return nil
}

// BeginPasswordReset issues a reset token for the account and mails a
// reset link. The identifier may be a username or an email address, and
// an unknown identifier is a silent success.
//
// The emailed token is selector.verifier: the selector keys the store
// entry and only the verifier is compared at redemption, so the token
// alone is enough to redeem without putting the username in the link.
func (s *UserService) BeginPasswordReset(ctx context.Context, identifier string) error {
	user, err := s.userRepo.GetUserByUsername(identifier)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		user, err = s.userRepo.GetUserByEmail(identifier)
		if err != nil {
			return fmt.Errorf("failed to get user: %w", err)
		}
	}
	if user == nil {
		log.Printf("Password reset requested for unknown identifier %s", identifier)
		return nil
	}

	selector := uuid.NewString()
	verifier, err := s.creds.Issue(ctx, credential.KindReset, selector, user.Username, s.resetTTL)
	if err != nil {
		return fmt.Errorf("failed to issue reset token: %w", err)
	}
	token := selector + "." + verifier

	if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, user.Name, token); err != nil {
		return fmt.Errorf("failed to send reset email: %w", err)
	}
	return nil
}

// CompletePasswordReset redeems a reset token and replaces the password
// of the user it was issued for.
func (s *UserService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	selector, verifier, ok := strings.Cut(token, ".")
	if !ok {
		return credential.ErrInvalid
	}

	if err := validation.ValidatePassword(newPassword); err != nil {
		return err
	}

	username, err := s.creds.Redeem(ctx, credential.KindReset, selector, verifier)
	if err != nil {
		return err
	}

	user, err := s.userRepo.GetUserByUsername(username)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return credential.ErrInvalid
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.userRepo.UpdatePasswordHash(user.ID, passwordHash); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	log.Printf("Password reset completed for user %s", user.Username)
	return nil
}
