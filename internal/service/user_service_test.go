package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskhive/internal/clock"
	"taskhive/internal/credential"
	"taskhive/internal/models"
	"taskhive/internal/security"
	"taskhive/internal/validation"
)

// fakeMailer records what would have been sent
type fakeMailer struct {
	otpCodes    map[string]string // email -> last code
	resetTokens map[string]string // email -> last token
	welcomes    []string
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		otpCodes:    make(map[string]string),
		resetTokens: make(map[string]string),
	}
}

func (m *fakeMailer) SendOTPEmail(_ context.Context, toEmail, _, code string) error {
	m.otpCodes[toEmail] = code
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, toEmail, _, resetToken string) error {
	m.resetTokens[toEmail] = resetToken
	return nil
}

func (m *fakeMailer) SendWelcomeEmail(_ context.Context, toEmail, _ string) error {
	m.welcomes = append(m.welcomes, toEmail)
	return nil
}

func newTestUserService(t *testing.T) (*UserService, *fakeMailer, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	store := credential.NewMemoryStore(clk)
	t.Cleanup(store.Close)
	mailer := newFakeMailer()

	svc := NewUserService(newTestUserRepo(t), store, mailer, 5*time.Minute, time.Hour)
	return svc, mailer, clk
}

func registerTestUser(t *testing.T, svc *UserService) {
	t.Helper()
	hash, err := security.HashPassword("password123")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.userRepo.CreateUser("Alice", "alice", "alice@example.com", hash, nil); err != nil {
		t.Fatalf("CreateUser error: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	registerTestUser(t, svc)
	alice, err := svc.userRepo.GetUserByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.userRepo.SetEmailVerified(alice.ID); err != nil {
		t.Fatal(err)
	}

	// A name change keeps the verified address verified.
	user, err := svc.UpdateProfile(alice.ID, "Alice Brown", "alice@example.com")
	if err != nil {
		t.Fatalf("UpdateProfile error: %v", err)
	}
	if user.Name != "Alice Brown" || !user.EmailVerified {
		t.Errorf("after name change: %+v", user)
	}

	// Changing the address drops the verified flag.
	user, err = svc.UpdateProfile(alice.ID, "Alice Brown", "alice@new.example.com")
	if err != nil {
		t.Fatalf("UpdateProfile error: %v", err)
	}
	if user.Email != "alice@new.example.com" || user.EmailVerified {
		t.Errorf("after email change: %+v", user)
	}
	stored, _ := svc.userRepo.GetUserByID(alice.ID)
	if stored.Email != "alice@new.example.com" || stored.EmailVerified {
		t.Errorf("stored user: %+v", stored)
	}

	var vErr validation.ValidationError
	if _, err := svc.UpdateProfile(alice.ID, "", "alice@new.example.com"); !errors.As(err, &vErr) {
		t.Errorf("empty name: got %v, want ValidationError", err)
	}
	if _, err := svc.UpdateProfile(alice.ID, "Alice", "not-an-email"); !errors.As(err, &vErr) {
		t.Errorf("bad email: got %v, want ValidationError", err)
	}
	if _, err := svc.UpdateProfile(9999, "Ghost", "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: got %v, want ErrUserNotFound", err)
	}

	// The new address cannot collide with another account.
	hash, _ := security.HashPassword("password123")
	if _, err := svc.userRepo.CreateUser("Bob", "bob", "bob@example.com", hash, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.UpdateProfile(alice.ID, "Alice", "bob@example.com"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("taken email: got %v, want ErrEmailTaken", err)
	}
}

func TestUpdateRoles(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	registerTestUser(t, svc)
	alice, err := svc.userRepo.GetUserByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}

	user, err := svc.UpdateRoles(alice.ID, []string{models.RoleUser, models.RoleAdmin})
	if err != nil {
		t.Fatalf("UpdateRoles error: %v", err)
	}
	if !user.HasRole(models.RoleAdmin) {
		t.Errorf("roles = %v", user.Roles)
	}
	stored, _ := svc.userRepo.GetUserByID(alice.ID)
	if !stored.HasRole(models.RoleAdmin) {
		t.Errorf("stored roles = %v", stored.Roles)
	}

	var vErr validation.ValidationError
	if _, err := svc.UpdateRoles(alice.ID, []string{"superuser"}); !errors.As(err, &vErr) {
		t.Errorf("unknown role: got %v, want ValidationError", err)
	}
	if _, err := svc.UpdateRoles(9999, []string{models.RoleUser}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown user: got %v, want ErrUserNotFound", err)
	}
}

func TestDeleteUser(t *testing.T) {
	svc, _, _ := newTestUserService(t)
	registerTestUser(t, svc)
	alice, err := svc.userRepo.GetUserByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.DeleteUser(alice.ID); err != nil {
		t.Fatalf("DeleteUser error: %v", err)
	}
	gone, err := svc.userRepo.GetUserByID(alice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Error("user still present after delete")
	}

	if err := svc.DeleteUser(alice.ID); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("second delete: got %v, want ErrUserNotFound", err)
	}
}

func TestEmailVerificationFlow(t *testing.T) {
	svc, mailer, _ := newTestUserService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	if err := svc.BeginEmailVerification(ctx, "alice@example.com"); err != nil {
		t.Fatalf("BeginEmailVerification error: %v", err)
	}
	code := mailer.otpCodes["alice@example.com"]
	if code == "" {
		t.Fatal("no code was mailed")
	}

	if err := svc.ConfirmEmailVerification(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("ConfirmEmailVerification error: %v", err)
	}

	user, err := svc.userRepo.GetUserByEmail("alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !user.EmailVerified {
		t.Error("email not marked verified")
	}

	// The code is single use.
	if err := svc.ConfirmEmailVerification(ctx, "alice@example.com", code); !errors.Is(err, credential.ErrInvalid) {
		t.Errorf("second confirm: got %v, want ErrInvalid", err)
	}
}

func TestEmailVerificationRejectsWrongAndExpiredCodes(t *testing.T) {
	svc, mailer, clk := newTestUserService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	if err := svc.BeginEmailVerification(ctx, "alice@example.com"); err != nil {
		t.Fatal(err)
	}

	if err := svc.ConfirmEmailVerification(ctx, "alice@example.com", "000000"); !errors.Is(err, credential.ErrInvalid) {
		t.Errorf("wrong code: got %v, want ErrInvalid", err)
	}

	clk.Advance(5*time.Minute + time.Second)
	code := mailer.otpCodes["alice@example.com"]
	if err := svc.ConfirmEmailVerification(ctx, "alice@example.com", code); !errors.Is(err, credential.ErrInvalid) {
		t.Errorf("expired code: got %v, want ErrInvalid", err)
	}
}

func TestBeginEmailVerificationUnknownAddressIsSilent(t *testing.T) {
	svc, mailer, _ := newTestUserService(t)

	if err := svc.BeginEmailVerification(context.Background(), "nobody@example.com"); err != nil {
		t.Fatalf("unknown address should not error, got %v", err)
	}
	if len(mailer.otpCodes) != 0 {
		t.Error("no email should have been sent")
	}
}

func TestPasswordResetFlow(t *testing.T) {
	svc, mailer, _ := newTestUserService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	if err := svc.BeginPasswordReset(ctx, "alice"); err != nil {
		t.Fatalf("BeginPasswordReset error: %v", err)
	}
	token := mailer.resetTokens["alice@example.com"]
	if token == "" {
		t.Fatal("no reset token was mailed")
	}

	if err := svc.CompletePasswordReset(ctx, token, "newpassword456"); err != nil {
		t.Fatalf("CompletePasswordReset error: %v", err)
	}

	user, err := svc.userRepo.GetUserByUsername("alice")
	if err != nil {
		t.Fatal(err)
	}
	if !security.CheckPassword("newpassword456", user.PasswordHash) {
		t.Error("new password does not verify")
	}
	if security.CheckPassword("password123", user.PasswordHash) {
		t.Error("old password still verifies")
	}

	// The token is single use.
	if err := svc.CompletePasswordReset(ctx, token, "anotherpass789"); !errors.Is(err, credential.ErrInvalid) {
		t.Errorf("second redeem: got %v, want ErrInvalid", err)
	}
}

func TestPasswordResetByEmailIdentifier(t *testing.T) {
	svc, mailer, _ := newTestUserService(t)
	registerTestUser(t, svc)

	if err := svc.BeginPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("BeginPasswordReset error: %v", err)
	}
	if mailer.resetTokens["alice@example.com"] == "" {
		t.Error("no reset token was mailed")
	}
}

func TestPasswordResetRejectsBadTokens(t *testing.T) {
	svc, mailer, clk := newTestUserService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	if err := svc.CompletePasswordReset(ctx, "not-a-token", "newpassword456"); !errors.Is(err, credential.ErrInvalid) {
		t.Errorf("malformed token: got %v, want ErrInvalid", err)
	}

	if err := svc.BeginPasswordReset(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	token := mailer.resetTokens["alice@example.com"]

	// Weak replacement passwords do not burn the token.
	if err := svc.CompletePasswordReset(ctx, token, "short"); err == nil {
		t.Error("weak password should be rejected")
	}

	clk.Advance(time.Hour + time.Second)
	if err := svc.CompletePasswordReset(ctx, token, "newpassword456"); !errors.Is(err, credential.ErrInvalid) {
		t.Errorf("expired token: got %v, want ErrInvalid", err)
	}
}

func TestResetTokensResolveToTheirOwnUsers(t *testing.T) {
	svc, mailer, _ := newTestUserService(t)
	registerTestUser(t, svc)
	ctx := context.Background()

	hash, _ := security.HashPassword("password123")
	if _, err := svc.userRepo.CreateUser("Bob", "bob", "bob@example.com", hash, nil); err != nil {
		t.Fatal(err)
	}

	if err := svc.BeginPasswordReset(ctx, "alice"); err != nil {
		t.Fatal(err)
	}
	if err := svc.BeginPasswordReset(ctx, "bob"); err != nil {
		t.Fatal(err)
	}

	// Redeeming Bob's token must change Bob's password, not Alice's.
	if err := svc.CompletePasswordReset(ctx, mailer.resetTokens["bob@example.com"], "bobsnewpass1"); err != nil {
		t.Fatalf("CompletePasswordReset error: %v", err)
	}

	alice, _ := svc.userRepo.GetUserByUsername("alice")
	bob, _ := svc.userRepo.GetUserByUsername("bob")
	if !security.CheckPassword("password123", alice.PasswordHash) {
		t.Error("alice's password changed")
	}
	if !security.CheckPassword("bobsnewpass1", bob.PasswordHash) {
		t.Error("bob's password not changed")
	}

	// Alice's outstanding token still works for Alice.
	if err := svc.CompletePasswordReset(ctx, mailer.resetTokens["alice@example.com"], "alicesnewpass1"); err != nil {
		t.Fatalf("CompletePasswordReset error: %v", err)
	}
	alice, _ = svc.userRepo.GetUserByUsername("alice")
	if !security.CheckPassword("alicesnewpass1", alice.PasswordHash) {
		t.Error("alice's token did not update alice")
	}
}
