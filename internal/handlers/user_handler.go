package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"taskhive/internal/credential"
	"taskhive/internal/security"
	"taskhive/internal/service"
	"taskhive/internal/validation"
)

// UserHandler handles profile, email verification and password reset
type UserHandler struct {
	userService *service.UserService

	// Redemption attempts are rate limited per subject, not per IP:
	// the OTP space is small enough to brute-force from many addresses.
	redeemLimiter *security.RateLimiter
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *service.UserService, redeemLimiter *security.RateLimiter) *UserHandler {
	return &UserHandler{
		userService:   userService,
		redeemLimiter: redeemLimiter,
	}
}

// Me handles GET /users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, http.StatusUnauthorized, "authentication required", "", nil)
		return
	}

	user, err := h.userService.GetUser(claims.UserID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to load profile", "Failed to get user", err)
		return
	}
	if user == nil {
		respondWithError(w, http.StatusUnauthorized, "authentication required", "", nil)
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(user))
}

type updateProfileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdateMe handles PUT /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, http.StatusUnauthorized, "authentication required", "", nil)
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}

	user, err := h.userService.UpdateProfile(claims.UserID, req.Name, req.Email)
	if err != nil {
		var vErr validation.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondWithError(w, http.StatusBadRequest, vErr.Error(), "", nil)
		case errors.Is(err, service.ErrEmailTaken):
			respondWithError(w, http.StatusConflict, err.Error(), "", nil)
		case errors.Is(err, service.ErrUserNotFound):
			respondWithError(w, http.StatusUnauthorized, "authentication required", "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to update profile", "Failed to update user", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(user))
}

// SendVerification handles POST /auth/verify/send for the logged-in user
func (h *UserHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, http.StatusUnauthorized, "authentication required", "", nil)
		return
	}

	if err := h.userService.BeginEmailVerification(r.Context(), claims.Email); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to send verification code", "Failed to begin verification", err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{"status": "verification code sent"})
}

type confirmVerificationRequest struct {
	Code string `json:"code"`
}

// ConfirmVerification handles POST /auth/verify/confirm. Every failure
// mode comes back as the same message so callers learn nothing about
// which check failed.
func (h *UserHandler) ConfirmVerification(w http.ResponseWriter, r *http.Request) {
	claims := GetClaimsFromContext(r.Context())
	if claims == nil {
		respondWithError(w, http.StatusUnauthorized, "authentication required", "", nil)
		return
	}

	if !h.redeemLimiter.Allow("otp:" + claims.Email) {
		respondWithError(w, http.StatusTooManyRequests, "too many attempts", "", nil)
		return
	}

	var req confirmVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}

	if err := h.userService.ConfirmEmailVerification(r.Context(), claims.Email, req.Code); err != nil {
		if errors.Is(err, credential.ErrInvalid) {
			respondWithError(w, http.StatusBadRequest, "invalid or expired code", "", nil)
		} else {
			respondWithError(w, http.StatusInternalServerError, "verification failed", "Failed to confirm verification", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "email verified"})
}

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"` // username or email
}

// ForgotPassword handles POST /public/forgot-password. It always reports
// success so the endpoint cannot be used to enumerate accounts.
func (h *UserHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}
	if req.Identifier == "" {
		respondWithError(w, http.StatusBadRequest, "identifier is required", "", nil)
		return
	}

	if err := h.userService.BeginPasswordReset(r.Context(), req.Identifier); err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to process request", "Failed to begin password reset", err)
		return
	}

	respondWithJSON(w, http.StatusAccepted, map[string]string{
		"status": "if that account exists, a reset link is on its way",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

// ResetPassword handles POST /public/reset-password
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	if !h.redeemLimiter.Allow("reset:" + security.GetClientIP(r)) {
		respondWithError(w, http.StatusTooManyRequests, "too many attempts", "", nil)
		return
	}

	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}

	if err := h.userService.CompletePasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		var vErr validation.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondWithError(w, http.StatusBadRequest, vErr.Error(), "", nil)
		case errors.Is(err, credential.ErrInvalid):
			respondWithError(w, http.StatusBadRequest, "invalid or expired reset token", "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to reset password", "Failed to complete password reset", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "password updated"})
}
