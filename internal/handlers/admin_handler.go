package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"taskhive/internal/service"
	"taskhive/internal/validation"
)

// AdminHandler handles user management for administrators
type AdminHandler struct {
	userService *service.UserService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(userService *service.UserService) *AdminHandler {
	return &AdminHandler{userService: userService}
}

// ListUsers handles GET /admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.userService.ListUsers()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "failed to list users", "Failed to list users", err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	respondWithJSON(w, http.StatusOK, out)
}

type updateRolesRequest struct {
	Roles []string `json:"roles"`
}

// UpdateRoles handles PUT /admin/users/{id}/roles. The new roles take
// effect on the target's next login or refresh; outstanding access
// tokens keep their minted roles until they expire.
func (h *AdminHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := adminUserID(w, r)
	if !ok {
		return
	}

	var req updateRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}

	user, err := h.userService.UpdateRoles(id, req.Roles)
	if err != nil {
		var vErr validation.ValidationError
		switch {
		case errors.As(err, &vErr):
			respondWithError(w, http.StatusBadRequest, vErr.Error(), "", nil)
		case errors.Is(err, service.ErrUserNotFound):
			respondWithError(w, http.StatusNotFound, "user not found", "", nil)
		default:
			respondWithError(w, http.StatusInternalServerError, "failed to update roles", "Failed to update roles", err)
		}
		return
	}

	respondWithJSON(w, http.StatusOK, toUserResponse(user))
}

// DeleteUser handles DELETE /admin/users/{id}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := adminUserID(w, r)
	if !ok {
		return
	}

	if err := h.userService.DeleteUser(id); err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			respondWithError(w, http.StatusNotFound, "user not found", "", nil)
		} else {
			respondWithError(w, http.StatusInternalServerError, "failed to delete user", "Failed to delete user", err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func adminUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id", "", nil)
		return 0, false
	}
	return id, true
}
