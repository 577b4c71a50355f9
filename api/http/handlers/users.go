package handlers

import (
	"io"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/artem13815/accounts/api/http/presenter"
	"github.com/artem13815/accounts/pkg/account"
)

type UsersHandler struct {
	useCase account.UseCase
}

func NewUsersHandler(useCase account.UseCase) *UsersHandler {
	return &UsersHandler{useCase: useCase}
}

// userPayload is the public serialization of a user record. Password
// hash, pin and invite token never leave the service.
func userPayload(u account.User) fiber.Map {
	return fiber.Map{
		"id":            u.ID.String(),
		"name":          u.Name,
		"username":      u.Username,
		"email":         u.Email,
		"avatar":        u.AvatarPath,
		"role":          u.Role,
		"registered_at": u.RegisteredAt,
		"created_at":    u.CreatedAt,
	}
}

func actorID(c *fiber.Ctx) (uuid.UUID, bool) {
	idStr, _ := c.Locals("userId").(string)
	id, err := uuid.Parse(idStr)
	return id, err == nil
}

// Profile returns the authenticated user's record.
// @Summary Get profile
// @Tags    users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 401 {object} presenter.ErrorResponse
// @Router  /profile [get]
func (h *UsersHandler) Profile(c *fiber.Ctx) error {
	id, ok := actorID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "could not resolve user")
	}
	user, err := h.useCase.Profile(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{"data": userPayload(user)})
}

// UpdateProfile updates the display name and optionally the avatar.
// @Summary Update profile
// @Tags    users
// @Accept  mpfd
// @Produce json
// @Param   name   formData string true  "display name"
// @Param   avatar formData file   false "jpeg/png avatar, max 256x256"
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 422 {object} presenter.ErrorResponse
// @Failure 500 {object} presenter.ErrorResponse
// @Router  /profile [post]
func (h *UsersHandler) UpdateProfile(c *fiber.Ctx) error {
	id, ok := actorID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "could not resolve user")
	}

	name := c.FormValue("name")

	var avatar *account.Avatar
	if fh, err := c.FormFile("avatar"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return presenter.Error(c, http.StatusUnprocessableEntity, "could not read avatar upload")
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return presenter.Error(c, http.StatusUnprocessableEntity, "could not read avatar upload")
		}
		avatar = &account.Avatar{Data: data}
	}

	user, err := h.useCase.UpdateProfile(c.Context(), id, name, avatar)
	if err != nil {
		return respondError(c, err)
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{
		"data":    userPayload(user),
		"message": "Profile updated successfully",
	})
}

type inviteRequest struct {
	Email string `json:"email"`
}

// Invite sends a registration invitation. Admin only.
// @Summary Invite a user
// @Tags    users
// @Accept  json
// @Produce json
// @Param   input body inviteRequest true "invitation payload"
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 403 {object} presenter.ErrorResponse
// @Failure 409 {object} presenter.ErrorResponse
// @Failure 422 {object} presenter.ErrorResponse
// @Router  /invite [post]
func (h *UsersHandler) Invite(c *fiber.Ctx) error {
	id, ok := actorID(c)
	if !ok {
		return presenter.Error(c, http.StatusUnauthorized, "could not resolve user")
	}
	var req inviteRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	if err := h.useCase.Invite(c.Context(), id, req.Email); err != nil {
		return respondError(c, err)
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{"message": "User invited successfully"})
}

// VerifyInvite checks an invitation link before the registration form.
// @Summary Verify invitation
// @Tags    users
// @Produce json
// @Param   email query string true "invited email"
// @Param   token query string true "invite token"
// @Success 200 {object} map[string]any
// @Failure 404 {object} presenter.ErrorResponse
// @Failure 422 {object} presenter.ErrorResponse
// @Router  /verify [get]
func (h *UsersHandler) VerifyInvite(c *fiber.Ctx) error {
	user, err := h.useCase.VerifyInvite(c.Context(), c.Query("email"), c.Query("token"))
	if err != nil {
		return respondError(c, err)
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{"data": userPayload(user)})
}

type registerRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Register completes an invited account and mails a confirmation pin.
// @Summary Register account
// @Tags    users
// @Accept  json
// @Produce json
// @Param   input body registerRequest true "registration payload"
// @Success 202 {object} map[string]any
// @Failure 404 {object} presenter.ErrorResponse
// @Failure 422 {object} presenter.ErrorResponse
// @Router  /register [post]
func (h *UsersHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	err := h.useCase.Register(c.Context(), account.RegisterInput{
		Name:     req.Name,
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Token:    req.Token,
	})
	if err != nil {
		return respondError(c, err)
	}
	return presenter.JSON(c, http.StatusAccepted, fiber.Map{
		"message": "Please check the email for confirmation pin",
	})
}

type confirmPinRequest struct {
	Pin string `json:"pin"`
}

// ConfirmPin activates an account with the mailed pin.
// @Summary Confirm registration pin
// @Tags    users
// @Accept  json
// @Produce json
// @Param   input body confirmPinRequest true "pin payload"
// @Success 200 {object} map[string]any
// @Failure 404 {object} presenter.ErrorResponse
// @Failure 422 {object} presenter.ErrorResponse
// @Router  /confirm/pin [post]
func (h *UsersHandler) ConfirmPin(c *fiber.Ctx) error {
	var req confirmPinRequest
	if err := c.BodyParser(&req); err != nil {
		return presenter.Error(c, http.StatusBadRequest, "invalid JSON payload")
	}
	if err := h.useCase.ConfirmPin(c.Context(), req.Pin); err != nil {
		return respondError(c, err)
	}
	return presenter.JSON(c, http.StatusOK, fiber.Map{"message": "PIN confirmed successfully"})
}
