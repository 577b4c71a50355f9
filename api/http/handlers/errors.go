package handlers

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/artem13815/accounts/api/http/presenter"
	"github.com/artem13815/accounts/pkg/account"
)

// respondError maps domain errors onto the wire. Status codes follow the
// usual REST conventions; the unconfirmed-account case additionally
// carries a code so clients can distinguish it from plain forbidden.
func respondError(c *fiber.Ctx, err error) error {
	var vErr *account.ValidationError
	if errors.As(err, &vErr) {
		return presenter.Error(c, http.StatusUnprocessableEntity, vErr.Error())
	}
	var sErr *account.StorageError
	if errors.As(err, &sErr) {
		return presenter.Error(c, http.StatusInternalServerError, "failed to store avatar")
	}
	switch {
	case errors.Is(err, account.ErrNotFound):
		return presenter.Error(c, http.StatusNotFound, "not found")
	case errors.Is(err, account.ErrEmailTaken):
		return presenter.Error(c, http.StatusConflict, "email already registered")
	case errors.Is(err, account.ErrForbidden):
		return presenter.Error(c, http.StatusForbidden, "only admin users can invite")
	case errors.Is(err, account.ErrInvalidCredentials):
		return presenter.Error(c, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, account.ErrNotConfirmed):
		return presenter.ErrorWithCode(c, http.StatusForbidden,
			"you have not confirmed your account yet", "account_not_confirmed")
	default:
		return presenter.Error(c, http.StatusInternalServerError, "internal error")
	}
}
