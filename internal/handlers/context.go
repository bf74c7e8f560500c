package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tanvirx/loopgram/backend/internal/models"
	"github.com/tanvirx/loopgram/backend/internal/repositories"
	"github.com/tanvirx/loopgram/backend/internal/services"
)

// getUserIDFromContext extracts the authenticated user ID set by the JWT
// middleware. Returns 0 when the request carries no valid claims.
func getUserIDFromContext(c echo.Context) uint {
	claims, ok := c.Get("user").(*models.JwtCustomClaims)
	if !ok || claims == nil {
		return 0
	}
	return claims.UserID
}

// graphHTTPError maps service/repository errors onto HTTP status codes.
// Transient store conflicts are retryable by the caller, hence 503.
func graphHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, services.ErrSelfReference):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidNoteText):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrRequestNotFound),
		errors.Is(err, repositories.ErrNoteNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, repositories.ErrTransientStore):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporary conflict, please retry")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
