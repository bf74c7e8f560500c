package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tanvirx/loopgram/backend/internal/models"
	"github.com/tanvirx/loopgram/backend/internal/services"
)

// NoteHandler handles ephemeral note HTTP requests
type NoteHandler struct {
	notes services.INoteService
}

// NewNoteHandler creates a new NoteHandler
func NewNoteHandler(notes services.INoteService) *NoteHandler {
	return &NoteHandler{notes: notes}
}

// RegisterNoteRoutes registers note-related routes
func (h *NoteHandler) RegisterNoteRoutes(g *echo.Group) {
	g.POST("/notes", h.CreateNote)
	g.DELETE("/notes/:id", h.DeleteNote)
	g.GET("/notes", h.GetNotes)
}

// CreateNote publishes the current user's note, replacing any prior one
func (h *NoteHandler) CreateNote(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	note, err := h.notes.Publish(c.Request().Context(), currentUserID, req.Text)
	if err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusCreated, echo.Map{"success": true, "data": echo.Map{"note": note}})
}

// DeleteNote retracts the current user's note before expiry
func (h *NoteHandler) DeleteNote(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	if err := h.notes.Retract(c.Request().Context(), currentUserID, c.Param("id")); err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// GetNotes lists the live notes visible to the current user
func (h *NoteHandler) GetNotes(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notes, err := h.notes.ListVisible(c.Request().Context(), currentUserID)
	if err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"notes": notes}})
}
