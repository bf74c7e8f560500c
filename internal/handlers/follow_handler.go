package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tanvirx/loopgram/backend/internal/services"
)

// FollowHandler handles follow-graph HTTP requests
type FollowHandler struct {
	graph services.IGraphService
}

// NewFollowHandler creates a new FollowHandler
func NewFollowHandler(graph services.IGraphService) *FollowHandler {
	return &FollowHandler{graph: graph}
}

// RegisterFollowRoutes registers follow-related routes
func (h *FollowHandler) RegisterFollowRoutes(g *echo.Group) {
	g.POST("/users/:id/follow", h.FollowUser)
	g.DELETE("/users/:id/follow", h.UnfollowUser)
	g.GET("/users/:id/relation", h.GetRelation)
	g.GET("/followers", h.GetFollowers)
	g.GET("/following", h.GetFollowing)
	g.DELETE("/followers/:id", h.RemoveFollower)
	g.GET("/follow-requests", h.GetFollowRequests)
	g.POST("/follow-requests/:id/accept", h.AcceptFollowRequest)
	g.DELETE("/follow-requests/:id", h.DeclineFollowRequest)
}

// FollowUser follows a user, or sends a follow request if they are private
func (h *FollowHandler) FollowUser(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	targetID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	state, err := h.graph.Follow(c.Request().Context(), currentUserID, targetID)
	if err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"relation": state}})
}

// UnfollowUser unfollows a user or cancels a pending follow request
func (h *FollowHandler) UnfollowUser(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	targetID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	if err := h.graph.Unfollow(c.Request().Context(), currentUserID, targetID); err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"relation": "none"}})
}

// GetRelation reports the current user's relation to another user
func (h *FollowHandler) GetRelation(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	targetID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	state, err := h.graph.Relation(c.Request().Context(), currentUserID, targetID)
	if err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"relation": state}})
}

// GetFollowers lists the current user's followers
func (h *FollowHandler) GetFollowers(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	edges, err := h.graph.Followers(c.Request().Context(), currentUserID)
	if err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"followers": edges}})
}

// GetFollowing lists who the current user follows
func (h *FollowHandler) GetFollowing(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	edges, err := h.graph.Following(c.Request().Context(), currentUserID)
	if err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"following": edges}})
}

// RemoveFollower removes a follower from the current user's followers
func (h *FollowHandler) RemoveFollower(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	followerID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	if err := h.graph.RemoveFollower(c.Request().Context(), currentUserID, followerID); err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// GetFollowRequests lists pending follow requests for the current user
func (h *FollowHandler) GetFollowRequests(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requests, err := h.graph.PendingRequests(c.Request().Context(), currentUserID)
	if err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"requests": requests}})
}

// AcceptFollowRequest accepts a pending follow request from :id
func (h *FollowHandler) AcceptFollowRequest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requesterID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	if err := h.graph.AcceptFollowRequest(c.Request().Context(), currentUserID, requesterID); err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"relation": "following"}})
}

// DeclineFollowRequest declines a pending follow request from :id
func (h *FollowHandler) DeclineFollowRequest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	requesterID, err := parseIDParam(c)
	if err != nil {
		return err
	}

	if err := h.graph.DeclineFollowRequest(c.Request().Context(), currentUserID, requesterID); err != nil {
		return graphHTTPError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func parseIDParam(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid user ID")
	}
	return uint(id), nil
}
