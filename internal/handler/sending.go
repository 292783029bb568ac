package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/service"
)

type SendingHandler struct {
	service *service.SendingService
}

func NewSendingHandler(service *service.SendingService) *SendingHandler {
	return &SendingHandler{service: service}
}

// Check decides one outbound send. Called by the MTA frontends on every
// submission, so this is the hottest path in the service.
func (h *SendingHandler) Check(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id must be a UUID"})
		return
	}

	decision := h.service.CheckSend(c.Request.Context(), userID)
	writeDecision(c, decision)
}

// GetProfile returns a user's sending profile together with the consumed
// counts for the current windows.
func (h *SendingHandler) GetProfile(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	profile, err := h.service.GetProfile(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	hourlyUsed, dailyUsed, err := h.service.Usage(ctx, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profile": profile,
		"usage": gin.H{
			"hourly_used": hourlyUsed,
			"daily_used":  dailyUsed,
		},
	})
}

// ListProfiles pages through every provisioned sending profile.
func (h *SendingHandler) ListProfiles(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	profiles, err := h.service.ListProfiles(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"profiles": profiles,
		"limit":    limit,
		"offset":   offset,
	})
}

func (h *SendingHandler) SetTier(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req struct {
		Tier        string `json:"tier" binding:"required"`
		HourlyBound *int   `json:"hourly_bound"`
		DailyBound  *int   `json:"daily_bound"`
		Reason      string `json:"reason"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, err := h.service.SetTier(c.Request.Context(), userID, req.Tier, req.HourlyBound, req.DailyBound, actorEmail(c), req.Reason)
	if err != nil {
		if errors.Is(err, service.ErrUnknownTier) || errors.Is(err, service.ErrBoundsRequired) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *SendingHandler) SetEnabled(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	var req struct {
		Enabled *bool  `json:"enabled" binding:"required"`
		Reason  string `json:"reason"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.SetSendingEnabled(c.Request.Context(), userID, *req.Enabled, actorEmail(c), req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	message := "Sending suspended"
	if *req.Enabled {
		message = "Sending resumed"
	}
	c.JSON(http.StatusOK, gin.H{"message": message})
}

func parseUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return uuid.Nil, false
	}
	return userID, true
}

// actorEmail identifies the operator for audit records. Set by the auth
// middleware from the JWT claims.
func actorEmail(c *gin.Context) string {
	if email := c.GetString("email"); email != "" {
		return email
	}
	return "unknown"
}
