package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/relaypoint/mailadmin/internal/repository"
	"github.com/relaypoint/mailadmin/internal/service"
)

type ViolationHandler struct {
	service *service.ViolationService
}

func NewViolationHandler(service *service.ViolationService) *ViolationHandler {
	return &ViolationHandler{service: service}
}

func (h *ViolationHandler) List(c *gin.Context) {
	filter := repository.ViolationFilter{
		Scope:         c.Query("scope"),
		SubjectID:     c.Query("subject_id"),
		ViolationType: c.Query("type"),
	}

	if v := c.Query("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "resolved must be true or false"})
			return
		}
		filter.Resolved = &resolved
	}

	if v := c.Query("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be RFC3339"})
			return
		}
		filter.From = from
	}
	if v := c.Query("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "to must be RFC3339"})
			return
		}
		filter.To = to
	}

	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "100"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	violations, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"violations": violations,
		"count":      len(violations),
	})
}

func (h *ViolationHandler) Get(c *gin.Context) {
	id, ok := parseViolationID(c)
	if !ok {
		return
	}

	violation, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrViolationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Violation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, violation)
}

// Resolve closes a violation. Re-resolving an already resolved record
// returns it unchanged, so retries are safe.
func (h *ViolationHandler) Resolve(c *gin.Context) {
	id, ok := parseViolationID(c)
	if !ok {
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	violation, err := h.service.Resolve(c.Request.Context(), id, actorEmail(c), req.Notes)
	if err != nil {
		if errors.Is(err, service.ErrViolationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Violation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, violation)
}

func parseViolationID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
