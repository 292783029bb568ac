package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/relaypoint/mailadmin/internal/ratelimit"
	"github.com/relaypoint/mailadmin/internal/service"
)

type RemediationHandler struct {
	service *service.RemediationService
}

func NewRemediationHandler(service *service.RemediationService) *RemediationHandler {
	return &RemediationHandler{service: service}
}

// ResetCounter zeroes one counter window for a subject. Used to undo a
// throttle that turned out to be a false positive.
func (h *RemediationHandler) ResetCounter(c *gin.Context) {
	key, ok := bindCounterKey(c)
	if !ok {
		return
	}

	if err := h.service.ResetCounter(c.Request.Context(), key, actorEmail(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Counter reset"})
}

func (h *RemediationHandler) GetCounter(c *gin.Context) {
	key := ratelimit.Key{
		Scope:     ratelimit.Scope(c.Query("scope")),
		SubjectID: c.Query("subject_id"),
		Kind:      ratelimit.WindowKind(c.Query("window_kind")),
	}
	if !validKey(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scope, subject_id and window_kind are required"})
		return
	}

	count, err := h.service.CounterValue(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":   key.String(),
		"count": count,
	})
}

func bindCounterKey(c *gin.Context) (ratelimit.Key, bool) {
	var req struct {
		Scope      string `json:"scope" binding:"required"`
		SubjectID  string `json:"subject_id" binding:"required"`
		WindowKind string `json:"window_kind" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return ratelimit.Key{}, false
	}

	key := ratelimit.Key{
		Scope:     ratelimit.Scope(req.Scope),
		SubjectID: req.SubjectID,
		Kind:      ratelimit.WindowKind(req.WindowKind),
	}
	if !validKey(key) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown scope or window_kind"})
		return ratelimit.Key{}, false
	}

	return key, true
}

func validKey(key ratelimit.Key) bool {
	if key.Scope != ratelimit.ScopeSignupIP && key.Scope != ratelimit.ScopeUserSending {
		return false
	}
	if key.Kind != ratelimit.WindowHourly && key.Kind != ratelimit.WindowDaily {
		return false
	}
	return key.SubjectID != ""
}
