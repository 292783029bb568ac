package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/relaypoint/mailadmin/internal/service"
)

type SignupHandler struct {
	service *service.SignupService
}

func NewSignupHandler(service *service.SignupService) *SignupHandler {
	return &SignupHandler{service: service}
}

// Check gates one signup attempt from the portal's registration form. The
// source IP always comes from the connection, never from the body.
func (h *SignupHandler) Check(c *gin.Context) {
	var req struct {
		Honeypot     string `json:"website"`
		CaptchaToken string `json:"captcha_token"`
	}

	// An empty body is a valid request with nothing filled in.
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	decision := h.service.CheckSignup(c.Request.Context(), service.SignupRequest{
		IP:           c.ClientIP(),
		Honeypot:     req.Honeypot,
		CaptchaToken: req.CaptchaToken,
		UserAgent:    c.Request.UserAgent(),
	})

	writeDecision(c, decision)
}

// writeDecision maps a service decision onto the wire. Denials for abuse are
// 429; a fail-closed outage denial is 503 so callers can tell them apart.
func writeDecision(c *gin.Context, decision service.Decision) {
	if decision.Allowed {
		c.JSON(http.StatusOK, decision)
		return
	}

	status := http.StatusTooManyRequests
	if decision.Reason == service.ReasonTemporarilyUnavailable {
		status = http.StatusServiceUnavailable
	}

	if !decision.RetryAfter.IsZero() {
		seconds := int(time.Until(decision.RetryAfter).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
	}

	c.JSON(status, decision)
}
