package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/rsv360/reservation-core/internal/service/webhook"
)

// WebhookHandler is the ingress for gateway notifications. It acknowledges
// with 200 regardless of processing outcome so a slow or failing business
// effect never turns into a gateway-side retry storm; processing happens
// asynchronously and failures land in the retry queue.
type WebhookHandler struct {
	service webhook.WebhookUseCase
}

func NewWebhookHandler(service webhook.WebhookUseCase) *WebhookHandler {
	return &WebhookHandler{service: service}
}

func (h *WebhookHandler) Register(router *gin.RouterGroup) {
	router.POST("/:gateway", h.receive)
	router.GET("/dead", h.deadLetters)
}

func (h *WebhookHandler) receive(c *gin.Context) {
	gateway := c.Param("gateway")
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	eventID, eventType, err := webhook.ExtractEvent(gateway, payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if eventID == "" {
		// No idempotency key to dedupe on; acknowledge and drop.
		log.Printf("webhook from %s without event id, ignoring", gateway)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	event, isNew, err := h.service.Receive(c.Request.Context(), gateway, eventID, eventType, payload)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if isNew {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.service.Process(ctx, gateway, eventID); err != nil {
				log.Printf("process webhook %s:%s: %v", gateway, eventID, err)
			}
		}()
	}

	c.JSON(http.StatusOK, gin.H{
		"received": true,
		"event_id": eventID,
		"status":   string(event.Status),
	})
}

func (h *WebhookHandler) deadLetters(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	dead, err := h.service.DeadLetters(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dead == nil {
		dead = []domain.WebhookEvent{}
	}
	c.JSON(http.StatusOK, dead)
}
