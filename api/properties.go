package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/rsv360/reservation-core/internal/service/availability"
	"github.com/rsv360/reservation-core/internal/service/properties"
)

type PropertyHandler struct {
	properties properties.PropertyUseCase
	ledger     availability.LedgerUseCase
}

type blockDatesRequest struct {
	Dates  []string `json:"dates" binding:"required"`
	Reason string   `json:"reason" binding:"required"`
	Notes  string   `json:"notes"`
}

type availabilitySlotResponse struct {
	Date        string  `json:"date"`
	Available   bool    `json:"available"`
	Price       *string `json:"price,omitempty"`
	MinStay     *int    `json:"min_stay,omitempty"`
	BlockReason *string `json:"block_reason,omitempty"`
}

func NewPropertyHandler(properties properties.PropertyUseCase, ledger availability.LedgerUseCase) *PropertyHandler {
	return &PropertyHandler{properties: properties, ledger: ledger}
}

func (h *PropertyHandler) Register(router *gin.RouterGroup) {
	router.GET("/", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/availability", h.queryAvailability)
	router.POST("/:id/blocks", h.blockDates)
	router.DELETE("/:id/blocks", h.unblockDates)
}

func (h *PropertyHandler) list(c *gin.Context) {
	properties, err := h.properties.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, properties)
}

func (h *PropertyHandler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	property, err := h.properties.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, property)
}

func (h *PropertyHandler) queryAvailability(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	start, err := time.Parse("2006-01-02", c.Query("start"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
		return
	}
	end, err := time.Parse("2006-01-02", c.Query("end"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
		return
	}

	slots, err := h.ledger.QueryRange(c.Request.Context(), id, start, end)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]availabilitySlotResponse, 0, len(slots))
	for _, slot := range slots {
		resp := availabilitySlotResponse{
			Date:      slot.Date.Format("2006-01-02"),
			Available: slot.Available,
			MinStay:   slot.MinStayOverride,
		}
		if slot.PriceOverride != nil {
			price := slot.PriceOverride.String()
			resp.Price = &price
		}
		if slot.BlockReason != nil {
			reason := string(*slot.BlockReason)
			resp.BlockReason = &reason
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (h *PropertyHandler) blockDates(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req blockDatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reason, ok := parseBlockReason(req.Reason)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown block reason"})
		return
	}

	blocked, err := h.ledger.BlockDates(c.Request.Context(), id, dates, reason, req.Notes)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": blocked})
}

func (h *PropertyHandler) unblockDates(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Dates []string `json:"dates" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dates, err := parseDates(req.Dates)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.UnblockDates(c.Request.Context(), id, dates); err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func parseDates(raw []string) ([]time.Time, error) {
	dates := make([]time.Time, 0, len(raw))
	for _, s := range raw {
		d, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, nil
}

func parseBlockReason(raw string) (domain.BlockReason, bool) {
	switch raw {
	case "maintenance":
		return domain.BlockReasonMaintenance, true
	case "owner-reserved":
		return domain.BlockReasonOwnerReserved, true
	case "other":
		return domain.BlockReasonOther, true
	}
	return "", false
}
