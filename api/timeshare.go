package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rsv360/reservation-core/internal/service/availability"
	"github.com/rsv360/reservation-core/internal/service/reservation"
)

type TimeshareHandler struct {
	ledger  availability.LedgerUseCase
	service reservation.ReservationUseCase
}

type createWeekReservationRequest struct {
	OwnerID int64   `json:"owner_id" binding:"required"`
	Year    int     `json:"year" binding:"required"`
	Weeks   []int32 `json:"weeks" binding:"required"`
}

type shareWeekResponse struct {
	WeekNumber  int     `json:"week_number"`
	Year        int     `json:"year"`
	Available   bool    `json:"available"`
	ReservedBy  *int64  `json:"reserved_by,omitempty"`
	BlockReason *string `json:"block_reason,omitempty"`
}

func NewTimeshareHandler(ledger availability.LedgerUseCase, service reservation.ReservationUseCase) *TimeshareHandler {
	return &TimeshareHandler{ledger: ledger, service: service}
}

func (h *TimeshareHandler) Register(router *gin.RouterGroup) {
	router.GET("/:id/weeks", h.queryWeeks)
	router.POST("/:id/reservations", h.reserveWeeks)
	router.POST("/:id/blocks", h.blockWeeks)
}

func (h *TimeshareHandler) queryWeeks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return
	}

	weeks, err := h.ledger.QueryWeeks(c.Request.Context(), id, year)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	out := make([]shareWeekResponse, 0, len(weeks))
	for _, w := range weeks {
		resp := shareWeekResponse{
			WeekNumber: w.WeekNumber,
			Year:       w.Year,
			Available:  w.Available,
			ReservedBy: w.ReservedBy,
		}
		if w.BlockReason != nil {
			reason := string(*w.BlockReason)
			resp.BlockReason = &reason
		}
		out = append(out, resp)
	}
	c.JSON(http.StatusOK, out)
}

func (h *TimeshareHandler) reserveWeeks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req createWeekReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.CreateWeekReservation(c.Request.Context(), reservation.CreateWeekReservationInput{
		ShareID: id,
		OwnerID: req.OwnerID,
		Year:    req.Year,
		Weeks:   req.Weeks,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (h *TimeshareHandler) blockWeeks(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var req struct {
		Year   int     `json:"year" binding:"required"`
		Weeks  []int32 `json:"weeks" binding:"required"`
		Reason string  `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	reason, ok := parseBlockReason(req.Reason)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown block reason"})
		return
	}

	blocked, err := h.ledger.BlockWeeks(c.Request.Context(), id, req.Year, req.Weeks, reason)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": blocked})
}
