package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rsv360/reservation-core/internal/domain"
	"github.com/rsv360/reservation-core/internal/service/reservation"
	"github.com/shopspring/decimal"
)

type ReservationHandler struct {
	service reservation.ReservationUseCase
}

type createReservationRequest struct {
	PropertyID  int64  `json:"property_id" binding:"required"`
	CustomerID  int64  `json:"customer_id" binding:"required"`
	StartDate   string `json:"start_date" binding:"required"`
	EndDate     string `json:"end_date" binding:"required"`
	QuotedTotal string `json:"quoted_total"`
}

type initiatePaymentRequest struct {
	Gateway              string `json:"gateway" binding:"required"`
	GatewayTransactionID string `json:"gateway_transaction_id" binding:"required"`
}

type paymentResponse struct {
	ID                   string `json:"id"`
	ReservationID        string `json:"reservation_id"`
	Gateway              string `json:"gateway"`
	GatewayTransactionID string `json:"gateway_transaction_id"`
	Amount               string `json:"amount"`
	Status               string `json:"status"`
}

type updateReservationRequest struct {
	ExpectedVersion int64   `json:"expected_version" binding:"required"`
	Status          *string `json:"status"`
	PaymentStatus   *string `json:"payment_status"`
	PaidAmount      *string `json:"paid_amount"`
}

type reservationResponse struct {
	ID            string  `json:"id"`
	PropertyID    int64   `json:"property_id"`
	CustomerID    int64   `json:"customer_id"`
	StartDate     string  `json:"start_date,omitempty"`
	EndDate       string  `json:"end_date,omitempty"`
	ShareID       int64   `json:"share_id,omitempty"`
	WeekYear      int     `json:"week_year,omitempty"`
	WeekSet       []int32 `json:"week_set,omitempty"`
	Status        string  `json:"status"`
	PaymentStatus string  `json:"payment_status"`
	Version       int64   `json:"version"`
	TotalAmount   string  `json:"total_amount"`
	PaidAmount    string  `json:"paid_amount"`
	ExpiresAt     string  `json:"expires_at"`
}

func NewReservationHandler(service reservation.ReservationUseCase) *ReservationHandler {
	return &ReservationHandler{service: service}
}

func (h *ReservationHandler) Register(router *gin.RouterGroup) {
	router.POST("/", h.create)
	router.GET("/:id", h.get)
	router.PATCH("/:id", h.update)
	router.DELETE("/:id", h.cancel)
	router.POST("/:id/payments", h.initiatePayment)
}

func (h *ReservationHandler) create(c *gin.Context) {
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start date"})
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end date"})
		return
	}
	quoted := decimal.Zero
	if req.QuotedTotal != "" {
		if quoted, err = decimal.NewFromString(req.QuotedTotal); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quoted total"})
			return
		}
	}

	res, err := h.service.CreateReservation(c.Request.Context(), reservation.CreateReservationInput{
		PropertyID:  req.PropertyID,
		CustomerID:  req.CustomerID,
		StartDate:   start,
		EndDate:     end,
		QuotedTotal: quoted,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, toReservationResponse(res))
}

func (h *ReservationHandler) get(c *gin.Context) {
	res, err := h.service.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) update(c *gin.Context) {
	var req updateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var m domain.ReservationMutation
	if req.Status != nil {
		status := domain.ReservationStatus(*req.Status)
		m.Status = &status
	}
	if req.PaymentStatus != nil {
		paymentStatus := domain.PaymentStatus(*req.PaymentStatus)
		m.PaymentStatus = &paymentStatus
	}
	if req.PaidAmount != nil {
		paid, err := decimal.NewFromString(*req.PaidAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paid amount"})
			return
		}
		m.PaidAmount = &paid
	}

	res, err := h.service.UpdateReservation(c.Request.Context(), c.Param("id"), req.ExpectedVersion, m)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) cancel(c *gin.Context) {
	var req struct {
		ExpectedVersion int64 `json:"expected_version" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.service.CancelReservation(c.Request.Context(), c.Param("id"), req.ExpectedVersion)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toReservationResponse(res))
}

func (h *ReservationHandler) initiatePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	payment, err := h.service.InitiatePayment(c.Request.Context(), c.Param("id"), req.Gateway, req.GatewayTransactionID)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, paymentResponse{
		ID:                   payment.ID,
		ReservationID:        payment.ReservationID,
		Gateway:              payment.Gateway,
		GatewayTransactionID: payment.GatewayTransactionID,
		Amount:               payment.Amount.String(),
		Status:               string(payment.Status),
	})
}

func toReservationResponse(res *domain.Reservation) reservationResponse {
	out := reservationResponse{
		ID:            res.ID,
		PropertyID:    res.PropertyID,
		CustomerID:    res.CustomerID,
		ShareID:       res.ShareID,
		WeekYear:      res.WeekYear,
		WeekSet:       res.WeekSet,
		Status:        string(res.Status),
		PaymentStatus: string(res.PaymentStatus),
		Version:       res.Version,
		TotalAmount:   res.TotalAmount.String(),
		PaidAmount:    res.PaidAmount.String(),
		ExpiresAt:     res.ExpiresAt.Format(time.RFC3339),
	}
	if !res.StartDate.IsZero() {
		out.StartDate = res.StartDate.Format("2006-01-02")
		out.EndDate = res.EndDate.Format("2006-01-02")
	}
	return out
}
