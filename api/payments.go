package api

import (
	"net/http"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/gateway"
	"github.com/Domenick1991/airticket/internal/service/checkout"
	"github.com/Domenick1991/airticket/internal/service/payment"
	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	payments payment.PaymentUseCase
	checkout checkout.CheckoutUseCase
}

type transitionRequest struct {
	Status        domain.PaymentStatus `json:"status" binding:"required"`
	TransactionID string               `json:"transaction_id"`
	Message       string               `json:"message"`
}

type orderLookupResponse struct {
	Payment paymentResponse        `json:"payment"`
	Booking bookingSummaryResponse `json:"booking"`
}

func NewPaymentHandler(payments payment.PaymentUseCase, checkout checkout.CheckoutUseCase) *PaymentHandler {
	return &PaymentHandler{payments: payments, checkout: checkout}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/payments", h.create)
	router.GET("/payments/:id", h.get)
	router.PATCH("/payments/:id/status", RequireRole(domain.RoleStaff), h.transition)
	router.GET("/bookings/:id/payments", h.listByBooking)

	router.POST("/payments/gateway/initiate", h.initiate)
	router.POST("/payments/gateway/callback", h.callback)
	router.POST("/payments/gateway/return", h.gatewayReturn)
	router.GET("/payments/gateway/orders/:order_id", h.lookupOrder)
}

func (h *PaymentHandler) create(c *gin.Context) {
	var req payment.CreatePaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := h.payments.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPaymentResponse(created))
}

func (h *PaymentHandler) get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.payments.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

func (h *PaymentHandler) transition(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p, err := h.payments.TransitionTo(c.Request.Context(), id, req.Status, domain.PaymentUpdate{
		TransactionID: req.TransactionID,
		Message:       req.Message,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

func (h *PaymentHandler) listByBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	payments, err := h.payments.ListByBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponses(payments))
}

func (h *PaymentHandler) initiate(c *gin.Context) {
	var req checkout.InitiateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.checkout.Initiate(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// callback is the provider's server-to-server notification. It answers 204
// so the provider stops retrying.
func (h *PaymentHandler) callback(c *gin.Context) {
	var cb gateway.Callback
	if err := c.ShouldBindJSON(&cb); err != nil {
		badRequest(c, "malformed callback payload")
		return
	}
	if _, err := h.checkout.HandleCallback(c.Request.Context(), cb); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// gatewayReturn accepts the signed parameters the provider appends to the
// customer's redirect, as a form or as JSON.
func (h *PaymentHandler) gatewayReturn(c *gin.Context) {
	var cb gateway.Callback
	if err := c.ShouldBind(&cb); err != nil {
		badRequest(c, "malformed return parameters")
		return
	}
	p, err := h.checkout.HandleCallback(c.Request.Context(), cb)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

func (h *PaymentHandler) lookupOrder(c *gin.Context) {
	lookup, err := h.checkout.LookupOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderLookupResponse{
		Payment: toPaymentResponse(lookup.Payment),
		Booking: toSummaryResponse(lookup.Booking),
	})
}
