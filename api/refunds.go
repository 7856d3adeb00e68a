package api

import (
	"net/http"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/service/refund"
	"github.com/gin-gonic/gin"
)

type RefundHandler struct {
	service refund.RefundUseCase
}

type decideRequest struct {
	Status domain.RefundStatus `json:"status" binding:"required"`
	Notes  string              `json:"notes"`
}

func NewRefundHandler(service refund.RefundUseCase) *RefundHandler {
	return &RefundHandler{service: service}
}

func (h *RefundHandler) Register(router *gin.RouterGroup) {
	router.POST("/refunds", h.request)
	router.GET("/refunds", RequireRole(domain.RoleStaff), h.list)
	router.GET("/refunds/:id", h.get)
	router.PATCH("/refunds/:id", RequireRole(domain.RoleStaff), h.decide)
	router.GET("/bookings/:id/refunds", h.listByBooking)
}

func (h *RefundHandler) request(c *gin.Context) {
	var req refund.RequestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	created, err := h.service.Request(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toRefundResponse(created))
}

func (h *RefundHandler) list(c *gin.Context) {
	refunds, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRefundResponses(refunds))
}

func (h *RefundHandler) get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	r, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRefundResponse(r))
}

func (h *RefundHandler) listByBooking(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	refunds, err := h.service.ListByBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRefundResponses(refunds))
}

func (h *RefundHandler) decide(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	input := refund.DecideInput{Status: req.Status, Notes: req.Notes}
	if claims := claimsFrom(c); claims != nil {
		input.Actor = claims.Email
	}
	decided, err := h.service.Decide(c.Request.Context(), id, input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRefundResponse(decided))
}
