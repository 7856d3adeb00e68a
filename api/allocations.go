package api

import (
	"net/http"

	"github.com/Domenick1991/airticket/internal/service/seating"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AllocationHandler struct {
	service seating.AllocatorUseCase
}

type allocateRequest struct {
	PassengerID uuid.UUID `json:"passenger_id" binding:"required"`
	SeatNumber  string    `json:"seat_number"`
}

func NewAllocationHandler(service seating.AllocatorUseCase) *AllocationHandler {
	return &AllocationHandler{service: service}
}

func (h *AllocationHandler) Register(router *gin.RouterGroup) {
	router.POST("/booking-flights/:id/allocations", h.allocate)
	router.GET("/booking-flights/:id/allocations", h.list)
}

func (h *AllocationHandler) allocate(c *gin.Context) {
	legID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req allocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	alloc, err := h.service.Allocate(c.Request.Context(), seating.AllocateInput{
		BookingFlightID: legID,
		PassengerID:     req.PassengerID,
		SeatNumber:      req.SeatNumber,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAllocationResponse(alloc))
}

func (h *AllocationHandler) list(c *gin.Context) {
	legID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	allocs, err := h.service.ListAllocations(c.Request.Context(), legID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAllocationResponses(allocs))
}
