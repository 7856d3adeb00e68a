package api

import (
	"net/http"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/service/booking"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type guestLookupRequest struct {
	Email     string `json:"email"`
	Reference string `json:"reference"`
}

type guestLookupResponse struct {
	Bookings []bookingSummaryResponse `json:"bookings,omitempty"`
	Booking  *bookingResponse         `json:"booking,omitempty"`
}

type updateStatusRequest struct {
	Status        *domain.BookingStatus        `json:"status"`
	PaymentStatus *domain.BookingPaymentStatus `json:"payment_status"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("/bookings", h.create)
	router.GET("/bookings", RequireRole(domain.RoleStaff), h.listByEmail)
	router.POST("/bookings/lookup", h.lookup)
	router.GET("/bookings/:id", h.get)
	router.PATCH("/bookings/:id", h.updateContact)
	router.POST("/bookings/:id/cancel", h.cancel)
	router.PATCH("/bookings/:id/status", RequireRole(domain.RoleStaff), h.updateStatus)
	router.DELETE("/bookings/:id", RequireRole(domain.RoleStaff), h.delete)
	router.GET("/identities/:id/bookings", RequireAuth(), h.listByIdentity)
}

func (h *BookingHandler) create(c *gin.Context) {
	var req booking.CreateBookingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if claims := claimsFrom(c); claims != nil {
		id := claims.IdentityID
		req.IdentityID = &id
	}

	created, err := h.service.CreateBooking(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBookingResponse(created))
}

func (h *BookingHandler) get(c *gin.Context) {
	b, ok := h.accessibleBooking(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(b))
}

func (h *BookingHandler) lookup(c *gin.Context) {
	var req guestLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := h.service.GuestLookup(c.Request.Context(), req.Email, req.Reference)
	if err != nil {
		writeError(c, err)
		return
	}

	var resp guestLookupResponse
	if result.Booking != nil {
		b := toBookingResponse(result.Booking)
		resp.Booking = &b
	} else {
		resp.Bookings = make([]bookingSummaryResponse, 0, len(result.Summaries))
		for _, s := range result.Summaries {
			resp.Bookings = append(resp.Bookings, toSummaryResponse(s))
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *BookingHandler) listByIdentity(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if !ownerOrStaff(c, id) {
		writeError(c, apperr.New(apperr.Forbidden, "cannot list another identity's bookings"))
		return
	}
	bookings, err := h.service.GetBookingsByIdentity(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponses(bookings))
}

func (h *BookingHandler) listByEmail(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		badRequest(c, "email query parameter is required")
		return
	}
	bookings, err := h.service.GetBookingsByEmail(c.Request.Context(), email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponses(bookings))
}

func (h *BookingHandler) updateContact(c *gin.Context) {
	b, ok := h.accessibleBooking(c)
	if !ok {
		return
	}
	var req booking.UpdateContactInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	updated, err := h.service.UpdateContact(c.Request.Context(), b.ID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(updated))
}

func (h *BookingHandler) updateStatus(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	updated, err := h.service.UpdateStatus(c.Request.Context(), id, req.Status, req.PaymentStatus)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(updated))
}

func (h *BookingHandler) cancel(c *gin.Context) {
	b, ok := h.accessibleBooking(c)
	if !ok {
		return
	}
	cancelled, err := h.service.CancelBooking(c.Request.Context(), b.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toBookingResponse(cancelled))
}

func (h *BookingHandler) delete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteBooking(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// accessibleBooking loads the booking named by the id param. A booking the
// caller may not access answers 404, same as a missing one.
func (h *BookingHandler) accessibleBooking(c *gin.Context) (*domain.Booking, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}
	b, err := h.service.GetBooking(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !h.canAccess(c, b) {
		writeError(c, apperr.NotFoundErr("booking %s not found", id))
		return nil, false
	}
	return b, true
}

// canAccess admits staff and the owning identity. Anonymous callers must
// pass the email and reference query parameters the guest lookup accepts
// for this booking.
func (h *BookingHandler) canAccess(c *gin.Context, b *domain.Booking) bool {
	if claims := claimsFrom(c); claims != nil {
		return claims.IsStaff() || claims.IdentityID == b.IdentityID
	}
	email, reference := c.Query("email"), c.Query("reference")
	if email == "" || reference == "" {
		return false
	}
	result, err := h.service.GuestLookup(c.Request.Context(), email, reference)
	return err == nil && result.Booking != nil && result.Booking.ID == b.ID
}

func ownerOrStaff(c *gin.Context, owner uuid.UUID) bool {
	claims := claimsFrom(c)
	return claims != nil && (claims.IsStaff() || claims.IdentityID == owner)
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
