package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Domenick1991/airticket/internal/apperr"
	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockFlightUseCase is a mock implementation of flights.FlightUseCase
type MockFlightUseCase struct {
	mock.Mock
}

func (m *MockFlightUseCase) List(ctx context.Context) ([]domain.Flight, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) GetByID(ctx context.Context, id int64) (*domain.Flight, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Flight), args.Error(1)
}

func (m *MockFlightUseCase) ListFreeSeats(ctx context.Context, flightID int64, class domain.TravelClass) ([]domain.Seat, error) {
	args := m.Called(ctx, flightID, class)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Seat), args.Error(1)
}

func TestFlightHandler_list(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/flights", nil)

	flights := []domain.Flight{
		{ID: 1, Number: "VN200", AircraftID: 1, FromAirport: "SGN", ToAirport: "HAN", Status: domain.FlightStatusScheduled},
	}

	mockService.On("List", c.Request.Context()).Return(flights, nil)

	handler.list(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []flightResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, "VN200", response[0].Number)
	assert.Equal(t, "SCHEDULED", response[0].Status)

	mockService.AssertExpectations(t)
}

func TestFlightHandler_get(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService)

	gin.SetMode(gin.TestMode)

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "1"}}
		c.Request = httptest.NewRequest("GET", "/flights/1", nil)

		mockService.On("GetByID", c.Request.Context(), int64(1)).Return(&domain.Flight{ID: 1, Number: "VN200"}, nil).Once()

		handler.get(c)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "42"}}
		c.Request = httptest.NewRequest("GET", "/flights/42", nil)

		mockService.On("GetByID", c.Request.Context(), int64(42)).Return(nil, apperr.NotFoundErr("flight 42 not found")).Once()

		handler.get(c)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apperr.NotFound, decodeError(t, w.Body.Bytes()).Kind)
	})

	t.Run("bad id", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: "abc"}}
		c.Request = httptest.NewRequest("GET", "/flights/abc", nil)

		handler.get(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	mockService.AssertExpectations(t)
}

func TestFlightHandler_freeSeats(t *testing.T) {
	mockService := &MockFlightUseCase{}
	handler := NewFlightHandler(mockService)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "id", Value: "1"}}
	c.Request = httptest.NewRequest("GET", "/flights/1/seats?class=business", nil)

	seats := []domain.Seat{
		{ID: 1, AircraftID: 1, SeatNumber: "1A", Row: 1, Letter: "A", TravelClass: domain.TravelClassBusiness},
	}
	mockService.On("ListFreeSeats", c.Request.Context(), int64(1), domain.TravelClassBusiness).Return(seats, nil)

	handler.freeSeats(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var response []seatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	require.Len(t, response, 1)
	assert.Equal(t, "1A", response[0].SeatNumber)
	mockService.AssertExpectations(t)
}
