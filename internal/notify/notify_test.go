package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Publish(ctx context.Context, topic, key string, value interface{}) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

func paidBooking() *domain.Booking {
	adult, infant := uuid.New(), uuid.New()
	departure := time.Date(2026, 11, 2, 7, 30, 0, 0, time.UTC)
	return &domain.Booking{
		ID:            uuid.New(),
		Reference:     "K7QX2ABC",
		TotalAmount:   2_400_000,
		ContactEmail:  "lan@example.com",
		Status:        domain.BookingStatusCompleted,
		PaymentStatus: domain.BookingPaymentPaid,
		Identity:      &domain.Identity{Email: "lan@example.com", FirstName: "lan", LastName: domain.GuestLastName},
		Passengers: []domain.Passenger{
			{ID: adult, Type: domain.PassengerAdult, FirstName: "Lan", LastName: "Tran"},
			{ID: infant, Type: domain.PassengerInfant, FirstName: "Bao", LastName: "Tran"},
		},
		Legs: []domain.BookingFlight{{
			FlightID:    1,
			TravelClass: domain.TravelClassEconomy,
			Flight: &domain.Flight{
				Number:        "VN200",
				FromAirport:   "SGN",
				ToAirport:     "HAN",
				DepartureTime: departure,
				ArrivalTime:   departure.Add(2 * time.Hour),
			},
			Allocations: []domain.SeatAllocation{{PassengerID: adult, SeatNumber: "12A"}},
		}},
	}
}

func TestRenderer_Itinerary(t *testing.T) {
	subject, body, err := NewRenderer("VND").Itinerary(paidBooking())
	require.NoError(t, err)

	assert.Equal(t, "Your itinerary for booking K7QX2ABC", subject)
	assert.Contains(t, body, "Dear Lan Tran,")
	assert.Contains(t, body, "Total: 2400000 VND")
	assert.Contains(t, body, "Flight VN200 SGN -> HAN (ECONOMY)")
	assert.Contains(t, body, "Departs: 02 Nov 2026 07:30 UTC")
	assert.Contains(t, body, "Lan Tran: 12A")
	assert.Contains(t, body, "Bao Tran (infant)")
}

func TestRenderer_Itinerary_UnloadedFlight(t *testing.T) {
	b := paidBooking()
	b.Legs[0].Flight = nil
	b.Legs[0].FlightID = 42

	_, body, err := NewRenderer("VND").Itinerary(b)
	require.NoError(t, err)
	assert.Contains(t, body, "Flight #42")
	assert.Contains(t, body, "Departs: \n")
}

func TestKafkaNotifier_NotifyItinerary(t *testing.T) {
	producer := &MockProducer{}
	logger, _ := test.NewNullLogger()
	n := NewKafkaNotifier(producer, "booking-notifications", NewRenderer("VND"), logger)
	b := paidBooking()

	producer.On("Publish", mock.Anything, "booking-notifications", b.ID.String(), mock.MatchedBy(func(msg kafka.Notification) bool {
		return msg.Type == "itinerary" && msg.Email == "lan@example.com" && msg.Reference == "K7QX2ABC"
	})).Return(nil).Once()

	require.NoError(t, n.NotifyItinerary(context.Background(), b))
	producer.AssertExpectations(t)
}

func TestKafkaNotifier_Errors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("no recipient", func(t *testing.T) {
		producer := &MockProducer{}
		n := NewKafkaNotifier(producer, "topic", NewRenderer("VND"), logger)
		b := paidBooking()
		b.ContactEmail = ""
		b.Identity = nil

		assert.Error(t, n.NotifyItinerary(context.Background(), b))
		producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("broker down", func(t *testing.T) {
		producer := &MockProducer{}
		producer.On("Publish", mock.Anything, "topic", mock.Anything, mock.Anything).Return(errors.New("no brokers"))
		n := NewKafkaNotifier(producer, "topic", NewRenderer("VND"), logger)

		err := n.NotifyItinerary(context.Background(), paidBooking())
		assert.ErrorContains(t, err, "no brokers")
	})
}
