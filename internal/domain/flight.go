package domain

import "time"

type FlightStatus string

const (
	FlightStatusScheduled FlightStatus = "SCHEDULED"
	FlightStatusDelayed   FlightStatus = "DELAYED"
	FlightStatusCancelled FlightStatus = "CANCELLED"
)

type Flight struct {
	ID            int64
	Number        string
	AircraftID    int64
	FromAirport   string
	ToAirport     string
	DepartureTime time.Time
	ArrivalTime   time.Time
	Status        FlightStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Disrupted reports whether the airline cancelled the flight, or delayed it
// when delays count.
func (f *Flight) Disrupted(delayQualifies bool) bool {
	switch f.Status {
	case FlightStatusCancelled:
		return true
	case FlightStatusDelayed:
		return delayQualifies
	}
	return false
}

// Seat is a physical seat of an aircraft.
type Seat struct {
	ID          int64
	AircraftID  int64
	SeatNumber  string
	Row         int
	Letter      string
	TravelClass TravelClass
}
