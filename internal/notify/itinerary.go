// Package notify renders itineraries and queues them for delivery.
package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/Domenick1991/airticket/internal/domain"
)

const itineraryTemplate = `Dear {{.Name}},

Your booking {{.Reference}} is confirmed and paid.
Total: {{.Total}} {{.Currency}}

{{range .Legs -}}
Flight {{.FlightNumber}} {{.From}} -> {{.To}} ({{.Class}})
  Departs: {{.Departure}}
  Arrives: {{.Arrival}}
{{- range .Seats}}
  {{.Passenger}}: {{.Seat}}
{{- end}}

{{end -}}
Passengers:
{{range .Passengers}}  - {{.}}
{{end}}
Seats not shown above will be assigned at check-in.
`

type itineraryView struct {
	Name       string
	Reference  string
	Total      int64
	Currency   string
	Legs       []legView
	Passengers []string
}

type legView struct {
	FlightNumber string
	From         string
	To           string
	Class        domain.TravelClass
	Departure    string
	Arrival      string
	Seats        []seatView
}

type seatView struct {
	Passenger string
	Seat      string
}

type Renderer struct {
	tmpl     *template.Template
	currency string
}

func NewRenderer(currency string) *Renderer {
	return &Renderer{
		tmpl:     template.Must(template.New("itinerary").Parse(itineraryTemplate)),
		currency: currency,
	}
}

// Itinerary renders the subject and plain-text body for a paid booking.
// Legs whose flight was not loaded are still listed by flight id.
func (r *Renderer) Itinerary(b *domain.Booking) (string, string, error) {
	view := itineraryView{
		Name:      recipientName(b),
		Reference: b.Reference,
		Total:     b.TotalAmount,
		Currency:  r.currency,
	}

	names := make(map[string]string, len(b.Passengers))
	for _, p := range b.Passengers {
		full := strings.TrimSpace(p.FirstName + " " + p.LastName)
		names[p.ID.String()] = full
		view.Passengers = append(view.Passengers, fmt.Sprintf("%s (%s)", full, strings.ToLower(string(p.Type))))
	}

	for _, leg := range b.Legs {
		lv := legView{Class: leg.TravelClass, FlightNumber: fmt.Sprintf("#%d", leg.FlightID)}
		if f := leg.Flight; f != nil {
			lv.FlightNumber = f.Number
			lv.From, lv.To = f.FromAirport, f.ToAirport
			lv.Departure = formatTime(f.DepartureTime)
			lv.Arrival = formatTime(f.ArrivalTime)
		}
		for _, a := range leg.Allocations {
			lv.Seats = append(lv.Seats, seatView{Passenger: names[a.PassengerID.String()], Seat: a.SeatNumber})
		}
		view.Legs = append(view.Legs, lv)
	}

	var body bytes.Buffer
	if err := r.tmpl.Execute(&body, view); err != nil {
		return "", "", fmt.Errorf("failed to render itinerary: %w", err)
	}
	return fmt.Sprintf("Your itinerary for booking %s", b.Reference), body.String(), nil
}

func recipientName(b *domain.Booking) string {
	if b.Identity != nil && !b.Identity.IsGuest() {
		if name := strings.TrimSpace(b.Identity.FirstName + " " + b.Identity.LastName); name != "" {
			return name
		}
	}
	if len(b.Passengers) > 0 {
		return strings.TrimSpace(b.Passengers[0].FirstName + " " + b.Passengers[0].LastName)
	}
	return "traveller"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("02 Jan 2006 15:04 MST")
}
