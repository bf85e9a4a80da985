package models

// Train is a rolling-stock unit with at most one assigned route
type Train struct {
	ID           string        `db:"id" json:"id"`
	Name         string        `db:"name" json:"name"`
	Number       string        `db:"number" json:"number"`
	Type         string        `db:"type" json:"type"`
	RouteID      *string       `db:"route_id" json:"routeId"`
	Compartments []Compartment `json:"compartments"`
}

// Compartment is a seating class with a fixed seat count and a full-route fare
type Compartment struct {
	ID        string  `db:"id" json:"id"`
	Name      string  `db:"name" json:"name"`
	Type      string  `db:"type" json:"type"`
	TotalSeat int     `db:"total_seat" json:"totalSeat"`
	BasePrice float64 `db:"price" json:"price"`
}

// TrainSummary is embedded in schedule, search and booking responses
type TrainSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Type   string `json:"type,omitempty"`
}

// CompartmentSummary is embedded in booking responses
type CompartmentSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (t *Train) Summary() TrainSummary {
	return TrainSummary{ID: t.ID, Name: t.Name, Number: t.Number, Type: t.Type}
}

// Compartment returns the assigned compartment with the given id
func (t *Train) Compartment(compartmentID string) (Compartment, bool) {
	for _, c := range t.Compartments {
		if c.ID == compartmentID {
			return c, true
		}
	}
	return Compartment{}, false
}
