package models

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DeliveryDetails is what the customer fills in during checkout.
// Location is optional and comes from the map picker.
type DeliveryDetails struct {
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Neighborhood string       `json:"neighborhood"`
	PostalCode   string       `json:"postal_code"`
	Phone        string       `json:"phone"`
	Location     *Coordinates `json:"location,omitempty"`
}

// Complete reports whether the details satisfy the checkout gate:
// name, address and neighborhood present, phone at least 10 digits.
func (d DeliveryDetails) Complete() bool {
	return d.Name != "" && d.Address != "" && d.Neighborhood != "" && len(d.Phone) >= 10
}
