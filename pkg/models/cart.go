package models

// CartLine is one customizable product entry in the cart. Ingredients
// holds the names of base ingredients the customer kept (exclusion
// only). Options maps an option group id to the selected option names
// in selection order; order decides which selections are billed as
// extras, so it must never be normalized into a set.
type CartLine struct {
	Product     Product             `json:"product"`
	Quantity    int                 `json:"quantity"`
	Ingredients []string            `json:"ingredients"`
	Options     map[string][]string `json:"options"`
}

// LineTotals is the priced view of a single cart line.
type LineTotals struct {
	UnitExtras float64 `json:"unit_extras"`
	Total      float64 `json:"total"`
}

// CartTotals is derived from the cart on every mutation and never
// stored.
type CartTotals struct {
	Lines       []LineTotals `json:"lines"`
	Subtotal    float64      `json:"subtotal"`
	DistanceKm  *float64     `json:"distance_km"`
	DeliveryFee float64      `json:"delivery_fee"`
	Total       float64      `json:"total"`
}
