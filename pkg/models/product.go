package models

// Ingredient is part of a product's base recipe. Removable ingredients
// can be left out of a cart line; nothing can be added.
type Ingredient struct {
	Name      string `bson:"name" json:"name"`
	Removable bool   `bson:"removable" json:"removable"`
}

// OptionGroup is a named set of selectable add-ons. The first
// IncludedCount selections are free, every further one costs
// PricePerExtra.
type OptionGroup struct {
	ID            string   `bson:"id" json:"id"`
	Name          string   `bson:"name" json:"name"`
	IncludedCount int      `bson:"included_count" json:"included_count"`
	PricePerExtra float64  `bson:"price_per_extra" json:"price_per_extra"`
	Options       []string `bson:"options" json:"options"`
}

type Product struct {
	ID           string        `bson:"_id" json:"id"`
	Name         string        `bson:"name" json:"name"`
	Description  string        `bson:"description" json:"description"`
	Price        float64       `bson:"price" json:"price"`
	ImageURL     string        `bson:"image_url" json:"image_url"`
	Ingredients  []Ingredient  `bson:"ingredients" json:"ingredients"`
	OptionGroups []OptionGroup `bson:"option_groups" json:"option_groups"`
	Available    bool          `bson:"available" json:"available"`
}

// Group returns the option group with the given id, or nil.
func (p *Product) Group(id string) *OptionGroup {
	for i := range p.OptionGroups {
		if p.OptionGroups[i].ID == id {
			return &p.OptionGroups[i]
		}
	}
	return nil
}
