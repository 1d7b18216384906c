package models

// LotType distinguishes meat birds from laying hens.
type LotType string

const (
	LotTypeBroiler LotType = "broiler"
	LotTypeLayer   LotType = "layer"
)

// Lot is a flock placed and tracked together. The backend owns it; this
// module only reads it.
type Lot struct {
	ID              string  `json:"id"`
	Code            string  `json:"code"`
	Name            string  `json:"name,omitempty"`
	Type            LotType `json:"type"`
	Breed           string  `json:"breed,omitempty"`
	Status          string  `json:"status,omitempty"`
	InitialQuantity int     `json:"initial_quantity,omitempty"`
	CurrentQuantity int     `json:"current_quantity"`
	AgeDays         int     `json:"age_days"`
	BuildingID      string  `json:"building_id,omitempty"`
	BuildingName    string  `json:"building_name,omitempty"`
}

// IsLayer reports whether eggs may be recorded for the lot.
func (l Lot) IsLayer() bool {
	return l.Type == LotTypeLayer
}

// Label returns a short human-readable identifier for messages.
func (l Lot) Label() string {
	if l.Code != "" {
		return l.Code
	}
	return l.ID
}
