package models

import "github.com/shopspring/decimal"

// FeedStock is a quantity of feed held at a building or site. The backend
// serialises quantities either as JSON numbers or as decimal strings.
type FeedStock struct {
	ID           string          `json:"id"`
	FeedType     string          `json:"feed_type"`
	QuantityKg   decimal.Decimal `json:"quantity_kg"`
	BuildingID   string          `json:"building_id,omitempty"`
	BuildingName string          `json:"building_name,omitempty"`
	SiteName     string          `json:"site_name,omitempty"`
}

// FindStock returns the stock with the given id, if present.
func FindStock(stocks []FeedStock, id string) (FeedStock, bool) {
	for _, s := range stocks {
		if s.ID == id {
			return s, true
		}
	}
	return FeedStock{}, false
}
