package models

import "strings"

// MetricKind identifies one production fact recorded per lot and day.
type MetricKind string

const (
	MetricFeed      MetricKind = "feed"
	MetricMortality MetricKind = "mortality"
	MetricWeight    MetricKind = "weight"
	MetricEggs      MetricKind = "eggs"
	MetricWater     MetricKind = "water"
)

// MetricKinds lists every kind in display order.
var MetricKinds = []MetricKind{MetricFeed, MetricMortality, MetricWeight, MetricEggs, MetricWater}

// ParseMetricKind matches a kind by name, case-insensitively.
func ParseMetricKind(value string) (MetricKind, bool) {
	normalized := MetricKind(strings.ToLower(strings.TrimSpace(value)))
	for _, k := range MetricKinds {
		if k == normalized {
			return k, true
		}
	}
	return "", false
}

// MortalityCauses are the causes accepted by the backend.
var MortalityCauses = []string{
	"disease",
	"heat_stress",
	"cold_stress",
	"crushing",
	"laying_accident",
	"predator",
	"dehydration",
	"unknown",
}

// DefaultMortalityCause is recorded when none is given.
const DefaultMortalityCause = "unknown"

// FeedTypes are the feed formulations known to the backend.
var FeedTypes = []string{"starter", "grower", "finisher", "layer", "pre-layer"}

// DefaultWeightSampleSize is the number of birds weighed when not specified.
const DefaultWeightSampleSize = 10

// FeedValue is the persisted feed consumption for a day.
type FeedValue struct {
	ID         string  `json:"id,omitempty"`
	QuantityKg float64 `json:"quantity_kg"`
	FeedType   *string `json:"feed_type"`
}

// MortalityValue is the persisted mortality for a day.
type MortalityValue struct {
	ID    string `json:"id,omitempty"`
	Count int    `json:"count"`
	Cause string `json:"cause"`
}

// WeightValue is the persisted sample weighing for a day.
type WeightValue struct {
	ID             string  `json:"id,omitempty"`
	AverageWeightG float64 `json:"average_weight_g"`
	SampleSize     int     `json:"sample_size"`
}

// EggsValue is the persisted egg collection for a day.
type EggsValue struct {
	ID         string   `json:"id,omitempty"`
	Normal     int      `json:"eggs_normal"`
	Cracked    int      `json:"eggs_cracked"`
	Dirty      int      `json:"eggs_dirty"`
	Small      int      `json:"eggs_small"`
	Total      int      `json:"total_eggs,omitempty"`
	LayingRate *float64 `json:"laying_rate,omitempty"`
}

// WaterValue is the persisted water consumption for a day.
type WaterValue struct {
	ID     string  `json:"id,omitempty"`
	Liters float64 `json:"liters"`
}

// EntryValues groups the sub-facts stored for one lot and day. Each may be
// absent independently of the others.
type EntryValues struct {
	Feed      *FeedValue      `json:"feed,omitempty"`
	Mortality *MortalityValue `json:"mortality,omitempty"`
	Weight    *WeightValue    `json:"weight,omitempty"`
	Eggs      *EggsValue      `json:"eggs,omitempty"`
	Water     *WaterValue     `json:"water,omitempty"`
}

// Has reports whether a value is stored for kind.
func (v EntryValues) Has(kind MetricKind) bool {
	switch kind {
	case MetricFeed:
		return v.Feed != nil
	case MetricMortality:
		return v.Mortality != nil
	case MetricWeight:
		return v.Weight != nil
	case MetricEggs:
		return v.Eggs != nil
	case MetricWater:
		return v.Water != nil
	default:
		return false
	}
}

// Missing lists the kinds in candidates that have no stored value.
func (v EntryValues) Missing(candidates ...MetricKind) []MetricKind {
	var out []MetricKind
	for _, k := range candidates {
		if !v.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// DailyEntryResponse mirrors GET /lots/{id}/daily-entry/{date}.
type DailyEntryResponse struct {
	Exists  bool        `json:"exists"`
	Date    string      `json:"date"`
	Version string      `json:"version,omitempty"`
	Data    EntryValues `json:"data"`
}

// EntryWriteResponse mirrors the body returned by POST and PUT.
type EntryWriteResponse struct {
	Message string `json:"message"`
	Date    string `json:"date"`
	Version string `json:"version,omitempty"`
}

// EntryFields is the flat, wire-named set of form inputs for any metric.
// Only the fields belonging to the selected metric are read.
type EntryFields struct {
	FeedQuantityKg  *float64 `json:"feed_quantity_kg,omitempty"`
	FeedType        string   `json:"feed_type,omitempty"`
	DeductFromStock bool     `json:"deduct_from_stock,omitempty"`
	FeedStockID     string   `json:"feed_stock_id,omitempty"`

	MortalityCount *int   `json:"mortality_count,omitempty"`
	MortalityCause string `json:"mortality_cause,omitempty"`

	AverageWeightG *float64 `json:"average_weight_g,omitempty"`
	SampleSize     *int     `json:"sample_size,omitempty"`

	EggsNormal  *int `json:"eggs_normal,omitempty"`
	EggsCracked *int `json:"eggs_cracked,omitempty"`
	EggsDirty   *int `json:"eggs_dirty,omitempty"`
	EggsSmall   *int `json:"eggs_small,omitempty"`

	WaterLiters *float64 `json:"water_liters,omitempty"`
}
