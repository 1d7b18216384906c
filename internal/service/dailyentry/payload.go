package dailyentry

import (
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/flockbook/internal/domain/models"
)

// MetricPayload is the user input for one metric of a daily entry.
type MetricPayload interface {
	Kind() models.MetricKind
	// Validate checks the input against the lot it is recorded for.
	Validate(lot models.Lot) error
	// Fields returns the wire fields of the request body, without the date.
	Fields() map[string]any
}

// FeedInput records feed consumption, optionally drawn from a stock.
type FeedInput struct {
	QuantityKg      float64
	FeedType        string
	DeductFromStock bool
	FeedStockID     string
}

func (FeedInput) Kind() models.MetricKind { return models.MetricFeed }

func (f FeedInput) Validate(models.Lot) error {
	if err := checkAmount("feed_quantity_kg", f.QuantityKg); err != nil {
		return err
	}
	if f.FeedType != "" && !slices.Contains(models.FeedTypes, f.FeedType) {
		return validationError("feed_type", "unknown feed type %q", f.FeedType)
	}
	if f.DeductFromStock && strings.TrimSpace(f.FeedStockID) == "" {
		return validationError("feed_stock_id", "a feed stock must be selected to deduct from")
	}
	return nil
}

// Fields always carries feed_type, as null when unset. The stock reference
// travels in the same body so the backend debits and records in one unit.
func (f FeedInput) Fields() map[string]any {
	fields := map[string]any{
		"feed_quantity_kg": roundQuantity(f.QuantityKg),
		"feed_type":        nil,
	}
	if f.FeedType != "" {
		fields["feed_type"] = f.FeedType
	}
	if f.DeductFromStock {
		fields["deduct_from_stock"] = true
		fields["feed_stock_id"] = f.FeedStockID
	}
	return fields
}

// MortalityInput records deaths for the day.
type MortalityInput struct {
	Count int
	Cause string
}

func (MortalityInput) Kind() models.MetricKind { return models.MetricMortality }

func (m MortalityInput) Validate(lot models.Lot) error {
	if m.Count < 0 {
		return validationError("mortality_count", "must not be negative")
	}
	if m.Count > lot.CurrentQuantity {
		return validationError("mortality_count", "%d exceeds the %d birds currently in lot %s", m.Count, lot.CurrentQuantity, lot.Label())
	}
	if m.Cause != "" && !slices.Contains(models.MortalityCauses, m.Cause) {
		return validationError("mortality_cause", "unknown cause %q", m.Cause)
	}
	return nil
}

func (m MortalityInput) Fields() map[string]any {
	cause := m.Cause
	if cause == "" {
		cause = models.DefaultMortalityCause
	}
	return map[string]any{
		"mortality_count": m.Count,
		"mortality_cause": cause,
	}
}

// WeightInput records a sample weighing.
type WeightInput struct {
	AverageWeightG float64
	SampleSize     int
}

func (WeightInput) Kind() models.MetricKind { return models.MetricWeight }

func (w WeightInput) Validate(models.Lot) error {
	if err := checkAmount("average_weight_g", w.AverageWeightG); err != nil {
		return err
	}
	if w.SampleSize < 0 {
		return validationError("sample_size", "must not be negative")
	}
	return nil
}

func (w WeightInput) Fields() map[string]any {
	size := w.SampleSize
	if size == 0 {
		size = models.DefaultWeightSampleSize
	}
	return map[string]any{
		"average_weight_g": roundQuantity(w.AverageWeightG),
		"sample_size":      size,
	}
}

// EggsInput records the egg collection of a layer lot.
type EggsInput struct {
	Normal  int
	Cracked int
	Dirty   int
	Small   int
}

func (EggsInput) Kind() models.MetricKind { return models.MetricEggs }

func (e EggsInput) Validate(lot models.Lot) error {
	if !lot.IsLayer() {
		return validationError("eggs", "lot %s is not a layer lot", lot.Label())
	}
	counts := []struct {
		field string
		n     int
	}{
		{"eggs_normal", e.Normal},
		{"eggs_cracked", e.Cracked},
		{"eggs_dirty", e.Dirty},
		{"eggs_small", e.Small},
	}
	for _, c := range counts {
		if c.n < 0 {
			return validationError(c.field, "must not be negative")
		}
	}
	return nil
}

func (e EggsInput) Fields() map[string]any {
	return map[string]any{
		"eggs_normal":  e.Normal,
		"eggs_cracked": e.Cracked,
		"eggs_dirty":   e.Dirty,
		"eggs_small":   e.Small,
	}
}

// Total is the number of eggs collected.
func (e EggsInput) Total() int {
	return e.Normal + e.Cracked + e.Dirty + e.Small
}

// WaterInput records water consumption.
type WaterInput struct {
	Liters float64
}

func (WaterInput) Kind() models.MetricKind { return models.MetricWater }

func (w WaterInput) Validate(models.Lot) error {
	return checkAmount("water_liters", w.Liters)
}

func (w WaterInput) Fields() map[string]any {
	return map[string]any{"water_liters": roundQuantity(w.Liters)}
}

// PayloadFromFields selects and converts the inputs of one metric.
func PayloadFromFields(kind models.MetricKind, f models.EntryFields) (MetricPayload, error) {
	switch kind {
	case models.MetricFeed:
		if f.FeedQuantityKg == nil {
			return nil, validationError("feed_quantity_kg", "is required")
		}
		return FeedInput{
			QuantityKg:      *f.FeedQuantityKg,
			FeedType:        f.FeedType,
			DeductFromStock: f.DeductFromStock,
			FeedStockID:     f.FeedStockID,
		}, nil
	case models.MetricMortality:
		if f.MortalityCount == nil {
			return nil, validationError("mortality_count", "is required")
		}
		return MortalityInput{Count: *f.MortalityCount, Cause: f.MortalityCause}, nil
	case models.MetricWeight:
		if f.AverageWeightG == nil {
			return nil, validationError("average_weight_g", "is required")
		}
		return WeightInput{AverageWeightG: *f.AverageWeightG, SampleSize: derefInt(f.SampleSize)}, nil
	case models.MetricEggs:
		if f.EggsNormal == nil && f.EggsCracked == nil && f.EggsDirty == nil && f.EggsSmall == nil {
			return nil, validationError("eggs", "at least one egg count is required")
		}
		return EggsInput{
			Normal:  derefInt(f.EggsNormal),
			Cracked: derefInt(f.EggsCracked),
			Dirty:   derefInt(f.EggsDirty),
			Small:   derefInt(f.EggsSmall),
		}, nil
	case models.MetricWater:
		if f.WaterLiters == nil {
			return nil, validationError("water_liters", "is required")
		}
		return WaterInput{Liters: *f.WaterLiters}, nil
	default:
		return nil, validationError("metric", "unknown metric %q", kind)
	}
}

// FieldsFromValues pre-fills form inputs from the stored values of one metric.
func FieldsFromValues(kind models.MetricKind, v models.EntryValues) models.EntryFields {
	var f models.EntryFields
	switch kind {
	case models.MetricFeed:
		if v.Feed != nil {
			f.FeedQuantityKg = ptr(v.Feed.QuantityKg)
			if v.Feed.FeedType != nil {
				f.FeedType = *v.Feed.FeedType
			}
		}
	case models.MetricMortality:
		if v.Mortality != nil {
			f.MortalityCount = ptr(v.Mortality.Count)
			f.MortalityCause = v.Mortality.Cause
		}
	case models.MetricWeight:
		if v.Weight != nil {
			f.AverageWeightG = ptr(v.Weight.AverageWeightG)
			f.SampleSize = ptr(v.Weight.SampleSize)
		}
	case models.MetricEggs:
		if v.Eggs != nil {
			f.EggsNormal = ptr(v.Eggs.Normal)
			f.EggsCracked = ptr(v.Eggs.Cracked)
			f.EggsDirty = ptr(v.Eggs.Dirty)
			f.EggsSmall = ptr(v.Eggs.Small)
		}
	case models.MetricWater:
		if v.Water != nil {
			f.WaterLiters = ptr(v.Water.Liters)
		}
	}
	return f
}

// ParseQuantity reads a user-typed number. Both "1219.7" and "1219,7" are
// accepted.
func ParseQuantity(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	cleaned = strings.Replace(cleaned, ",", ".", 1)
	if cleaned == "" {
		return 0, validationError("quantity", "a number is required")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, validationError("quantity", "%q is not a number", raw)
	}
	return d.InexactFloat64(), nil
}

func checkAmount(field string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return validationError(field, "must be a finite number")
	}
	if v < 0 {
		return validationError(field, "must not be negative")
	}
	return nil
}

func roundQuantity(v float64) float64 {
	return decimal.NewFromFloat(v).Round(quantityPlaces).InexactFloat64()
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func ptr[T any](v T) *T {
	return &v
}
