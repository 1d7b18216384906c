package dailyentry

import "github.com/shopspring/decimal"

// quantityPlaces is the resolution the backend keeps stock quantities at.
const quantityPlaces = 2

// Sufficiency is the result of a stock pre-check.
type Sufficiency struct {
	Sufficient  bool
	RemainderKg decimal.Decimal
}

// RemainderFloat returns the remainder as a float for JSON views.
func (s Sufficiency) RemainderFloat() float64 {
	return s.RemainderKg.InexactFloat64()
}

// CheckSufficiency reports whether requestedKg can be drawn from availableKg.
// Both amounts are rounded to hundredths of a kilogram first. The remainder is
// negative exactly when the stock is insufficient.
func CheckSufficiency(requestedKg, availableKg decimal.Decimal) Sufficiency {
	requested := requestedKg.Round(quantityPlaces)
	available := availableKg.Round(quantityPlaces)
	return Sufficiency{
		Sufficient:  requested.LessThanOrEqual(available),
		RemainderKg: available.Sub(requested),
	}
}

// CheckSufficiencyKg is CheckSufficiency for float inputs.
func CheckSufficiencyKg(requestedKg, availableKg float64) Sufficiency {
	return CheckSufficiency(decimal.NewFromFloat(requestedKg), decimal.NewFromFloat(availableKg))
}
