package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text    string
		typ     CommandType
		args    []string
		options map[string]string
	}{
		{"/feed F1 50 type=grower stock=S1", CommandFeed, []string{"F1", "50"}, map[string]string{"type": "grower", "stock": "S1"}},
		{"Water F1 80", CommandWater, []string{"F1", "80"}, nil},
		{"  eggs L1 900 12  ", CommandEggs, []string{"L1", "900", "12"}, nil},
		{"mortality F1 3 cause=Disease DATE=2025-06-01", CommandMortality, []string{"F1", "3"}, map[string]string{"cause": "Disease", "date": "2025-06-01"}},
		{"/status F1", CommandStatus, []string{"F1"}, nil},
		{"help", CommandHelp, nil, nil},
		{"/sales 10", CommandUnknown, []string{"10"}, nil},
		{"", CommandUnknown, nil, nil},
		{"/weight F1 1219,7 =x", CommandWeight, []string{"F1", "1219,7", "=x"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			cmd := ParseCommand(tc.text)
			assert.Equal(t, tc.typ, cmd.Type)
			assert.Equal(t, tc.args, cmd.Args)
			assert.Equal(t, tc.options, cmd.Options)
			assert.Equal(t, tc.text, cmd.Raw)
		})
	}
}

func TestCommandMetric(t *testing.T) {
	m, ok := ParseCommand("/feed F1 50").Metric()
	assert.True(t, ok)
	assert.Equal(t, MetricFeed, m)

	_, ok = ParseCommand("/status F1").Metric()
	assert.False(t, ok)
}

func TestEntryValuesMissing(t *testing.T) {
	v := EntryValues{
		Feed:  &FeedValue{QuantityKg: 50},
		Water: &WaterValue{Liters: 80},
	}
	assert.True(t, v.Has(MetricFeed))
	assert.False(t, v.Has(MetricMortality))
	assert.False(t, v.Has("milk"))
	assert.Equal(t, []MetricKind{MetricMortality, MetricEggs}, v.Missing(MetricFeed, MetricMortality, MetricWater, MetricEggs))
	assert.Nil(t, v.Missing(MetricFeed))
}

func TestParseMetricKind(t *testing.T) {
	k, ok := ParseMetricKind(" Mortality ")
	assert.True(t, ok)
	assert.Equal(t, MetricMortality, k)

	_, ok = ParseMetricKind("sales")
	assert.False(t, ok)
}

func TestLotLabelAndStockLookup(t *testing.T) {
	assert.Equal(t, "P-12", Lot{ID: "42", Code: "P-12"}.Label())
	assert.Equal(t, "42", Lot{ID: "42"}.Label())
	assert.True(t, Lot{Type: LotTypeLayer}.IsLayer())

	stocks := []FeedStock{{ID: "S1"}, {ID: "S2", FeedType: "grower"}}
	s, ok := FindStock(stocks, "S2")
	assert.True(t, ok)
	assert.Equal(t, "grower", s.FeedType)
	_, ok = FindStock(stocks, "S9")
	assert.False(t, ok)
}
