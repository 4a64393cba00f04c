// Package kpi defines the summary metrics shown on the dashboard cards.
// This package is PURE and must NOT import any infrastructure packages.
package kpi

import "math"

// Trend compares a metric with its previous value.
type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// Metric is a value with its trend indicator.
type Metric struct {
	Value float64 `json:"value" yaml:"value"`
	Trend Trend   `json:"trend" yaml:"trend"`
}

// Set is the full KPI panel of a region.
type Set struct {
	SectionThroughput Metric `json:"sectionThroughput" yaml:"sectionThroughput"` // trains per hour
	Punctuality       Metric `json:"punctuality" yaml:"punctuality"`             // percent
	AvgDelay          Metric `json:"avgDelay" yaml:"avgDelay"`                   // minutes
	TrackUtilization  Metric `json:"trackUtilization" yaml:"trackUtilization"`   // percent
}

// Compare returns the trend of next against prev.
func Compare(next, prev float64) Trend {
	switch {
	case next > prev:
		return TrendUp
	case next < prev:
		return TrendDown
	default:
		return TrendStable
	}
}

// Punctuality is the unrounded percentage of on-time trains, 100 for an
// empty roster.
func Punctuality(onTime, total int) float64 {
	if total <= 0 {
		return 100
	}
	return float64(onTime) / float64(total) * 100
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Observe stores raw rounded to one decimal. The trend compares the raw
// reading against the stored value, so a ratio just below its rounded
// predecessor reads as down.
func (m Metric) Observe(raw float64) Metric {
	return Metric{Value: Round1(raw), Trend: Compare(raw, m.Value)}
}
