// Package timeseries holds the gap-free time series construction machinery
// that all forcing data quantities flow through: append-in-order construction,
// trailing-period trimming, and linear-interpolation patching of missing
// samples.
package timeseries

import (
	"errors"
	"time"
)

// ErrEmptySeries is returned when trimming consumes an entire series.
// It marks a data-availability fault: the provider returned nothing usable
// for the requested horizon, so no forecast can be produced this cycle.
var ErrEmptySeries = errors.New("series is empty after trimming")

// ErrBoundaryGap is returned when a run of missing samples touches the start
// or end of a series, where no bounding value exists to interpolate from.
// Trailing gaps are removed by trimming before patching, so hitting this
// almost always means trimming was skipped or the series starts with a gap.
var ErrBoundaryGap = errors.New("missing-value run touches series boundary")

// Sample is one observation. Value is a component vector: one element for
// scalar quantities, two for wind (cross-strait, along-strait). A nil Value
// marks a missing observation.
type Sample struct {
	Stamp time.Time
	Value []float64
}

// Missing reports whether the sample carries no observed value.
func (s Sample) Missing() bool {
	return s.Value == nil
}

// Series is an ordered sequence of samples at a uniform nominal interval
// (hourly for raw observations, daily for river flows and resampled biology).
// Timestamps are assumed to arrive pre-sorted from the provider walk; the
// series does not re-sort.
type Series struct {
	// Quantity names the forcing quantity for log messages,
	// e.g. "air_temperature" or "wind".
	Quantity string
	Samples  []Sample
}

// New returns an empty series for the named quantity.
func New(quantity string) *Series {
	return &Series{Quantity: quantity}
}

// Append adds a sample to the end of the series.
func (s *Series) Append(stamp time.Time, value []float64) {
	s.Samples = append(s.Samples, Sample{Stamp: stamp, Value: value})
}

// Len returns the number of samples in the series.
func (s *Series) Len() int {
	return len(s.Samples)
}

// Last returns the final sample. ok is false for an empty series.
func (s *Series) Last() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}
