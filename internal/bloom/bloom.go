// Package bloom locates the first spring diatom bloom in post-simulation
// nitrate and diatom biomass time series.
//
// The bloom definition follows Allen & Wolfe: the peak phytoplankton
// concentration (averaged from the surface to 3 m depth) within four days of
// the average 0-3 m nitrate concentration going below 0.5 uM, the
// half-saturation concentration, for two consecutive days.
package bloom

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coastwatch/bloomcast/internal/sim"
)

const (
	// NitrateHalfSaturation is the nitrate concentration threshold below
	// which phytoplankton growth is nutrient limited, in uM N.
	NitrateHalfSaturation = 0.5
	// PeakWindowHalfWidth is the number of days before and after the first
	// low-nitrate days within which the biomass peak is sought.
	PeakWindowHalfWidth = 4
)

// ErrNoBloomWindow reports that the nitrate series never goes to and stays at
// or below the half-saturation concentration for two consecutive days, so no
// bloom date can be predicted from this run.
var ErrNoBloomWindow = errors.New(
	"no two consecutive days with nitrate concentration at or below the half-saturation threshold")

// Result is a predicted bloom: the date of the diatom biomass peak and the
// biomass on that date in uM N.
type Result struct {
	Date    time.Time
	Biomass float64
}

// dailySeries pairs calendar dates with one value per day.
type dailySeries struct {
	dates  []time.Time
	values []float64
}

// FindBloom reduces a run's nitrate and diatom biomass time series to daily
// values for the bloom year and locates the first spring bloom. Both series
// share the model time base: hours since runStartDate at a fixed timestep.
func FindBloom(nitrate, diatoms *sim.Timeseries, runStartDate time.Time, timestepSeconds int, log *zap.SugaredLogger) (Result, error) {
	nitrateDaily, diatomsDaily := reduceToDaily(
		nitrate, diatoms, runStartDate, timestepSeconds)
	day1, day2, err := findLowNitrateDays(nitrateDaily, NitrateHalfSaturation, log)
	if err != nil {
		return Result{}, err
	}
	return findBiomassPeak(diatomsDaily, day1, day2, PeakWindowHalfWidth, log)
}

// reduceToDaily clips both series so they start on 1 January of the year
// after the run start, then reduces them to daily values: daily minimum for
// nitrate, daily maximum for diatom biomass. A trailing partial day is
// dropped.
func reduceToDaily(nitrate, diatoms *sim.Timeseries, runStartDate time.Time, timestepSeconds int) (dailySeries, dailySeries) {
	jan1 := time.Date(runStartDate.Year()+1, 1, 1, 0, 0, 0, 0, time.UTC)
	discardHours := jan1.Sub(runStartDate).Hours()
	start := 0
	for start < len(nitrate.Indep) && nitrate.Indep[start] < discardHours {
		start++
	}
	nitrateVals := nitrate.Dep[start:]
	diatomVals := diatoms.Dep[start:]

	// An integral number of simulation timesteps per day is assumed.
	daySlice := 86400 / timestepSeconds
	reduce := func(values []float64, pick func(block []float64) float64) dailySeries {
		var daily dailySeries
		for i := 0; i < len(values)-daySlice; i += daySlice {
			daily.values = append(daily.values, pick(values[i:i+daySlice]))
			daily.dates = append(daily.dates, jan1.AddDate(0, 0, len(daily.dates)))
		}
		return daily
	}
	nitrateDaily := reduce(nitrateVals, blockMin)
	diatomsDaily := reduce(diatomVals, blockMax)
	return nitrateDaily, diatomsDaily
}

func blockMin(block []float64) float64 {
	m := block[0]
	for _, v := range block[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func blockMax(block []float64) float64 {
	m := block[0]
	for _, v := range block[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// findLowNitrateDays returns the first pair of consecutive calendar days on
// which the daily minimum nitrate concentration is at or below threshold.
func findLowNitrateDays(nitrate dailySeries, threshold float64, log *zap.SugaredLogger) (time.Time, time.Time, error) {
	var lowDates []time.Time
	for i, v := range nitrate.values {
		if v <= threshold {
			lowDates = append(lowDates, nitrate.dates[i])
		}
	}
	log.Debugf(
		"%d dates on which nitrate was <= %v uM N", len(lowDates), threshold)
	for i := 0; i+1 < len(lowDates); i++ {
		if lowDates[i+1].Sub(lowDates[i]) == 24*time.Hour {
			return lowDates[i], lowDates[i+1], nil
		}
	}
	return time.Time{}, time.Time{}, ErrNoBloomWindow
}

// findBiomassPeak returns the date within halfWidth days of the low-nitrate
// days on which the daily maximum diatom biomass is greatest. The earliest
// date wins ties.
func findBiomassPeak(diatoms dailySeries, day1, day2 time.Time, halfWidth int, log *zap.SugaredLogger) (Result, error) {
	windowStart := day1.AddDate(0, 0, -halfWidth)
	windowEnd := day2.AddDate(0, 0, halfWidth)
	log.Debugf(
		"bloom window is between %s and %s",
		windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))

	peak := -1
	for i, d := range diatoms.dates {
		if d.Before(windowStart) || d.After(windowEnd) {
			continue
		}
		if peak < 0 || diatoms.values[i] > diatoms.values[peak] {
			peak = i
		}
	}
	if peak < 0 {
		return Result{}, fmt.Errorf(
			"no diatom biomass values in bloom window %s to %s",
			windowStart.Format("2006-01-02"), windowEnd.Format("2006-01-02"))
	}
	result := Result{Date: diatoms.dates[peak], Biomass: diatoms.values[peak]}
	log.Infof("predicted bloom date is %s", result.Date.Format("2006-01-02"))
	log.Debugf(
		"phytoplankton biomass on bloom date is %v uM N", result.Biomass)
	return result, nil
}
