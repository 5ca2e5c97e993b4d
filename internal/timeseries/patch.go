package timeseries

import (
	"fmt"

	"go.uber.org/zap"
)

// Patch scans the series once, left to right, and fills every interior run of
// missing samples by linear interpolation between the bounding known values.
// Each patched sample is logged at debug level; a run longer than maxSilentGap
// samples additionally emits a warning naming the gap's start, because a gap
// that size is too large to be confidently synthetic. The total patched count
// is logged once at the end.
//
// A run touching the start or end of the series has no bounding value on one
// side and cannot be interpolated; Patch fails with ErrBoundaryGap. Trimming
// removes trailing gaps before patching, so in practice this only fires for a
// leading gap.
//
// Returns the number of samples patched.
func (s *Series) Patch(log *zap.SugaredLogger, maxSilentGap int) (int, error) {
	patched := 0
	gapStart := -1
	for i, smp := range s.Samples {
		if smp.Missing() {
			if gapStart < 0 {
				gapStart = i
			}
			continue
		}
		if gapStart >= 0 {
			if err := s.interpolate(log, gapStart, i-1, maxSilentGap); err != nil {
				return 0, err
			}
			patched += i - gapStart
			gapStart = -1
		}
	}
	if gapStart >= 0 {
		return 0, fmt.Errorf(
			"%s: %w: %d missing samples ending at %s",
			s.Quantity, ErrBoundaryGap, len(s.Samples)-gapStart,
			s.Samples[len(s.Samples)-1].Stamp.Format("2006-01-02 15:04"))
	}
	if patched > 0 {
		log.Debugf(
			"%d %s data values patched; see debug log on disk for details",
			patched, s.Quantity)
	}
	return patched, nil
}

// interpolate fills the maximal missing run [gapStart, gapEnd] (inclusive)
// between the known values just outside it. For a run of length L bounded by
// v0 and v1, position k (1-indexed) gets v0 + (v1-v0)*k/(L+1); vector
// components are interpolated independently.
func (s *Series) interpolate(log *zap.SugaredLogger, gapStart, gapEnd, maxSilentGap int) error {
	gapLen := gapEnd - gapStart + 1
	if gapStart == 0 {
		return fmt.Errorf(
			"%s: %w: %d missing samples starting at %s",
			s.Quantity, ErrBoundaryGap, gapLen,
			s.Samples[gapStart].Stamp.Format("2006-01-02 15:04"))
	}
	if gapLen > maxSilentGap {
		log.Warnf(
			"A %s forcing data gap > %d hr starting at %s "+
				"has been patched by linear interpolation",
			s.Quantity, maxSilentGap,
			s.Samples[gapStart].Stamp.Format("2006-01-02 15:04"))
	}
	v0 := s.Samples[gapStart-1].Value
	v1 := s.Samples[gapEnd+1].Value
	for k := 1; k <= gapLen; k++ {
		value := make([]float64, len(v0))
		for c := range v0 {
			value[c] = v0[c] + (v1[c]-v0[c])*float64(k)/float64(gapLen+1)
		}
		s.Samples[gapStart+k-1].Value = value
		log.Debugf(
			"%s data patched for %s",
			s.Quantity, s.Samples[gapStart+k-1].Stamp.Format("2006-01-02 15:04:05"))
	}
	return nil
}
