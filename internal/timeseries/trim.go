package timeseries

// TrimTrailing removes whole trailing periods from the end of the series so
// that only fully-observed periods remain. A period is periodLen consecutive
// samples (24 hourly samples = 1 day; 1 for daily quantities).
//
// Two rules apply in order:
//
//  1. While the last period contains only missing values, delete it.
//  2. While the very last sample is missing (data cut off mid-period),
//     delete the entire last period.
//
// If either rule consumes the whole series, ErrEmptySeries is returned; the
// caller treats that as "cannot produce a forecast this cycle" rather than
// patching silently.
func (s *Series) TrimTrailing(periodLen int) error {
	for len(s.Samples) > 0 && s.lastPeriodAllMissing(periodLen) {
		s.dropLastPeriod(periodLen)
	}
	if len(s.Samples) == 0 {
		return ErrEmptySeries
	}
	for len(s.Samples) > 0 && s.Samples[len(s.Samples)-1].Missing() {
		s.dropLastPeriod(periodLen)
	}
	if len(s.Samples) == 0 {
		return ErrEmptySeries
	}
	return nil
}

func (s *Series) lastPeriodAllMissing(periodLen int) bool {
	start := len(s.Samples) - periodLen
	if start < 0 {
		start = 0
	}
	for _, smp := range s.Samples[start:] {
		if !smp.Missing() {
			return false
		}
	}
	return true
}

func (s *Series) dropLastPeriod(periodLen int) {
	cut := len(s.Samples) - periodLen
	if cut < 0 {
		cut = 0
	}
	s.Samples = s.Samples[:cut]
}
