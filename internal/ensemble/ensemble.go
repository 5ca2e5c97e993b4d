// Package ensemble turns a set of per-member bloom predictions, one per
// historical forcing year, into percentile-based early, median, and late
// bloom date predictions.
package ensemble

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ErrNoMatchingMember reports that no ensemble member's bloom date falls
// within the search radius of a percentile-derived ordinal day. That can only
// happen when the date distribution has a hole wider than the search radius
// around one of its percentiles.
var ErrNoMatchingMember = errors.New(
	"no ensemble member bloom date within 10 days of the percentile date")

// memberSearchRadius is how many days on either side of a percentile date
// the member search extends.
const memberSearchRadius = 10

// Prediction identifies the ensemble members whose bloom dates realize the
// percentile summary of the date distribution. Median is the member closest
// to the distribution's median; Early and Late bound the central 90%; Min and
// Max are the extremes.
type Prediction struct {
	Median int
	Early  int
	Late   int
	Min    int
	Max    int
}

// Aggregate reduces per-member bloom dates to a percentile prediction. Member
// identifiers are forcing years.
func Aggregate(bloomDates map[int]time.Time, log *zap.SugaredLogger) (Prediction, error) {
	if len(bloomDates) == 0 {
		return Prediction{}, errors.New("no ensemble member bloom dates to aggregate")
	}
	ordDays := make([]float64, 0, len(bloomDates))
	for _, date := range bloomDates {
		ordDays = append(ordDays, float64(ordinalDay(date)))
	}
	sort.Float64s(ordDays)

	quantile := func(p float64) float64 {
		return percentile(ordDays, p)
	}
	var p Prediction
	var err error
	targets := []struct {
		member *int
		ordDay float64
	}{
		{&p.Median, math.RoundToEven(quantile(0.5))},
		{&p.Early, math.Trunc(quantile(0.05))},
		{&p.Late, math.Ceil(quantile(0.95))},
		{&p.Min, math.Trunc(quantile(0))},
		{&p.Max, math.Ceil(quantile(1))},
	}
	for _, target := range targets {
		*target.member, err = findMember(bloomDates, int(target.ordDay))
		if err != nil {
			return Prediction{}, err
		}
	}

	log.Debugf("predicted earliest bloom date is %s",
		bloomDates[p.Min].Format("2006-01-02"))
	log.Infof("predicted early bound bloom date is %s",
		bloomDates[p.Early].Format("2006-01-02"))
	log.Infof("predicted median bloom date is %s",
		bloomDates[p.Median].Format("2006-01-02"))
	log.Infof("predicted late bound bloom date is %s",
		bloomDates[p.Late].Format("2006-01-02"))
	log.Debugf("predicted latest bloom date is %s",
		bloomDates[p.Max].Format("2006-01-02"))
	return p, nil
}

// percentile returns the linearly interpolated percentile p of a sorted
// sample: the value at fractional position p*(n-1), interpolated between the
// two neighboring samples. At p=0.5 this is the sample median.
func percentile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := math.Floor(pos)
	hi := math.Ceil(pos)
	if lo == hi {
		return sorted[int(pos)]
	}
	return sorted[int(lo)] + (sorted[int(hi)]-sorted[int(lo)])*(pos-lo)
}

// ordinalDay numbers UTC calendar days consecutively.
func ordinalDay(t time.Time) int {
	return int(t.Unix() / 86400)
}

// findMember returns the member whose bloom date is ordDay. When no member
// matches exactly, adjacent days are searched outward, later day first. When
// several members match, the one with the most recent forcing year wins.
func findMember(bloomDates map[int]time.Time, ordDay int) (int, error) {
	matchesOn := func(day int) []int {
		var matches []int
		for member, date := range bloomDates {
			if ordinalDay(date) == day {
				matches = append(matches, member)
			}
		}
		return matches
	}
	matches := matchesOn(ordDay)
	for i := 1; len(matches) == 0 && i <= memberSearchRadius; i++ {
		matches = append(matches, matchesOn(ordDay+i)...)
		matches = append(matches, matchesOn(ordDay-i)...)
	}
	if len(matches) == 0 {
		return 0, ErrNoMatchingMember
	}
	best := matches[0]
	for _, member := range matches[1:] {
		if member > best {
			best = member
		}
	}
	return best, nil
}

// TwoYearSuffix returns the `_XXYY` filename suffix for an ensemble member:
// the last two digits of the year before the forcing year, then of the
// forcing year itself. 1981 produces `_8081`.
func TwoYearSuffix(year int) string {
	return fmt.Sprintf("_%02d%02d", (year-1)%100, year%100)
}

// LogLine formats an ensemble prediction as a bloom date evolution log line:
// the forcing data date, then the bloom date and forcing year for each of the
// median, early, late, min, and max members.
func LogLine(dataDate time.Time, p Prediction, bloomDates map[int]time.Time) string {
	line := fmt.Sprintf("  %s", dataDate.Format("2006-01-02"))
	for _, member := range []int{p.Median, p.Early, p.Late, p.Min, p.Max} {
		line += fmt.Sprintf(
			"      %s  %d", bloomDates[member].Format("2006-01-02"), member)
	}
	return line
}
