package forcing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coastwatch/bloomcast/internal/timeseries"
	"github.com/coastwatch/bloomcast/pkg/config"
)

// straitHeadingDeg is the bearing of the strait's major axis. Wind components
// are resolved along and across it.
const straitHeadingDeg = 305.0

// Outcome reports whether a forcing data collection run produced new data.
type Outcome int

const (
	// Proceeded means new forcing data was collected and written.
	Proceeded Outcome = iota
	// SkippedNoNewData means the provider's wind data date is unchanged
	// since the previous run, so the whole pipeline run stops early. This
	// is a routine condition, not an error.
	SkippedNoNewData
)

// ReadWindVelocity extracts wind speed (km/h) and direction (tenths of
// degrees) from a station record and resolves them into cross-strait and
// along-strait components in m/s, oceanographic convention (positive towards,
// not from). Either field missing yields a missing sample.
func ReadWindVelocity(rec *StationRecord) []float64 {
	speedStr := strings.TrimSpace(rec.WindSpd)
	dirStr := strings.TrimSpace(rec.WindDir)
	if speedStr == "" || speedStr == "NA" || dirStr == "" || dirStr == "NA" {
		return nil
	}
	speed, err := strconv.ParseFloat(speedStr, 64)
	if err != nil {
		// Some records carry an unparseable token for calm conditions;
		// treat a zero-looking one as a valid zero.
		if strings.Trim(speedStr, "0.") == "" {
			speed = 0
		} else {
			return nil
		}
	}
	dirTenths, err := strconv.ParseFloat(dirStr, 64)
	if err != nil {
		return nil
	}
	// km/h to m/s; tenths of degrees to degrees
	speed = speed * 1000 / 3600
	direction := dirTenths * 10

	radians := direction * math.Pi / 180
	uWind := speed * math.Sin(radians)
	vWind := speed * math.Cos(radians)
	heading := straitHeadingDeg * math.Pi / 180
	crossWind := uWind*math.Cos(heading) - vWind*math.Sin(heading)
	alongWind := uWind*math.Sin(heading) + vWind*math.Cos(heading)
	// Resolve the atmosphere/ocean direction convention difference in
	// favour of oceanography.
	return []float64{-crossWind, -alongWind}
}

// WindPipeline produces the hourly wind forcing data file and establishes the
// run's forcing data date.
type WindPipeline struct {
	cfg    config.WindConfig
	source *ClimateSource
	log    *zap.SugaredLogger
}

// NewWindPipeline returns a pipeline using the given climate data source.
func NewWindPipeline(cfg config.WindConfig, source *ClimateSource, log *zap.SugaredLogger) *WindPipeline {
	return &WindPipeline{cfg: cfg, source: source, log: log}
}

// MakeForcingFile fetches the wind observations, trims incomplete days from
// the end, patches missing values, and writes the wind forcing file.
//
// Returns the date of the last day for which wind data was obtained; that
// date bounds the meteorological and river series so all forcing files end on
// the same day.
func (p *WindPipeline) MakeForcingFile(ctx context.Context, runStartDate time.Time) (time.Time, error) {
	var records []StationRecord
	for _, month := range DataMonths(runStartDate, time.Now().UTC()) {
		monthly, err := p.source.FetchMonth(ctx, p.cfg.StationID, month)
		if err != nil {
			return time.Time{}, err
		}
		p.log.Debugf("got wind data for %s", month.Format("2006-01"))
		records = append(records, monthly...)
	}

	series := BuildSeries(config.Wind, records, ReadWindVelocity, farFuture)
	if err := series.TrimTrailing(24); err != nil {
		return time.Time{}, fmt.Errorf("wind: %w", err)
	}
	if _, err := series.Patch(p.log, maxSilentGapHours); err != nil {
		return time.Time{}, err
	}
	last, _ := series.Last()
	p.log.Debugf("latest wind %s %v", last.Stamp.Format("2006-01-02 15:04"), last.Value)

	if err := writeForcingFile(p.cfg.OutputFile, func(w io.Writer) error {
		return WriteWindForcing(w, series)
	}); err != nil {
		return time.Time{}, err
	}
	return recordDate(last.Stamp), nil
}

// farFuture leaves the wind series unbounded; the wind data itself defines
// the run's data date.
var farFuture = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)

// WriteWindForcing renders a patched hourly wind series as forcing lines, one
// sample per line: day, month, year, the hour as a 1-decimal float, then the
// cross-strait and along-strait components to 6 decimal places.
func WriteWindForcing(w io.Writer, s *timeseries.Series) error {
	bw := bufio.NewWriter(w)
	for _, smp := range s.Samples {
		if smp.Missing() {
			return fmt.Errorf(
				"wind: unpatched missing value at %s in forcing file output",
				smp.Stamp.Format("2006-01-02 15:04"))
		}
		fmt.Fprintf(bw, "%s %.1f %f %f\n",
			smp.Stamp.Format("02 01 2006"), float64(smp.Stamp.Hour()),
			smp.Value[0], smp.Value[1])
	}
	return bw.Flush()
}

// CheckDataDate compares the freshly established forcing data date with the
// one recorded by the previous run in markerFile. A new date is recorded and
// the pipeline proceeds; an unchanged date means there is nothing new to
// forecast from.
func CheckDataDate(markerFile string, dataDate, runStartDate time.Time) (Outcome, error) {
	lastDataDate := recordDate(runStartDate)
	raw, err := os.ReadFile(markerFile)
	if err == nil {
		parsed, perr := config.ParseDate(strings.TrimSpace(string(raw)))
		if perr != nil {
			return Proceeded, fmt.Errorf("corrupt data date marker %s: %w", markerFile, perr)
		}
		lastDataDate = parsed
	}
	// A missing marker file fakes a data date to get things rolling.
	if dataDate.Equal(lastDataDate) {
		return SkippedNoNewData, nil
	}
	if err := os.WriteFile(
		markerFile, []byte(dataDate.Format("2006-01-02")+"\n"), 0o644); err != nil {
		return Proceeded, fmt.Errorf("error recording data date: %w", err)
	}
	return Proceeded, nil
}
