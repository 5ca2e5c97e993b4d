package forcing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/coastwatch/bloomcast/internal/timeseries"
	"github.com/coastwatch/bloomcast/pkg/config"
)

// overcastCode is the cloud fraction substituted for weather descriptions the
// mapping does not know.
const overcastCode = 10.0

// maxSilentGapHours is the longest missing-data run that is patched without
// raising a warning.
const maxSilentGapHours = 11

// ReadTemperature extracts air temperature from a station record, scaled to
// tenths of degrees Celsius. The simulation's forcing file format inherited
// the integer-tenths convention from legacy provider files.
func ReadTemperature(rec *StationRecord) []float64 {
	v, ok := parseObservation(rec.Temp)
	if !ok {
		return nil
	}
	return []float64{v * 10}
}

// ReadHumidity extracts relative humidity (percent) from a station record.
func ReadHumidity(rec *StationRecord) []float64 {
	v, ok := parseObservation(rec.RelHum)
	if !ok {
		return nil
	}
	return []float64{v}
}

func parseObservation(field string) (float64, bool) {
	field = strings.TrimSpace(field)
	if field == "" || field == "NA" {
		return 0, false
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// CloudFractionMapping maps provider weather description strings to cloud
// fraction codes. Each description carries either a single year-round average
// or 12 per-calendar-month averages.
type CloudFractionMapping map[string][]float64

// LoadCloudFractionMapping reads the mapping from its YAML file.
func LoadCloudFractionMapping(filename string) (CloudFractionMapping, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading cloud fraction mapping: %w", err)
	}
	mapping := CloudFractionMapping{}
	if err := yaml.Unmarshal(raw, &mapping); err != nil {
		return nil, errors.Wrapf(err, "parsing cloud fraction mapping %s", filename)
	}
	for desc, values := range mapping {
		if len(values) != 1 && len(values) != 12 {
			return nil, fmt.Errorf(
				"cloud fraction mapping for %q must have 1 or 12 values, has %d",
				desc, len(values))
		}
	}
	return mapping, nil
}

// Reader returns a reader that maps the record's weather description to a
// cloud fraction. A "NA"/absent description is missing data; an unrecognized
// one maps to the overcast code with a warning so the mapping can be extended.
func (m CloudFractionMapping) Reader(log *zap.SugaredLogger) Reader {
	return func(rec *StationRecord) []float64 {
		desc := strings.TrimSpace(rec.Weather)
		if desc == "" || desc == "NA" {
			return nil
		}
		values, ok := m[desc]
		if !ok {
			log.Warnf(
				"Unrecognized weather description: %s at %s; cloud fraction set to 10",
				desc, rec.Stamp().Format("2006-01-02 15:04:05"))
			return []float64{overcastCode}
		}
		if len(values) == 1 {
			return []float64{values[0]}
		}
		return []float64{values[rec.Stamp().Month()-1]}
	}
}

// MeteoPipeline produces the hourly air temperature, relative humidity, and
// cloud fraction forcing data files.
type MeteoPipeline struct {
	cfg    config.MeteoConfig
	source *ClimateSource
	log    *zap.SugaredLogger
}

// NewMeteoPipeline returns a pipeline using the given climate data source.
func NewMeteoPipeline(cfg config.MeteoConfig, source *ClimateSource, log *zap.SugaredLogger) *MeteoPipeline {
	return &MeteoPipeline{cfg: cfg, source: source, log: log}
}

// MakeForcingFiles fetches the meteorological observations, builds one series
// per quantity bounded by dataDate, trims incomplete days from the end,
// patches missing values, and writes each quantity's forcing file.
func (p *MeteoPipeline) MakeForcingFiles(ctx context.Context, runStartDate, dataDate time.Time) error {
	mapping, err := LoadCloudFractionMapping(p.cfg.CloudFractionMapping)
	if err != nil {
		return err
	}
	readers := map[string]Reader{
		config.AirTemperature:   ReadTemperature,
		config.RelativeHumidity: ReadHumidity,
		config.CloudFraction:    mapping.Reader(p.log),
	}

	var records []StationRecord
	for _, month := range DataMonths(runStartDate, time.Now().UTC()) {
		monthly, err := p.source.FetchMonth(ctx, p.cfg.StationID, month)
		if err != nil {
			return err
		}
		p.log.Debugf("got meteo data for %s", month.Format("2006-01"))
		records = append(records, monthly...)
	}

	for _, qty := range config.MeteoQuantities {
		series := BuildSeries(qty, records, readers[qty], dataDate)
		if err := series.TrimTrailing(24); err != nil {
			return fmt.Errorf("%s: %w", qty, err)
		}
		if _, err := series.Patch(p.log, maxSilentGapHours); err != nil {
			return err
		}
		last, _ := series.Last()
		p.log.Debugf("latest %s %s %v", qty, last.Stamp.Format("2006-01-02 15:04"), last.Value)
		if err := writeForcingFile(p.cfg.OutputFiles[qty], func(w io.Writer) error {
			return WriteMeteoForcing(w, p.cfg.StationID, series, p.log)
		}); err != nil {
			return err
		}
	}
	return nil
}

// WriteMeteoForcing renders a patched hourly series as meteorological forcing
// lines, one day per line: station id, date, the legacy quantity code 42, and
// 24 hourly values to 2 decimal places.
//
// The cloud fraction series can still carry missing values in its final day
// when the provider skips the 23:00 weather description on dry nights; those
// are rendered by persisting the last valid value, with a warning.
func WriteMeteoForcing(w io.Writer, stationID string, s *timeseries.Series, log *zap.SugaredLogger) error {
	bw := bufio.NewWriter(w)
	lastValid := 0.0
	haveValid := false
	for day := 0; day < s.Len()/24; day++ {
		samples := s.Samples[day*24 : (day+1)*24]
		fmt.Fprintf(bw, "%s %s 42", stationID, samples[0].Stamp.Format("2006 01 02"))
		for _, smp := range samples {
			switch {
			case !smp.Missing():
				lastValid = smp.Value[0]
				haveValid = true
				fmt.Fprintf(bw, " %.2f", smp.Value[0])
			case s.Quantity == config.CloudFraction && haveValid:
				log.Warnf(
					"missing cloud fraction value at %s filled with %.2f",
					smp.Stamp.Format("2006-01-02 15:04"), lastValid)
				fmt.Fprintf(bw, " %.2f", lastValid)
			default:
				return fmt.Errorf(
					"%s: unpatched missing value at %s in forcing file output",
					s.Quantity, smp.Stamp.Format("2006-01-02 15:04"))
			}
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

func writeForcingFile(filename string, write func(io.Writer) error) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating forcing data file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
