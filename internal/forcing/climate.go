// Package forcing acquires meteorological, wind, and river-flow observations
// from public web data services and reworks them into the gap-free forcing
// data files the ocean simulation consumes.
package forcing

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/coastwatch/bloomcast/internal/timeseries"
)

// StationRecord is one hourly observation record from the climate data
// service's XML download. Observation fields arrive as strings; an empty or
// absent field means the value was not observed that hour.
type StationRecord struct {
	Year    int    `xml:"year,attr"`
	Month   int    `xml:"month,attr"`
	Day     int    `xml:"day,attr"`
	Hour    int    `xml:"hour,attr"`
	Temp    string `xml:"temp"`
	RelHum  string `xml:"relhum"`
	Weather string `xml:"weather"`
	WindSpd string `xml:"windspd"`
	WindDir string `xml:"winddir"`
}

// Stamp returns the record's observation time.
func (r *StationRecord) Stamp() time.Time {
	return time.Date(r.Year, time.Month(r.Month), r.Day, r.Hour, 0, 0, 0, time.UTC)
}

type stationDataDoc struct {
	Records []StationRecord `xml:"stationdata"`
}

// Reader extracts a quantity value from a station record, or nil when the
// record does not carry an observation for it.
type Reader func(rec *StationRecord) []float64

// ClimateSource fetches hourly observation records, one calendar month per
// request, from the climate data web service.
type ClimateSource struct {
	URL    string
	Params map[string]string
	Client *http.Client
}

// NewClimateSource returns a source for the given service URL and fixed query
// parameters (data format, province, timeframe and the like, straight from
// the config file).
func NewClimateSource(serviceURL string, params map[string]string) *ClimateSource {
	return &ClimateSource{
		URL:    serviceURL,
		Params: params,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

// FetchMonth downloads the hourly records for the given station and data
// month. Records arrive pre-sorted by timestamp at a 1-hour interval.
func (c *ClimateSource) FetchMonth(ctx context.Context, stationID string, month time.Time) ([]StationRecord, error) {
	v := url.Values{}
	for key, value := range c.Params {
		v.Set(key, value)
	}
	v.Set("StationID", stationID)
	v.Set("Year", strconv.Itoa(month.Year()))
	v.Set("Month", strconv.Itoa(int(month.Month())))
	v.Set("Day", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating climate data request: %v", err)
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching climate data: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad response from climate data service: %v", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading climate data response: %v", err)
	}
	records, err := ParseStationData(body)
	if err != nil {
		return nil, errors.Wrapf(err, "climate data for %s", month.Format("2006-01"))
	}
	return records, nil
}

// ParseStationData decodes an XML download into its observation records.
func ParseStationData(doc []byte) ([]StationRecord, error) {
	var parsed stationDataDoc
	if err := xml.Unmarshal(doc, &parsed); err != nil {
		return nil, errors.Wrap(err, "unmarshaling station data XML")
	}
	return parsed.Records, nil
}

// DataMonths returns the sequence of data months to download: January of the
// run start year through the current month, inclusive.
func DataMonths(runStartDate, today time.Time) []time.Time {
	var months []time.Time
	for year := runStartDate.Year(); year <= today.Year(); year++ {
		lastMonth := time.December
		if year == today.Year() {
			lastMonth = today.Month()
		}
		for month := time.January; month <= lastMonth; month++ {
			months = append(months, time.Date(year, month, 1, 0, 0, 0, 0, time.UTC))
		}
	}
	return months
}

// BuildSeries walks raw records in order, applying the reader to each one,
// and produces an hourly series. Reading stops at (and excludes) the first
// record whose calendar date is past endDate, so the series never extends
// beyond the requested horizon. Missing records are not synthesized; only
// missing values within present records are left for the patcher.
func BuildSeries(quantity string, records []StationRecord, read Reader, endDate time.Time) *timeseries.Series {
	s := timeseries.New(quantity)
	for i := range records {
		rec := &records[i]
		stamp := rec.Stamp()
		if recordDate(stamp).After(recordDate(endDate)) {
			break
		}
		s.Append(stamp, read(rec))
	}
	return s
}

func recordDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
