package forcing

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"gonum.org/v1/gonum/stat"

	"github.com/coastwatch/bloomcast/internal/timeseries"
	"github.com/coastwatch/bloomcast/pkg/config"
)

// RiverReading is one sub-daily gauge reading scraped from the river data
// service's HTML table.
type RiverReading struct {
	Stamp time.Time
	Flow  float64
}

// RiversPipeline produces one daily-average river flow forcing data file per
// configured gauge.
type RiversPipeline struct {
	cfg    config.RiversConfig
	client *http.Client
	log    *zap.SugaredLogger
}

// NewRiversPipeline returns a pipeline for the configured river gauges.
func NewRiversPipeline(cfg config.RiversConfig, log *zap.SugaredLogger) *RiversPipeline {
	return &RiversPipeline{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		log:    log,
	}
}

// MakeForcingFiles fetches each gauge's readings, reduces them to daily
// averages bounded by dataDate, patches missing days, and writes each river's
// forcing file.
func (p *RiversPipeline) MakeForcingFiles(ctx context.Context, runStartDate, dataDate time.Time) error {
	for _, river := range p.cfg.Rivers {
		readings, err := p.fetchReadings(ctx, river, runStartDate, dataDate)
		if err != nil {
			return err
		}
		series, err := DailyFlowSeries(river.Name, readings, river.ScaleFactor, dataDate)
		if err != nil {
			return err
		}
		if err := series.TrimTrailing(1); err != nil {
			return fmt.Errorf("%s river: %w", river.Name, err)
		}
		if _, err := series.Patch(p.log, maxSilentGapHours); err != nil {
			return err
		}
		last, _ := series.Last()
		p.log.Debugf(
			"latest %s river flow %s %v",
			river.Name, last.Stamp.Format("2006-01-02"), last.Value)
		if err := writeForcingFile(river.OutputFile, func(w io.Writer) error {
			return WriteRiverForcing(w, series)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *RiversPipeline) fetchReadings(ctx context.Context, river config.RiverConfig, runStartDate, dataDate time.Time) ([]RiverReading, error) {
	v := url.Values{}
	for key, value := range p.cfg.Params {
		v.Set(key, value)
	}
	v.Set("stn", river.StationID)
	endDate := dataDate.AddDate(0, 0, 1)
	v.Set("syr", strconv.Itoa(runStartDate.Year()))
	v.Set("smo", "1")
	v.Set("sday", "1")
	v.Set("eyr", strconv.Itoa(endDate.Year()))
	v.Set("emo", strconv.Itoa(int(endDate.Month())))
	v.Set("eday", strconv.Itoa(endDate.Day()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.DataURL+"?"+v.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("error creating river data request: %v", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s river data: %v", river.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad response from river data service: %v", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading river data response: %v", err)
	}
	p.log.Debugf(
		"got %s river data for %d-01-01 to %s",
		river.Name, runStartDate.Year(), dataDate.Format("2006-01-02"))
	return ParseRiverTable(body)
}

// ParseRiverTable extracts (timestamp, flow) readings from the first HTML
// table in the page. Each table row pairs a timestamp cell with a flow cell;
// provisional flow values carry a trailing `*` and thousands separators.
func ParseRiverTable(page []byte) ([]RiverReading, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, errors.Wrap(err, "parsing river data HTML")
	}
	table := findFirst(doc, "table")
	if table == nil {
		return nil, fmt.Errorf("no data table in river data page")
	}
	var cells []string
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "td" {
			cells = append(cells, strings.TrimSpace(textContent(n)))
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			collect(child)
		}
	}
	collect(table)

	var readings []RiverReading
	for i := 0; i+1 < len(cells); i += 2 {
		stamp, err := time.ParseInLocation("2006-01-02 15:04:05", cells[i], time.UTC)
		if err != nil {
			return nil, errors.Wrapf(err, "river data timestamp %q", cells[i])
		}
		flow, err := parseFlow(cells[i+1])
		if err != nil {
			return nil, err
		}
		readings = append(readings, RiverReading{Stamp: stamp, Flow: flow})
	}
	return readings, nil
}

func parseFlow(cell string) (float64, error) {
	cleaned := strings.ReplaceAll(cell, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "*")
	flow, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable river flow value %q", cell)
	}
	return flow, nil
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if found := findFirst(child, tag); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}

// DailyFlowSeries reduces sub-daily gauge readings to a daily series: all
// readings on the same calendar day are averaged (after scaling) into one
// value. Readings past endDate are excluded. Days with no readings at all are
// inserted as missing samples so the patcher can interpolate them.
func DailyFlowSeries(river string, readings []RiverReading, scaleFactor float64, endDate time.Time) (*timeseries.Series, error) {
	if len(readings) == 0 {
		return nil, fmt.Errorf("%s river: %w", river, timeseries.ErrEmptySeries)
	}
	s := timeseries.New(river + "_river")
	day := recordDate(readings[0].Stamp)
	var flows []float64
	flush := func() {
		s.Append(day, []float64{stat.Mean(flows, nil)})
	}
	for _, r := range readings {
		d := recordDate(r.Stamp)
		if d.After(recordDate(endDate)) {
			break
		}
		if d.Equal(day) {
			flows = append(flows, r.Flow*scaleFactor)
			continue
		}
		flush()
		// Insert explicit missing samples for days the gauge skipped.
		for missing := day.AddDate(0, 0, 1); missing.Before(d); missing = missing.AddDate(0, 0, 1) {
			s.Append(missing, nil)
		}
		day = d
		flows = []float64{r.Flow * scaleFactor}
	}
	if len(flows) == 0 {
		return nil, fmt.Errorf("%s river: %w", river, timeseries.ErrEmptySeries)
	}
	flush()
	return s, nil
}

// WriteRiverForcing renders a patched daily river flow series as forcing
// lines, one day per line: date, then the day's average flow in scientific
// notation with 6 significant digits.
func WriteRiverForcing(w io.Writer, s *timeseries.Series) error {
	bw := bufio.NewWriter(w)
	for _, smp := range s.Samples {
		if smp.Missing() {
			return fmt.Errorf(
				"%s: unpatched missing value at %s in forcing file output",
				s.Quantity, smp.Stamp.Format("2006-01-02"))
		}
		fmt.Fprintf(bw, "%s %e\n", smp.Stamp.Format("2006 01 02"), smp.Value[0])
	}
	return bw.Flush()
}
