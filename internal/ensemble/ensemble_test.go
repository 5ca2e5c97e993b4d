package ensemble

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v2"

	"github.com/coastwatch/bloomcast/pkg/config"
)

func testLogger() *zap.SugaredLogger {
	core, _ := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar()
}

func day(ordinal int) time.Time {
	return time.Date(2012, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, ordinal)
}

func TestFindMember(t *testing.T) {
	tests := []struct {
		name       string
		bloomDates map[int]time.Time
		target     time.Time
		want       int
	}{
		{
			name: "exact match",
			bloomDates: map[int]time.Time{
				1991: day(0), 1995: day(6), 2005: day(12),
			},
			target: day(6),
			want:   1995,
		},
		{
			name: "tie goes to most recent forcing year",
			bloomDates: map[int]time.Time{
				1991: day(0), 1995: day(6), 2005: day(6),
			},
			target: day(6),
			want:   2005,
		},
		{
			name: "adjacent day searched when no exact match",
			bloomDates: map[int]time.Time{
				1991: day(0), 1995: day(5), 2005: day(12),
			},
			target: day(6),
			want:   1995,
		},
		{
			name: "later day preferred over earlier at same distance",
			bloomDates: map[int]time.Time{
				1991: day(5), 1995: day(7),
			},
			target: day(6),
			want:   1995,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := findMember(tt.bloomDates, ordinalDay(tt.target))
			if err != nil {
				t.Fatalf("findMember: %v", err)
			}
			if got != tt.want {
				t.Errorf("got member %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFindMemberNoMatch(t *testing.T) {
	bloomDates := map[int]time.Time{1991: day(0), 1995: day(40)}
	_, err := findMember(bloomDates, ordinalDay(day(20)))
	if !errors.Is(err, ErrNoMatchingMember) {
		t.Errorf("err = %v, want ErrNoMatchingMember", err)
	}
}

func TestAggregate(t *testing.T) {
	// 11 members with bloom dates on 11 consecutive days: the median is the
	// middle day and the extremes are the first and last days.
	bloomDates := map[int]time.Time{}
	for i := 0; i < 11; i++ {
		bloomDates[1981+i] = day(i)
	}

	p, err := Aggregate(bloomDates, testLogger())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if p.Median != 1986 {
		t.Errorf("median member = %d, want 1986", p.Median)
	}
	if p.Min != 1981 || p.Max != 1991 {
		t.Errorf("extremes = (%d, %d), want (1981, 1991)", p.Min, p.Max)
	}
	// The 5th percentile of days 0..10 is 0.5, truncated to day 0; the 95th
	// is 9.5, rounded up to day 10.
	if p.Early != 1981 {
		t.Errorf("early member = %d, want 1981", p.Early)
	}
	if p.Late != 1991 {
		t.Errorf("late member = %d, want 1991", p.Late)
	}
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"median of 11 consecutive days", []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.5, 5},
		{"5th of 11 consecutive days", []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.05, 0.5},
		{"95th of 11 consecutive days", []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 0.95, 9.5},
		{"median of three is the middle sample", []float64{80, 90, 92}, 0.5, 90},
		{"median of four is the midpoint of the middles", []float64{13, 14, 15, 16}, 0.5, 14.5},
		{"0th is the minimum", []float64{13, 14, 15, 16}, 0, 13},
		{"100th is the maximum", []float64{13, 14, 15, 16}, 1, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentile(tt.sorted, tt.p); got != tt.want {
				t.Errorf("percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestAggregateThreeMembers(t *testing.T) {
	bloomDates := map[int]time.Time{
		1981: day(13), 1982: day(14), 1983: day(15),
	}

	p, err := Aggregate(bloomDates, testLogger())
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if p.Median != 1982 {
		t.Errorf("median member = %d, want 1982", p.Median)
	}
	if p.Early != 1981 || p.Late != 1983 {
		t.Errorf("bounds = (%d, %d), want (1981, 1983)", p.Early, p.Late)
	}
	if p.Min != 1981 || p.Max != 1983 {
		t.Errorf("extremes = (%d, %d), want (1981, 1983)", p.Min, p.Max)
	}
}

func TestAggregateEmpty(t *testing.T) {
	if _, err := Aggregate(map[int]time.Time{}, testLogger()); err == nil {
		t.Error("want error for empty bloom date distribution")
	}
}

func TestTwoYearSuffix(t *testing.T) {
	tests := []struct {
		year int
		want string
	}{
		{1981, "_8081"},
		{2005, "_0405"},
		{2012, "_1112"},
	}
	for _, tt := range tests {
		if got := TwoYearSuffix(tt.year); got != tt.want {
			t.Errorf("TwoYearSuffix(%d) = %q, want %q", tt.year, got, tt.want)
		}
	}
}

func TestLogLine(t *testing.T) {
	bloomDates := map[int]time.Time{
		1986: time.Date(2012, 3, 7, 0, 0, 0, 0, time.UTC),
		1982: time.Date(2012, 3, 2, 0, 0, 0, 0, time.UTC),
		1990: time.Date(2012, 3, 12, 0, 0, 0, 0, time.UTC),
		1981: time.Date(2012, 3, 1, 0, 0, 0, 0, time.UTC),
		1991: time.Date(2012, 3, 13, 0, 0, 0, 0, time.UTC),
	}
	p := Prediction{Median: 1986, Early: 1982, Late: 1990, Min: 1981, Max: 1991}
	dataDate := time.Date(2012, 2, 28, 0, 0, 0, 0, time.UTC)

	got := LogLine(dataDate, p, bloomDates)
	want := "  2012-02-28" +
		"      2012-03-07  1986" +
		"      2012-03-02  1982" +
		"      2012-03-12  1990" +
		"      2012-03-01  1981" +
		"      2012-03-13  1991"
	if got != want {
		t.Errorf("line = %q, want %q", got, want)
	}
}

func TestWriteMemberEdits(t *testing.T) {
	dir := t.TempDir()
	simCfg := config.SimConfig{
		Executable: "/usr/local/bin/ocean-sim",
		Results: config.ResultsConfig{
			BioTimeseries:  filepath.Join(dir, "std_bio"),
			PhysTimeseries: filepath.Join(dir, "std_phys"),
			Hoffmueller:    filepath.Join(dir, "hoff"),
		},
	}
	cfg := config.EnsembleConfig{
		StartYear:  1981,
		EndYear:    1983,
		BaseInfile: filepath.Join(dir, "infile.yaml"),
		ForcingDataFileRoots: map[string]string{
			"wind":              filepath.Join(dir, "wind_avg"),
			"air_temperature":   filepath.Join(dir, "at_avg"),
			"cloud_fraction":    filepath.Join(dir, "cf_avg"),
			"relative_humidity": filepath.Join(dir, "hum_avg"),
			"major_river":       filepath.Join(dir, "major_avg"),
			"minor_river":       filepath.Join(dir, "minor_avg"),
		},
	}

	members, err := WriteMemberEdits(simCfg, cfg, testLogger())
	if err != nil {
		t.Fatalf("WriteMemberEdits: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("got %d members, want 3", len(members))
	}
	if members[0].Year != 1981 || members[0].Suffix != "_8081" {
		t.Errorf("first member = %+v", members[0])
	}
	wantFile := filepath.Join(dir, "infile_8081.yaml")
	if members[0].EditFile != wantFile {
		t.Errorf("edit file = %q, want %q", members[0].EditFile, wantFile)
	}

	raw, err := os.ReadFile(wantFile)
	if err != nil {
		t.Fatal(err)
	}
	var edits infileEdits
	if err := yaml.Unmarshal(raw, &edits); err != nil {
		t.Fatalf("edit file is not valid YAML: %v", err)
	}
	if got := edits.ForcingData["avg_historical_wind_file"].Value; got != filepath.Join(dir, "wind_avg_8081") {
		t.Errorf("wind file = %q", got)
	}
	if got := edits.TimeseriesResults["std_biology"].Value; got != filepath.Join(dir, "std_bio_8081") {
		t.Errorf("biology results file = %q", got)
	}
	if got := edits.ForcingData["use_average_forcing_data"].Value; got != "histfill" {
		t.Errorf("use_average_forcing_data = %q, want histfill", got)
	}
}

func TestWriteBatchDescription(t *testing.T) {
	dir := t.TempDir()
	simCfg := config.SimConfig{Executable: "/usr/local/bin/ocean-sim"}
	cfg := config.EnsembleConfig{
		MaxConcurrentJobs: 4,
		BaseInfile:        "infile.yaml",
	}
	members := []Member{
		{Year: 1981, Suffix: "_8081", EditFile: "infile_8081.yaml"},
		{Year: 1982, Suffix: "_8182", EditFile: "infile_8182.yaml"},
	}
	filename := filepath.Join(dir, "ensemble_jobs.yaml")
	if err := WriteBatchDescription(filename, simCfg, cfg, members, testLogger()); err != nil {
		t.Fatalf("WriteBatchDescription: %v", err)
	}

	raw, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	var desc batchDescription
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		t.Fatalf("batch description is not valid YAML: %v", err)
	}
	if desc.MaxConcurrentJobs != 4 || len(desc.Jobs) != 2 {
		t.Errorf("got %+v", desc)
	}
	if got := desc.Jobs[0]["bloomcast_8081"].EditFiles; len(got) != 1 || got[0] != "infile_8081.yaml" {
		t.Errorf("first job edit files = %v", got)
	}
}
