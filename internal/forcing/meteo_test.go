package forcing

import (
	"math"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/coastwatch/bloomcast/internal/timeseries"
)

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestReadTemperature(t *testing.T) {
	tests := []struct {
		name    string
		temp    string
		want    float64
		missing bool
	}{
		{"scales to tenths of degrees", "21.5", 215.0, false},
		{"negative temperature", "-3.2", -32.0, false},
		{"empty field is missing", "", 0, true},
		{"NA field is missing", "NA", 0, true},
		{"unparseable field is missing", "n/a", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReadTemperature(&StationRecord{Temp: tt.temp})
			if tt.missing {
				if got != nil {
					t.Fatalf("got %v, want missing", got)
				}
				return
			}
			if got == nil || math.Abs(got[0]-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReadHumidity(t *testing.T) {
	if got := ReadHumidity(&StationRecord{RelHum: "83"}); got == nil || got[0] != 83.0 {
		t.Errorf("got %v, want 83.0", got)
	}
	if got := ReadHumidity(&StationRecord{RelHum: ""}); got != nil {
		t.Errorf("got %v, want missing", got)
	}
}

func TestReadCloudFractionSingleAverage(t *testing.T) {
	log, _ := observedLogger()
	mapping := CloudFractionMapping{"Drizzle": {9.9675925925925934}}
	rec := &StationRecord{Year: 2012, Month: 4, Day: 1, Hour: 12, Weather: "Drizzle"}

	got := mapping.Reader(log)(rec)
	if got == nil || got[0] != 9.9675925925925934 {
		t.Errorf("got %v, want 9.9675925925925934", got)
	}
}

func TestReadCloudFractionMonthlyAverage(t *testing.T) {
	log, _ := observedLogger()
	mapping := CloudFractionMapping{
		"Fog": {
			9.6210045662100452, 9.3069767441860467, 9.5945945945945947,
			9.5, 9.931034482758621, 10.0, 9.7777777777777786,
			9.6999999999999993, 7.8518518518518521, 8.9701492537313428,
			9.2686980609418281, 9.0742358078602621,
		},
	}
	rec := &StationRecord{Year: 2012, Month: 4, Day: 1, Hour: 12, Weather: "Fog"}

	got := mapping.Reader(log)(rec)
	if got == nil || got[0] != 9.5 {
		t.Errorf("got %v, want April average 9.5", got)
	}
}

func TestReadCloudFractionUnrecognized(t *testing.T) {
	log, logs := observedLogger()
	mapping := CloudFractionMapping{"Clear": {0.0}}
	rec := &StationRecord{Year: 2012, Month: 4, Day: 1, Hour: 12, Weather: "Volcanic Ash"}

	got := mapping.Reader(log)(rec)
	if got == nil || got[0] != 10.0 {
		t.Errorf("got %v, want overcast fallback 10", got)
	}
	warnings := logs.FilterLevelExact(zapcore.WarnLevel)
	if warnings.Len() != 1 {
		t.Fatalf("got %d warnings, want 1", warnings.Len())
	}
	msg := warnings.All()[0].Message
	if !strings.Contains(msg, "Volcanic Ash") || !strings.Contains(msg, "2012-04-01 12:00:00") {
		t.Errorf("warning %q does not identify description and timestamp", msg)
	}
}

func TestReadCloudFractionNotAvailable(t *testing.T) {
	log, logs := observedLogger()
	mapping := CloudFractionMapping{"Clear": {0.0}}

	for _, desc := range []string{"", "NA"} {
		if got := mapping.Reader(log)(&StationRecord{Weather: desc}); got != nil {
			t.Errorf("description %q: got %v, want missing", desc, got)
		}
	}
	if logs.Len() != 0 {
		t.Errorf("missing descriptions must not warn, got %d entries", logs.Len())
	}
}

func TestWriteMeteoForcing(t *testing.T) {
	log, _ := observedLogger()
	s := timeseries.New("air_temperature")
	for hour := 0; hour < 24; hour++ {
		s.Append(
			time.Date(2011, 9, 25, hour, 0, 0, 0, time.UTC),
			[]float64{215.0})
	}

	var b strings.Builder
	if err := WriteMeteoForcing(&b, "889", s, log); err != nil {
		t.Fatalf("WriteMeteoForcing: %v", err)
	}
	want := "889 2011 09 25 42" + strings.Repeat(" 215.00", 24) + "\n"
	if b.String() != want {
		t.Errorf("line = %q, want %q", b.String(), want)
	}
}

func TestWriteMeteoForcingCloudFractionFallback(t *testing.T) {
	log, logs := observedLogger()
	s := timeseries.New("cloud_fraction")
	for hour := 0; hour < 24; hour++ {
		value := []float64{3.0}
		if hour == 23 {
			value = nil
		}
		s.Append(time.Date(2011, 9, 25, hour, 0, 0, 0, time.UTC), value)
	}

	var b strings.Builder
	if err := WriteMeteoForcing(&b, "889", s, log); err != nil {
		t.Fatalf("WriteMeteoForcing: %v", err)
	}
	want := "889 2011 09 25 42" + strings.Repeat(" 3.00", 24) + "\n"
	if b.String() != want {
		t.Errorf("line = %q, want %q", b.String(), want)
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 1 {
		t.Error("persisted cloud fraction value must warn")
	}
}

func TestWriteMeteoForcingMissingValueFails(t *testing.T) {
	log, _ := observedLogger()
	s := timeseries.New("air_temperature")
	for hour := 0; hour < 24; hour++ {
		s.Append(time.Date(2011, 9, 25, hour, 0, 0, 0, time.UTC), nil)
	}

	var b strings.Builder
	if err := WriteMeteoForcing(&b, "889", s, log); err == nil {
		t.Error("want error for unpatched missing value")
	}
}
