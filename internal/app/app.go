// Package app wires the forcing data pipelines, the simulation driver, and
// the bloom calculation into the forecast and ensemble commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/coastwatch/bloomcast/internal/bloom"
	"github.com/coastwatch/bloomcast/internal/ensemble"
	"github.com/coastwatch/bloomcast/internal/forcing"
	"github.com/coastwatch/bloomcast/internal/report"
	"github.com/coastwatch/bloomcast/internal/sim"
	"github.com/coastwatch/bloomcast/pkg/config"
)

// riverDataWindowMonths is how far back the river gauge service keeps data.
// Runs needing older forcing data cannot be done at all.
const riverDataWindowMonths = 18

// App runs bloom forecasts against a loaded configuration.
type App struct {
	cfg *config.Config
	log *zap.SugaredLogger
	now func() time.Time
}

// New returns an App.
func New(cfg *config.Config, log *zap.SugaredLogger) *App {
	return &App{cfg: cfg, log: log, now: time.Now}
}

// collectForcing acquires and processes the forcing data, returning the
// forcing data date the run is based on. With forcing data collection turned
// off in the config, the override date stands in for development runs against
// previously collected files.
func (a *App) collectForcing(ctx context.Context, dataDateOverride time.Time) (time.Time, forcing.Outcome, error) {
	if !a.cfg.GetForcingData {
		a.log.Infof("skipped collection and processing of forcing data")
		if dataDateOverride.IsZero() {
			return time.Time{}, forcing.Proceeded, errors.New(
				"get_forcing_data is off and no --data-date given; nothing to base a run on")
		}
		return dataDateOverride, forcing.Proceeded, nil
	}

	climate := forcing.NewClimateSource(a.cfg.Climate.URL, a.cfg.Climate.Params)
	wind := forcing.NewWindPipeline(a.cfg.Climate.Wind, climate, a.log)
	dataDate, err := wind.MakeForcingFile(ctx, a.cfg.RunStartDate.Time)
	if err != nil {
		return time.Time{}, forcing.Proceeded, err
	}
	a.log.Infof("based on wind data forcing data date is %s", dataDate.Format("2006-01-02"))

	outcome, err := forcing.CheckDataDate(a.cfg.DataDateFile, dataDate, a.cfg.RunStartDate.Time)
	if err != nil {
		return time.Time{}, outcome, err
	}
	if outcome == forcing.SkippedNoNewData {
		return dataDate, outcome, nil
	}

	meteo := forcing.NewMeteoPipeline(a.cfg.Climate.Meteo, climate, a.log)
	if err := meteo.MakeForcingFiles(ctx, a.cfg.RunStartDate.Time, dataDate); err != nil {
		return time.Time{}, outcome, err
	}
	rivers := forcing.NewRiversPipeline(a.cfg.Rivers, a.log)
	if err := rivers.MakeForcingFiles(ctx, a.cfg.RunStartDate.Time, dataDate); err != nil {
		return time.Time{}, outcome, err
	}
	return dataDate, forcing.Proceeded, nil
}

// RunForecast executes a single-run bloom forecast: forcing data, one
// simulation run, bloom detection, evolution log, results page.
func (a *App) RunForecast(ctx context.Context, dataDateOverride time.Time) error {
	a.log.Debugf(
		"run start date/time is %s",
		a.cfg.RunStartDate.Format("2006-01-02 15:04:05"))

	dataDate, outcome, err := a.collectForcing(ctx, dataDateOverride)
	if err != nil {
		return err
	}
	if outcome == forcing.SkippedNoNewData {
		a.log.Infof(
			"wind data date %s is unchanged since last run",
			dataDate.Format("2006-01-02"))
		return nil
	}

	if a.cfg.RunSim {
		spec := sim.RunSpec{
			Executable:  a.cfg.Sim.Executable,
			Infile:      a.cfg.Sim.BaseInfile,
			CaptureFile: a.cfg.Sim.BaseInfile + ".stdout",
		}
		if err := sim.Run(ctx, spec, a.log); err != nil {
			return err
		}
	} else {
		a.log.Infof("skipped running simulation")
	}

	result, err := a.calcBloomDate(a.cfg.Sim.Results.BioTimeseries)
	if err != nil {
		return err
	}

	evolution := bloom.NewEvolutionLog(a.cfg.Logging.BloomDateLogFile)
	if err := evolution.Append(bloom.ForecastLogLine(dataDate, result)); err != nil {
		return err
	}
	return a.renderReport(dataDate, []report.PredictionRow{
		{Label: "Predicted bloom date", Value: result.Date.Format("2006-01-02")},
		{Label: "Diatom biomass", Value: fmt.Sprintf("%.4f uM N", result.Biomass)},
	})
}

// RunEnsemble executes an ensemble bloom forecast: forcing data, one
// simulation run per historical forcing year, percentile aggregation of the
// per-member bloom dates.
func (a *App) RunEnsemble(ctx context.Context, dataDateOverride time.Time) error {
	a.log.Debugf(
		"run start date/time is %s",
		a.cfg.RunStartDate.Format("2006-01-02 15:04:05"))

	// River flow data are only available in a rolling window; a run whose
	// bloom year needs older data cannot be forced.
	runStartJan1 := time.Date(
		a.cfg.RunStartDate.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	riverDateLimit := a.now().UTC().AddDate(0, -riverDataWindowMonths, 0)
	if a.cfg.GetForcingData && runStartJan1.Before(riverDateLimit) {
		err := fmt.Errorf(
			"a run starting %s cannot be done today because there are no river flow data available prior to %s",
			a.cfg.RunStartDate.Format("2006-01-02"),
			riverDateLimit.Format("2006-01-02"))
		a.log.Errorf("%v", err)
		return err
	}

	dataDate, outcome, err := a.collectForcing(ctx, dataDateOverride)
	if err != nil {
		return err
	}
	if outcome == forcing.SkippedNoNewData {
		a.log.Infof(
			"wind data date %s is unchanged since last run",
			dataDate.Format("2006-01-02"))
		return nil
	}

	members, err := ensemble.WriteMemberEdits(a.cfg.Sim, a.cfg.Ensemble, a.log)
	if err != nil {
		return err
	}
	batchFile := filepath.Join(
		filepath.Dir(a.cfg.Ensemble.BaseInfile), "ensemble_jobs.yaml")
	if err := ensemble.WriteBatchDescription(
		batchFile, a.cfg.Sim, a.cfg.Ensemble, members, a.log); err != nil {
		return err
	}

	failed := map[int]bool{}
	if a.cfg.RunSim {
		failed, err = a.runBatch(ctx, members)
		if err != nil {
			return err
		}
	} else {
		a.log.Infof("skipped running simulation")
	}

	bloomDates := map[int]time.Time{}
	for _, member := range members {
		if failed[member.Year] {
			continue
		}
		result, err := a.calcBloomDate(
			a.cfg.Sim.Results.BioTimeseries + member.Suffix)
		if err != nil {
			if errors.Is(err, bloom.ErrNoBloomWindow) {
				a.log.Warnf("member %d: %v; excluded from aggregation", member.Year, err)
				continue
			}
			return err
		}
		a.log.Debugf(
			"member %d bloom date is %s",
			member.Year, result.Date.Format("2006-01-02"))
		bloomDates[member.Year] = result.Date
	}

	prediction, err := ensemble.Aggregate(bloomDates, a.log)
	if err != nil {
		return err
	}
	evolution := bloom.NewEvolutionLog(a.cfg.Logging.BloomDateLogFile)
	if err := evolution.Append(ensemble.LogLine(dataDate, prediction, bloomDates)); err != nil {
		return err
	}
	return a.renderReport(dataDate, predictionRows(prediction, bloomDates))
}

// runBatch runs the ensemble members' simulations and reports which members
// failed. A failed member is excluded from aggregation, not fatal for the
// batch.
func (a *App) runBatch(ctx context.Context, members []ensemble.Member) (map[int]bool, error) {
	var batchMembers []*sim.Member
	for _, member := range members {
		batchMembers = append(batchMembers, &sim.Member{
			ID: member.Year,
			Spec: sim.RunSpec{
				Executable:  a.cfg.Sim.Executable,
				Infile:      a.cfg.Ensemble.BaseInfile,
				EditFiles:   []string{member.EditFile},
				CaptureFile: member.EditFile + ".stdout",
			},
		})
	}
	batch := sim.NewBatch(
		batchMembers,
		a.cfg.Ensemble.MaxConcurrentJobs,
		time.Duration(a.cfg.Ensemble.PollIntervalSeconds)*time.Second,
		a.log)
	if err := batch.Run(ctx); err != nil {
		return nil, err
	}
	failed := map[int]bool{}
	for _, member := range batchMembers {
		if member.Err() != nil {
			failed[member.ID] = true
		}
	}
	return failed, nil
}

// calcBloomDate reads a run's biology time series results and locates the
// bloom.
func (a *App) calcBloomDate(resultsFile string) (bloom.Result, error) {
	f, err := os.Open(resultsFile)
	if err != nil {
		return bloom.Result{}, fmt.Errorf("error opening biology results: %w", err)
	}
	defer f.Close()
	nitrate, err := sim.ReadTimeseries(f, "time", a.cfg.Sim.Results.NitrateField)
	if err != nil {
		return bloom.Result{}, err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return bloom.Result{}, err
	}
	diatoms, err := sim.ReadTimeseries(f, "time", a.cfg.Sim.Results.DiatomField)
	if err != nil {
		return bloom.Result{}, err
	}
	a.log.Debugf("read nitrate and diatom timeseries from %s", resultsFile)
	return bloom.FindBloom(
		nitrate, diatoms,
		a.cfg.RunStartDate.Time, a.cfg.TimestepSeconds, a.log)
}

func (a *App) renderReport(dataDate time.Time, rows []report.PredictionRow) error {
	if a.cfg.Report.Path == "" {
		return nil
	}
	evolution, err := report.ParseEvolutionLogFile(a.cfg.Logging.BloomDateLogFile)
	if err != nil {
		return err
	}
	data := report.Data{
		RunStartDate: a.cfg.RunStartDate.Time,
		DataDate:     dataDate,
		Prediction:   rows,
		Evolution:    evolution,
	}
	if err := report.RenderFile(a.cfg.Report.Path, data); err != nil {
		return err
	}
	a.log.Debugf("rendered results page to %s", a.cfg.Report.Path)
	return nil
}

func predictionRows(p ensemble.Prediction, bloomDates map[int]time.Time) []report.PredictionRow {
	format := func(member int) string {
		return fmt.Sprintf(
			"%s (%d forcing)", bloomDates[member].Format("2006-01-02"), member)
	}
	return []report.PredictionRow{
		{Label: "Median bloom date", Value: format(p.Median)},
		{Label: "Early bound", Value: format(p.Early)},
		{Label: "Late bound", Value: format(p.Late)},
		{Label: "Earliest", Value: format(p.Min)},
		{Label: "Latest", Value: format(p.Max)},
	}
}
