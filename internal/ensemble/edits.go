package ensemble

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/coastwatch/bloomcast/pkg/config"
)

// Member ties an ensemble member's forcing year to its generated input deck
// edit file.
type Member struct {
	Year     int
	Suffix   string
	EditFile string
}

// infileParam is one input deck parameter override in an edit file.
type infileParam struct {
	Description  string `yaml:"description"`
	Value        string `yaml:"value"`
	VariableName string `yaml:"variable_name"`
}

// infileEdits is the edit file structure the simulation's batch processor
// understands.
type infileEdits struct {
	ForcingData       map[string]infileParam `yaml:"forcing_data"`
	TimeseriesResults map[string]infileParam `yaml:"timeseries_results"`
	ProfilesResults   map[string]infileParam `yaml:"profiles_results,omitempty"`
}

// forcingDataInfileKeys maps forcing data file root config keys to the input
// deck parameters that consume the files.
var forcingDataInfileKeys = []struct {
	configKey string
	infileKey string
	quantity  string
}{
	{"wind", "avg_historical_wind_file", "wind"},
	{"air_temperature", "avg_historical_air_temperature_file", "air temperature"},
	{"cloud_fraction", "avg_historical_cloud_file", "cloud fraction"},
	{"relative_humidity", "avg_historical_humidity_file", "humidity"},
	{"major_river", "avg_historical_major_river_file", "major river"},
	{"minor_river", "avg_historical_minor_river_file", "minor river"},
}

// WriteMemberEdits generates one input deck edit file per ensemble member.
// Each member gets the historical forcing data files and result output files
// for its forcing year, all named with the member's two-year suffix.
func WriteMemberEdits(simCfg config.SimConfig, cfg config.EnsembleConfig, log *zap.SugaredLogger) ([]Member, error) {
	var members []Member
	for year := cfg.StartYear; year <= cfg.EndYear; year++ {
		suffix := TwoYearSuffix(year)
		edits := memberEdits(simCfg, cfg, suffix)

		ext := filepath.Ext(cfg.BaseInfile)
		filename := strings.TrimSuffix(cfg.BaseInfile, ext) + suffix + ext
		raw, err := yaml.Marshal(edits)
		if err != nil {
			return nil, fmt.Errorf("error marshaling infile edits for %d: %w", year, err)
		}
		if err := os.WriteFile(filename, raw, 0o644); err != nil {
			return nil, fmt.Errorf("error writing infile edit file: %w", err)
		}
		log.Debugf("wrote infile edit file %s", filename)
		members = append(members, Member{Year: year, Suffix: suffix, EditFile: filename})
	}
	return members, nil
}

func memberEdits(simCfg config.SimConfig, cfg config.EnsembleConfig, suffix string) infileEdits {
	edits := infileEdits{
		ForcingData: map[string]infileParam{
			"use_average_forcing_data": {
				Description:  "yes=avg only; no=fail if data runs out; fill=historic then avg",
				Value:        "histfill",
				VariableName: "use_average_forcing_data",
			},
		},
		TimeseriesResults: map[string]infileParam{
			"std_biology": {
				Description:  "path/filename for standard biology time series output",
				Value:        simCfg.Results.BioTimeseries + suffix,
				VariableName: "std_bio_ts_out",
			},
		},
	}
	for _, key := range forcingDataInfileKeys {
		root, ok := cfg.ForcingDataFileRoots[key.configKey]
		if !ok {
			continue
		}
		edits.ForcingData[key.infileKey] = infileParam{
			Description: fmt.Sprintf(
				"average/historical %s forcing data path/filename", key.quantity),
			Value:        root + suffix,
			VariableName: "n/a",
		}
	}
	if simCfg.Results.PhysTimeseries != "" {
		edits.TimeseriesResults["std_physics"] = infileParam{
			Description:  "path/filename for standard physics time series output",
			Value:        simCfg.Results.PhysTimeseries + suffix,
			VariableName: "std_phys_ts_out",
		}
	}
	if simCfg.Results.Hoffmueller != "" {
		edits.ProfilesResults = map[string]infileParam{
			"hoffmueller_file": {
				Description:  "path/filename for Hoffmueller results",
				Value:        simCfg.Results.Hoffmueller + suffix,
				VariableName: "Hoffmueller_fn",
			},
		}
	}
	return edits
}

// batchDescription is the YAML document describing the whole ensemble batch,
// written alongside the edit files for operator inspection and reruns.
type batchDescription struct {
	MaxConcurrentJobs int                  `yaml:"max_concurrent_jobs"`
	Executable        string               `yaml:"executable"`
	BaseInfile        string               `yaml:"base_infile"`
	Jobs              []map[string]jobSpec `yaml:"jobs"`
}

type jobSpec struct {
	EditFiles []string `yaml:"edit_files"`
}

// WriteBatchDescription records the batch job layout as YAML.
func WriteBatchDescription(filename string, simCfg config.SimConfig, cfg config.EnsembleConfig, members []Member, log *zap.SugaredLogger) error {
	desc := batchDescription{
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
		Executable:        simCfg.Executable,
		BaseInfile:        cfg.BaseInfile,
	}
	for _, member := range members {
		desc.Jobs = append(desc.Jobs, map[string]jobSpec{
			"bloomcast" + member.Suffix: {EditFiles: []string{member.EditFile}},
		})
	}
	raw, err := yaml.Marshal(desc)
	if err != nil {
		return fmt.Errorf("error marshaling batch description: %w", err)
	}
	if err := os.WriteFile(filename, raw, 0o644); err != nil {
		return fmt.Errorf("error writing batch description: %w", err)
	}
	log.Debugf("wrote ensemble batch description file: %s", filename)
	return nil
}
