package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/txscreen/internal/config"
	"github.com/sells-group/txscreen/internal/model"
)

// runReport is the YAML summary written after a screening run.
type runReport struct {
	RunID     string        `yaml:"run_id"`
	Status    string        `yaml:"status"`
	Error     string        `yaml:"error,omitempty"`
	ErrorKind string        `yaml:"error_kind,omitempty"`
	StartedAt time.Time     `yaml:"started_at"`
	Duration  string        `yaml:"duration"`
	Summary   model.Summary `yaml:"summary"`
	Inputs    reportInputs  `yaml:"inputs"`
	Outputs   reportOutputs `yaml:"outputs"`
}

type reportInputs struct {
	Transactions        string `yaml:"transactions"`
	SanctionedCountries string `yaml:"sanctioned_countries"`
	AllCountries        string `yaml:"all_countries"`
	Blacklist           string `yaml:"blacklist,omitempty"`
	FuzzyThreshold      int    `yaml:"fuzzy_threshold"`
	ExtractionMode      string `yaml:"extraction_mode"`
}

type reportOutputs struct {
	Flagged     string `yaml:"flagged"`
	FlaggedRows int64  `yaml:"flagged_rows"`
	Review      string `yaml:"review"`
	ReviewRows  int64  `yaml:"review_rows"`
}

func newRunReport(runID string, started time.Time, elapsed time.Duration, c *config.Config, sum model.Summary, flaggedRows, reviewRows int64, runErr error) runReport {
	r := runReport{
		RunID:     runID,
		Status:    "complete",
		StartedAt: started.UTC(),
		Duration:  elapsed.Round(time.Millisecond).String(),
		Summary:   sum,
		Inputs: reportInputs{
			Transactions:        c.Input.Transactions,
			SanctionedCountries: c.Input.SanctionedCountries,
			AllCountries:        c.Input.AllCountries,
			Blacklist:           c.Input.Blacklist,
			FuzzyThreshold:      c.Screen.FuzzyThreshold,
			ExtractionMode:      c.Screen.ExtractionMode,
		},
		Outputs: reportOutputs{
			Flagged:     c.Output.Flagged,
			FlaggedRows: flaggedRows,
			Review:      c.Output.Review,
			ReviewRows:  reviewRows,
		},
	}
	if runErr != nil {
		r.Status = "failed"
		r.Error = runErr.Error()
		r.ErrorKind = string(model.KindOf(runErr))
	}
	return r
}

func writeRunReport(path string, r runReport) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "report: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}
