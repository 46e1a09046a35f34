package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/jobdb/internal/dedup"
	"github.com/sells-group/jobdb/internal/loader"
	"github.com/sells-group/jobdb/internal/transform"
)

// Summary reports one run. It is returned even when the run fails.
type Summary struct {
	CompaniesProcessed int               `json:"companiesProcessed" yaml:"companiesProcessed"`
	JobsProcessed      int               `json:"jobsProcessed" yaml:"jobsProcessed"`
	CompaniesInvalid   int               `json:"companiesInvalid" yaml:"companiesInvalid"`
	JobsInvalid        int               `json:"jobsInvalid" yaml:"jobsInvalid"`
	DurationSeconds    float64           `json:"durationSeconds" yaml:"durationSeconds"`
	Errors             []string          `json:"errors" yaml:"errors"`
	Phases             []PhaseTiming     `json:"phases,omitempty" yaml:"phases,omitempty"`
	Companies          *loader.Result    `json:"companies,omitempty" yaml:"companies,omitempty"`
	Jobs               *loader.Result    `json:"jobs,omitempty" yaml:"jobs,omitempty"`
	Transform          *transform.Result `json:"transform,omitempty" yaml:"transform,omitempty"`
	Dedup              *dedup.Result     `json:"dedup,omitempty" yaml:"dedup,omitempty"`
}

// PhaseTiming is the wall time of one coordinator phase.
type PhaseTiming struct {
	Name    string  `json:"name" yaml:"name"`
	Seconds float64 `json:"seconds" yaml:"seconds"`
	Failed  bool    `json:"failed,omitempty" yaml:"failed,omitempty"`
}

func (s *Summary) addLoad(res loader.Result) {
	r := res
	switch res.Kind {
	case loader.KindCompany:
		s.Companies = &r
		s.CompaniesProcessed = res.Loaded
		s.CompaniesInvalid = res.Invalid
	case loader.KindJob:
		s.Jobs = &r
		s.JobsProcessed = res.Loaded
		s.JobsInvalid = res.Invalid
	}
	for _, be := range res.Errors {
		s.Errors = append(s.Errors, be.Error())
	}
}

// Marshal encodes the summary as YAML when path ends in .yaml or .yml and
// as indented JSON otherwise.
func (s *Summary) Marshal(path string) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err := yaml.Marshal(s)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: encode summary yaml")
		}
		return b, nil
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode summary json")
	}
	return append(b, '\n'), nil
}

// WriteFile writes the summary to path in the format its extension selects.
func (s *Summary) WriteFile(path string) error {
	b, err := s.Marshal(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write summary %s", path)
	}
	return nil
}
