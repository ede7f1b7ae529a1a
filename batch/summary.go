package batch

import (
	"fmt"
	"io"
	"sort"
	"time"

	"go.yaml.in/yaml/v3"
)

type Failure struct {
	RelPath string `yaml:"path"`
	Reason  string `yaml:"reason"`
}

type Summary struct {
	Total     int           `yaml:"total"`
	Succeeded int           `yaml:"succeeded"`
	Failed    int           `yaml:"failed"`
	Failures  []Failure     `yaml:"failures,omitempty"`
	Elapsed   time.Duration `yaml:"elapsed"`
}

func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Summarize tallies outcomes. Failures are ordered by relative path, and
// Elapsed is the wall-clock span from the earliest start to the latest
// finish, since tasks overlap.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}

	var first, last time.Time
	for _, o := range outcomes {
		if o.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
			reason := "unknown error"
			if o.Err != nil {
				reason = o.Err.Error()
			}
			s.Failures = append(s.Failures, Failure{RelPath: o.Task.Source.RelPath, Reason: reason})
		}

		if o.Started.IsZero() {
			continue
		}
		end := o.Started.Add(o.Duration)
		if first.IsZero() || o.Started.Before(first) {
			first = o.Started
		}
		if end.After(last) {
			last = end
		}
	}

	sort.SliceStable(s.Failures, func(i, j int) bool {
		return s.Failures[i].RelPath < s.Failures[j].RelPath
	})

	if !first.IsZero() {
		s.Elapsed = last.Sub(first)
	}
	return s
}

// Report is the machine readable record of one run.
type Report struct {
	RunID   string    `yaml:"run_id"`
	Started time.Time `yaml:"started"`
	Input   string    `yaml:"input"`
	Output  string    `yaml:"output"`
	Format  string    `yaml:"format"`
	Quality int       `yaml:"quality"`
	Workers int       `yaml:"workers"`
	Summary Summary   `yaml:"summary"`
}

func WriteReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

func ReadReport(r io.Reader) (Report, error) {
	var rep Report
	if err := yaml.NewDecoder(r).Decode(&rep); err != nil {
		return Report{}, fmt.Errorf("decoding report: %w", err)
	}
	return rep, nil
}
