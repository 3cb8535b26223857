package pipeline

import (
	"time"
)

// UnitResult is the outcome of one unit.
type UnitResult struct {
	Unit        Unit
	Path        string
	URL         string
	Annotations int
	Groups      int
	// Skipped is set when the ledger shows the unit completed earlier.
	Skipped bool
	// Empty is set when normalization left nothing to encode.
	Empty bool
	Stage Stage
	Err   error
}

// SlideReport is the outcome of one slide. Err is set when the slide was
// abandoned before its units ran.
type SlideReport struct {
	SlideID      string
	Transform    string
	Units        []UnitResult
	RecordErrors int
	Stage        Stage
	Err          error
}

// Failures counts the failed units, or 1 for an abandoned slide.
func (s *SlideReport) Failures() int {
	if s.Err != nil {
		return 1
	}
	n := 0
	for _, u := range s.Units {
		if u.Err != nil {
			n++
		}
	}
	return n
}

// Report summarizes a run.
type Report struct {
	Slides []SlideReport
	// RecordErrors counts skipped input records, including records that could
	// not be attributed to any slide.
	RecordErrors int
	// Failures counts failed units, abandoned slides and failed run-level
	// steps such as the file-set export.
	Failures int
	Files    []string
	Started  time.Time
	Finished time.Time
}

// Failed reports whether anything went wrong; it drives the exit status.
func (r *Report) Failed() bool {
	return r.Failures > 0 || r.RecordErrors > 0
}

// Written counts the units written in this run.
func (r *Report) Written() int {
	n := 0
	for _, s := range r.Slides {
		for _, u := range s.Units {
			if u.Err == nil && !u.Skipped && !u.Empty {
				n++
			}
		}
	}
	return n
}

// Annotations counts the annotations written in this run.
func (r *Report) Annotations() int {
	n := 0
	for _, s := range r.Slides {
		for _, u := range s.Units {
			if u.Err == nil {
				n += u.Annotations
			}
		}
	}
	return n
}
