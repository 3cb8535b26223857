package pipeline

import (
	"fmt"
	"strings"

	"github.com/mrsinham/annforge/internal/annotation"
)

// UnitKind is a family of annotation objects produced per slide.
type UnitKind string

const (
	KindROIs      UnitKind = "rois"
	KindSessions  UnitKind = "sessions"
	KindConsensus UnitKind = "consensus"
)

// AllUnitKinds returns every kind in output order.
func AllUnitKinds() []UnitKind {
	return []UnitKind{KindROIs, KindSessions, KindConsensus}
}

// ParseKinds parses comma-separated unit kinds.
// The special value "all" (or an empty input) selects every kind.
func ParseKinds(input string) ([]UnitKind, error) {
	if strings.TrimSpace(input) == "" {
		return AllUnitKinds(), nil
	}

	valid := make(map[UnitKind]bool)
	for _, k := range AllUnitKinds() {
		valid[k] = true
	}

	seen := make(map[UnitKind]bool)
	for _, p := range strings.Split(input, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "all" {
			return AllUnitKinds(), nil
		}
		k := UnitKind(p)
		if !valid[k] {
			return nil, fmt.Errorf("unknown unit kind %q, valid kinds: %v (or 'all')", p, AllUnitKinds())
		}
		seen[k] = true
	}

	// output order is fixed regardless of input order
	result := make([]UnitKind, 0, len(seen))
	for _, k := range AllUnitKinds() {
		if seen[k] {
			result = append(result, k)
		}
	}
	return result, nil
}

// Unit is one annotation object to produce: the ROIs of a slide or its cells
// for one session.
type Unit struct {
	SlideID        string
	Kind           UnitKind
	Session        annotation.Session
	InstanceNumber int
}

// IsROI reports whether the unit encodes regions of interest.
func (u Unit) IsROI() bool {
	return u.Kind == KindROIs
}

// Label identifies the unit in logs, the error log and the ledger: "rois",
// "cells_<n>" or "cells_consensus".
func (u Unit) Label() string {
	if u.IsROI() {
		return "rois"
	}
	return "cells_" + u.Session.String()
}

// FileName is the deterministic output file name of the unit.
func (u Unit) FileName() string {
	if u.IsROI() {
		return u.SlideID + "_rois.dcm"
	}
	return fmt.Sprintf("%s_cells_ann_step_%s.dcm", u.SlideID, u.Session)
}

// SlideUnits lists every unit the tables define for a slide, in instance
// order: ROIs first when the slide has ROI records, numbered sessions
// ascending, consensus last. Instance numbers are left unset.
func SlideUnits(slideID string, hasROIs, hasCells bool, sessions int) []Unit {
	var units []Unit
	if hasROIs {
		units = append(units, Unit{SlideID: slideID, Kind: KindROIs})
	}
	if hasCells {
		for n := 1; n <= sessions; n++ {
			units = append(units, Unit{SlideID: slideID, Kind: KindSessions, Session: annotation.SessionNumber(n)})
		}
		units = append(units, Unit{SlideID: slideID, Kind: KindConsensus, Session: annotation.Consensus})
	}
	return units
}

// PlanUnits numbers units in order, skipping the ones empty reports as
// holding no annotation after normalization, so the objects of a slide are
// numbered contiguously from 1. Numbering runs over every kind before kinds
// are selected, so a partial run numbers its objects as a complete one
// would. Selected empty units are returned with instance number 0.
func PlanUnits(units []Unit, empty func(Unit) bool, kinds []UnitKind) []Unit {
	want := make(map[UnitKind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}

	var (
		planned  []Unit
		instance int
	)
	for _, u := range units {
		u.InstanceNumber = 0
		if !empty(u) {
			instance++
			u.InstanceNumber = instance
		}
		if want[u.Kind] {
			planned = append(planned, u)
		}
	}
	return planned
}
