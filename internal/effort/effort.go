// Package effort assigns survey-effort grouping to observation records: a
// continuous observation period is an effort group, subdivided into legs.
// Decisions are pure functions over the prior records; the store-backed
// binding lives in recorder.go.
package effort

import (
	"fmt"
	"sort"
	"time"
)

// Status of an environment record within its effort group.
type Status string

const (
	StatusBegin Status = "B"
	StatusAdd   Status = "A"
	StatusEnd   Status = "E"
)

// Record is the effort-relevant slice of an environment record.
type Record struct {
	FID         int64
	DateTime    time.Time
	Status      Status
	RouteType   string
	EffortGroup int
	EffortLeg   int
}

// OnCreate computes the effort group and leg for a record about to be
// created with the given status. prior must be ordered newest first.
//
// The group is the highest existing group (0 when none); a Begin on top of
// existing records opens the next group. The leg continues numbering within
// the chosen group, starting at 1.
func OnCreate(prior []Record, status Status) (group, leg int) {
	for _, r := range prior {
		if r.EffortGroup > group {
			group = r.EffortGroup
		}
	}
	if status == StatusBegin && len(prior) > 0 {
		group++
	}

	leg = 1
	for _, r := range prior {
		if r.EffortGroup == group && r.EffortLeg >= leg {
			leg = r.EffortLeg + 1
		}
	}
	return group, leg
}

// OnRouteTypeChanged reclassifies an already-created record after its route
// type was edited. Only the nearest preceding record is consulted: matching
// route type pulls the edited record into that record's effort group,
// a differing one opens a fresh group (Begin, next group id, leg 1).
// With no preceding record the grouping is left untouched.
//
// prior must be ordered newest first and exclude the edited record itself.
// The returned record carries the new route type and any regrouping.
func OnRouteTypeChanged(edited Record, newRouteType string, prior []Record) (Record, bool) {
	edited.RouteType = newRouteType
	if len(prior) == 0 {
		return edited, false
	}
	nearest := prior[0]
	if nearest.RouteType == newRouteType {
		edited.EffortGroup = nearest.EffortGroup
		return edited, true
	}
	edited.Status = StatusBegin
	edited.EffortGroup = nearest.EffortGroup + 1
	edited.EffortLeg = 1
	return edited, true
}

// GroupError reports an effort group with no Begin record.
type GroupError struct {
	Group    int
	Earliest time.Time
}

func (e GroupError) Error() string {
	return fmt.Sprintf("effort group %d has no begin record (earliest entry %s)",
		e.Group, e.Earliest.Format("2006-01-02 15:04:05"))
}

// ValidateGroups checks that every effort group contains at least one Begin
// record. All groups are checked; errors accumulate rather than failing
// fast, so the user sees the complete list before validating a session.
func ValidateGroups(records []Record) []GroupError {
	type groupState struct {
		hasBegin bool
		earliest time.Time
	}
	groups := make(map[int]*groupState)
	for _, r := range records {
		g, ok := groups[r.EffortGroup]
		if !ok {
			g = &groupState{earliest: r.DateTime}
			groups[r.EffortGroup] = g
		}
		if r.Status == StatusBegin {
			g.hasBegin = true
		}
		if r.DateTime.Before(g.earliest) {
			g.earliest = r.DateTime
		}
	}

	var errs []GroupError
	for id, g := range groups {
		if !g.hasBegin {
			errs = append(errs, GroupError{Group: id, Earliest: g.earliest})
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Group < errs[j].Group })
	return errs
}
