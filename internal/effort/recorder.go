package effort

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/pelagis-survey/pelagis/internal/gps"
	"github.com/pelagis-survey/pelagis/internal/store"
)

// PositionSource supplies the last known GPS fix for stamping new records.
// *gps.Reader satisfies it.
type PositionSource interface {
	Latest() (gps.Fix, bool)
}

// Recorder binds the effort rules to one session store. It is the single
// writer for the interactive session; concurrent writers are not guarded
// against beyond the store's per-write transactions.
type Recorder struct {
	session  *store.Session
	position PositionSource
	now      func() time.Time
}

// NewRecorder wires a recorder to a session. position may be nil when no
// GPS feed is attached (records are then created without coordinates).
func NewRecorder(session *store.Session, position PositionSource) *Recorder {
	return &Recorder{session: session, position: position, now: time.Now}
}

// CreateEnvironment creates an environment record with the caller-supplied
// status and route type, computing its effort group and leg from the prior
// records and stamping clock time and last known position.
func (r *Recorder) CreateEnvironment(status Status, routeType string, attrs map[string]sql.NullString) (int64, error) {
	prior, err := r.Environments()
	if err != nil {
		return 0, err
	}
	group, leg := OnCreate(prior, status)

	rec := store.Record{Attrs: map[string]sql.NullString{
		"date_time":    text(r.now().Format(store.TimeLayout)),
		"status":       text(string(status)),
		"route_type":   text(routeType),
		"effort_group": text(strconv.Itoa(group)),
		"effort_leg":   text(strconv.Itoa(leg)),
	}}
	for k, v := range attrs {
		rec.Attrs[k] = v
	}
	r.stampPosition(rec.Attrs, true)

	fid, err := r.session.Table("environment").AddFeature(rec)
	if err != nil {
		return 0, fmt.Errorf("creating environment record: %w", err)
	}
	return fid, nil
}

// CreateSighting creates a sighting carrying the effort group and leg of
// the latest environment record, copied rather than recomputed.
func (r *Recorder) CreateSighting(attrs map[string]sql.NullString) (int64, error) {
	return r.createTagged("sightings", attrs)
}

// CreateFollower creates a follower record, tagged like a sighting.
func (r *Recorder) CreateFollower(attrs map[string]sql.NullString) (int64, error) {
	return r.createTagged("followers", attrs)
}

func (r *Recorder) createTagged(table string, attrs map[string]sql.NullString) (int64, error) {
	prior, err := r.Environments()
	if err != nil {
		return 0, err
	}
	group, leg := 0, 1
	if len(prior) > 0 {
		group, leg = prior[0].EffortGroup, prior[0].EffortLeg
	}

	rec := store.Record{Attrs: map[string]sql.NullString{
		"date_time":    text(r.now().Format(store.TimeLayout)),
		"effort_group": text(strconv.Itoa(group)),
		"effort_leg":   text(strconv.Itoa(leg)),
	}}
	for k, v := range attrs {
		rec.Attrs[k] = v
	}
	r.stampPosition(rec.Attrs, false)

	fid, err := r.session.Table(table).AddFeature(rec)
	if err != nil {
		return 0, fmt.Errorf("creating %s record: %w", table, err)
	}
	return fid, nil
}

// ChangeRouteType edits the route type of an existing environment record
// and applies the retroactive regrouping rule against the nearest preceding
// record.
func (r *Recorder) ChangeRouteType(fid int64, newRouteType string) error {
	all, err := r.Environments()
	if err != nil {
		return err
	}
	var edited *Record
	var prior []Record
	for i := range all {
		if all[i].FID == fid {
			edited = &all[i]
			prior = all[i+1:]
			break
		}
	}
	if edited == nil {
		return fmt.Errorf("environment record fid=%d not found", fid)
	}

	updated, regrouped := OnRouteTypeChanged(*edited, newRouteType, prior)

	table := r.session.Table("environment")
	if err := table.ChangeAttribute(fid, "route_type", updated.RouteType); err != nil {
		return err
	}
	if !regrouped {
		return nil
	}
	if updated.Status != edited.Status {
		if err := table.ChangeAttribute(fid, "status", string(updated.Status)); err != nil {
			return err
		}
	}
	if err := table.ChangeAttribute(fid, "effort_group", updated.EffortGroup); err != nil {
		return err
	}
	if updated.EffortLeg != edited.EffortLeg {
		if err := table.ChangeAttribute(fid, "effort_leg", updated.EffortLeg); err != nil {
			return err
		}
	}
	return nil
}

// Validate runs the effort-group check over the whole session. A non-empty
// result blocks session validation; nothing is auto-corrected.
func (r *Recorder) Validate() ([]GroupError, error) {
	records, err := r.Environments()
	if err != nil {
		return nil, err
	}
	return ValidateGroups(records), nil
}

// Environments reads every environment record, newest first.
func (r *Recorder) Environments() ([]Record, error) {
	rows, err := r.session.Table("environment").Features("", "date_time DESC, fid DESC")
	if err != nil {
		return nil, fmt.Errorf("reading environment records: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := fromStore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func fromStore(row store.Record) (Record, error) {
	rec := Record{
		FID:       row.FID,
		Status:    Status(row.Attrs["status"].String),
		RouteType: row.Attrs["route_type"].String,
	}
	if v := row.Attrs["date_time"]; v.Valid {
		ts, err := time.Parse(store.TimeLayout, v.String)
		if err != nil {
			return Record{}, fmt.Errorf("environment fid=%d: bad date_time %q: %w", row.FID, v.String, err)
		}
		rec.DateTime = ts
	}
	var err error
	if rec.EffortGroup, err = atoiCell(row.Attrs["effort_group"], 0); err != nil {
		return Record{}, fmt.Errorf("environment fid=%d: %w", row.FID, err)
	}
	if rec.EffortLeg, err = atoiCell(row.Attrs["effort_leg"], 1); err != nil {
		return Record{}, fmt.Errorf("environment fid=%d: %w", row.FID, err)
	}
	return rec, nil
}

func (r *Recorder) stampPosition(attrs map[string]sql.NullString, withMotion bool) {
	if r.position == nil {
		return
	}
	fix, ok := r.position.Latest()
	if !ok {
		return
	}
	attrs["latitude"] = text(strconv.FormatFloat(fix.Latitude, 'f', -1, 64))
	attrs["longitude"] = text(strconv.FormatFloat(fix.Longitude, 'f', -1, 64))
	if !withMotion {
		return
	}
	if fix.SpeedKnots != nil {
		attrs["speed"] = text(strconv.FormatFloat(*fix.SpeedKnots, 'f', -1, 64))
	}
	if fix.CourseDeg != nil {
		attrs["course_average"] = text(strconv.FormatFloat(*fix.CourseDeg, 'f', -1, 64))
	}
}

func atoiCell(v sql.NullString, def int) (int, error) {
	if !v.Valid || v.String == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v.String)
	if err != nil {
		return 0, fmt.Errorf("bad integer cell %q: %w", v.String, err)
	}
	return n, nil
}

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}
