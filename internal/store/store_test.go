package store

import (
	"database/sql"
	"fmt"
	"testing"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Create(t.TempDir())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func text(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func TestAddFeature_AssignsSequentialFIDs(t *testing.T) {
	s := newTestSession(t)
	tab := s.Table("gps")

	for i, want := range []int64{1, 2, 3} {
		fid, err := tab.AddFeature(Record{Attrs: map[string]sql.NullString{
			"date_time": text(fmt.Sprintf("2025-08-01 10:00:%02d", i)),
		}})
		if err != nil {
			t.Fatalf("AddFeature() error = %v", err)
		}
		if fid != want {
			t.Errorf("fid = %d, want %d", fid, want)
		}
	}
}

func TestAddFeature_KeepsExplicitFID(t *testing.T) {
	s := newTestSession(t)
	tab := s.Table("gps")

	fid, err := tab.AddFeature(Record{FID: 42, Attrs: map[string]sql.NullString{
		"date_time": text("2025-08-01 10:00:00"),
	}})
	if err != nil {
		t.Fatalf("AddFeature() error = %v", err)
	}
	if fid != 42 {
		t.Errorf("fid = %d, want the supplied 42", fid)
	}

	max, err := tab.MaxFID()
	if err != nil {
		t.Fatalf("MaxFID() error = %v", err)
	}
	if max != 42 {
		t.Errorf("MaxFID() = %d, want 42", max)
	}
}

func TestFeatures_RoundTripsAttributes(t *testing.T) {
	s := newTestSession(t)
	tab := s.Table("environment")

	_, err := tab.AddFeature(Record{Attrs: map[string]sql.NullString{
		"date_time":  text("2025-08-01 10:00:00"),
		"status":     text("B"),
		"route_type": text("prospection"),
		"comment":    {}, // explicit NULL
	}})
	if err != nil {
		t.Fatalf("AddFeature() error = %v", err)
	}

	rows, err := tab.Features("", "")
	if err != nil {
		t.Fatalf("Features() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d records, want 1", len(rows))
	}
	rec := rows[0]
	if rec.Attrs["status"].String != "B" {
		t.Errorf("status = %q, want B", rec.Attrs["status"].String)
	}
	if rec.Attrs["comment"].Valid {
		t.Errorf("comment = %q, want NULL", rec.Attrs["comment"].String)
	}
	if _, ok := rec.Attrs["fid"]; ok {
		t.Error("fid must not appear among attributes")
	}
}

func TestFeatures_FilterAndOrder(t *testing.T) {
	s := newTestSession(t)
	tab := s.Table("gps")

	for _, dt := range []string{"2025-08-01 10:00:00", "2025-08-02 10:00:00", "2025-08-03 10:00:00"} {
		if _, err := tab.AddFeature(Record{Attrs: map[string]sql.NullString{"date_time": text(dt)}}); err != nil {
			t.Fatalf("AddFeature() error = %v", err)
		}
	}

	rows, err := tab.Features("date(date_time) >= ?", "date_time DESC", "2025-08-02")
	if err != nil {
		t.Fatalf("Features() error = %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d records, want 2", len(rows))
	}
	if rows[0].Attrs["date_time"].String != "2025-08-03 10:00:00" {
		t.Errorf("first record = %q, want the newest", rows[0].Attrs["date_time"].String)
	}
}

func TestChangeAttribute(t *testing.T) {
	s := newTestSession(t)
	tab := s.Table("environment")

	fid, err := tab.AddFeature(Record{Attrs: map[string]sql.NullString{
		"date_time":  text("2025-08-01 10:00:00"),
		"route_type": text("prospection"),
	}})
	if err != nil {
		t.Fatalf("AddFeature() error = %v", err)
	}

	if err := tab.ChangeAttribute(fid, "route_type", "trawling"); err != nil {
		t.Fatalf("ChangeAttribute() error = %v", err)
	}

	rows, err := tab.Features("fid = ?", "", fid)
	if err != nil {
		t.Fatalf("Features() error = %v", err)
	}
	if got := rows[0].Attrs["route_type"].String; got != "trawling" {
		t.Errorf("route_type = %q, want trawling", got)
	}
}

func TestColumns_ExcludesFID(t *testing.T) {
	s := newTestSession(t)

	cols, err := s.Table("gps").Columns()
	if err != nil {
		t.Fatalf("Columns() error = %v", err)
	}
	want := []string{"date_time", "latitude", "longitude", "speed", "course"}
	if len(cols) != len(want) {
		t.Fatalf("Columns() = %v, want %v", cols, want)
	}
	for i := range want {
		if cols[i] != want[i] {
			t.Errorf("cols[%d] = %q, want %q", i, cols[i], want[i])
		}
	}
}

func TestMaxFID_EmptyTable(t *testing.T) {
	s := newTestSession(t)
	max, err := s.Table("sightings").MaxFID()
	if err != nil {
		t.Fatalf("MaxFID() error = %v", err)
	}
	if max != 0 {
		t.Errorf("MaxFID() = %d, want 0 for an empty table", max)
	}
}

func TestIsEmpty(t *testing.T) {
	s := newTestSession(t)
	tab := s.Table("species")

	empty, err := tab.IsEmpty()
	if err != nil || !empty {
		t.Fatalf("IsEmpty() = %v, %v, want true", empty, err)
	}
	if _, err := tab.AddFeature(Record{Attrs: map[string]sql.NullString{"code": text("DD")}}); err != nil {
		t.Fatalf("AddFeature() error = %v", err)
	}
	empty, err = tab.IsEmpty()
	if err != nil || empty {
		t.Fatalf("IsEmpty() = %v, %v, want false", empty, err)
	}
}

func TestIdentityKey(t *testing.T) {
	base := Record{FID: 1, Attrs: map[string]sql.NullString{
		"date_time": text("2025-08-01 10:00:00"),
		"species":   text("DD"),
	}}
	sameAttrsOtherFID := Record{FID: 99, Attrs: map[string]sql.NullString{
		"species":   text("DD"),
		"date_time": text("2025-08-01 10:00:00"),
	}}
	if base.IdentityKey() != sameAttrsOtherFID.IdentityKey() {
		t.Error("identity must ignore fid and attribute map order")
	}

	differs := Record{FID: 1, Attrs: map[string]sql.NullString{
		"date_time": text("2025-08-01 10:00:00"),
		"species":   text("SC"),
	}}
	if base.IdentityKey() == differs.IdentityKey() {
		t.Error("differing attributes must yield differing identities")
	}

	null := Record{Attrs: map[string]sql.NullString{"species": {}}}
	emptyStr := Record{Attrs: map[string]sql.NullString{"species": text("")}}
	if null.IdentityKey() == emptyStr.IdentityKey() {
		t.Error("NULL and empty string must not collide")
	}
}

func TestOpen_MissingDatabase(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("Open() on a directory without a database must fail")
	}
}
