package store

import "fmt"

// ensureSchema lays down the survey tables. The host application normally
// owns schema creation; this mirrors its layout so merged output sessions
// and tests are self-contained.
func (s *Session) ensureSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("creating survey schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS environment (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		date_time TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		status TEXT,
		route_type TEXT,
		effort_group INTEGER NOT NULL DEFAULT 0,
		effort_leg INTEGER NOT NULL DEFAULT 1,
		speed REAL,
		course_average REAL,
		sea_state INTEGER,
		swell INTEGER,
		glare_from INTEGER,
		glare_to INTEGER,
		cloud_cover INTEGER,
		observer_left TEXT,
		observer_right TEXT,
		comment TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sightings (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		date_time TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		species TEXT,
		pod_size INTEGER,
		distance REAL,
		angle REAL,
		behaviour TEXT,
		effort_group INTEGER NOT NULL DEFAULT 0,
		effort_leg INTEGER NOT NULL DEFAULT 1,
		comment TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS followers (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		date_time TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		species TEXT,
		count INTEGER,
		fishing_activity TEXT,
		effort_group INTEGER NOT NULL DEFAULT 0,
		effort_leg INTEGER NOT NULL DEFAULT 1,
		comment TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS gps (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		date_time TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		speed REAL,
		course REAL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_environment_date_time ON environment(date_time)`,
	`CREATE INDEX IF NOT EXISTS idx_gps_date_time ON gps(date_time)`,

	`CREATE TABLE IF NOT EXISTS species (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT,
		name TEXT,
		latin_name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS observers (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT,
		first_name TEXT,
		last_name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS survey (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT,
		name TEXT,
		region TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS strate (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS transect (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS plateform (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		height REAL
	)`,
	`CREATE TABLE IF NOT EXISTS boat (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS survey_type (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS behaviour_species (
		fid INTEGER PRIMARY KEY AUTOINCREMENT,
		species TEXT,
		behaviour TEXT
	)`,
}
