package gps

import "fmt"

// Fix is a single decoded GPS position reading.
//
// SpeedKnots and CourseDeg are nil when the source sentence does not carry
// them (GGA has no speed/course; RMC may leave the fields blank).
type Fix struct {
	Latitude  float64 // decimal degrees, negative south
	Longitude float64 // decimal degrees, negative west

	// UTC time of the fix as transmitted in the sentence.
	Hour   int
	Minute int
	Second int

	SpeedKnots *float64
	CourseDeg  *float64
}

// Clock returns the fix time as "hh:mm:ss".
func (f Fix) Clock() string {
	return fmt.Sprintf("%02d:%02d:%02d", f.Hour, f.Minute, f.Second)
}
