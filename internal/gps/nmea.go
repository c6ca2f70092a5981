package gps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Decode errors. Both mean "no fix this cycle"; callers recover locally and
// never surface them per occurrence.
var (
	// ErrInvalidFormat flags a sentence with too few comma-separated fields.
	ErrInvalidFormat = errors.New("nmea: invalid sentence format")
	// ErrMalformedField flags a sentence whose shape is right but whose
	// fields cannot be decoded (empty time, bad coordinate digits).
	ErrMalformedField = errors.New("nmea: malformed field")
)

// LineKind classifies a raw serial line by its sentence prefix.
type LineKind int

const (
	LineOther LineKind = iota
	LineGPRMC
	LineGPGGA
)

// ClassifyLine inspects the 6-character talker+type prefix. Anything that is
// not $GPRMC or $GPGGA (other talkers, proprietary sentences, plain noise)
// is LineOther.
func ClassifyLine(line string) LineKind {
	if len(line) < 6 {
		return LineOther
	}
	switch line[:6] {
	case "$GPRMC":
		return LineGPRMC
	case "$GPGGA":
		return LineGPGGA
	}
	return LineOther
}

// RMC: Recommended Minimum Specific GNSS Data
// Fields:
//
//	0: talker+type ($GPRMC)
//	1: time (hhmmss[.sss])
//	2: status
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//	7: speed over ground (knots)
//	8: course over ground (deg)
//
// DecodeGPRMC accepts sentences with or without the *hh checksum trailer;
// the survey receivers in the field emit both.
func DecodeGPRMC(line string) (Fix, error) {
	f := strings.Split(line, ",")
	if len(f) < 9 {
		return Fix{}, fmt.Errorf("%w: GPRMC has %d fields, want at least 9", ErrInvalidFormat, len(f))
	}

	h, m, s, err := parseClock(f[1])
	if err != nil {
		return Fix{}, err
	}
	lat, err := parseLatLon(f[3], f[4])
	if err != nil {
		return Fix{}, err
	}
	lon, err := parseLatLon(f[5], f[6])
	if err != nil {
		return Fix{}, err
	}

	return Fix{
		Latitude:   lat,
		Longitude:  lon,
		Hour:       h,
		Minute:     m,
		Second:     s,
		SpeedKnots: parseOptFloat(f[7]),
		CourseDeg:  parseOptFloat(f[8]),
	}, nil
}

// GGA: Global Positioning System Fix Data
// Fields:
//
//	0: talker+type ($GPGGA)
//	1: time (hhmmss[.sss])
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//
// GGA carries no speed or course; the decoded fix leaves both nil.
func DecodeGPGGA(line string) (Fix, error) {
	f := strings.Split(line, ",")
	if len(f) < 6 {
		return Fix{}, fmt.Errorf("%w: GPGGA has %d fields, want at least 6", ErrInvalidFormat, len(f))
	}

	h, m, s, err := parseClock(f[1])
	if err != nil {
		return Fix{}, err
	}
	lat, err := parseLatLon(f[2], f[3])
	if err != nil {
		return Fix{}, err
	}
	lon, err := parseLatLon(f[4], f[5])
	if err != nil {
		return Fix{}, err
	}

	return Fix{
		Latitude:  lat,
		Longitude: lon,
		Hour:      h,
		Minute:    m,
		Second:    s,
	}, nil
}

// Decode dispatches on the sentence prefix. LineOther yields ErrInvalidFormat.
func Decode(line string) (Fix, error) {
	switch ClassifyLine(line) {
	case LineGPRMC:
		return DecodeGPRMC(line)
	case LineGPGGA:
		return DecodeGPGGA(line)
	}
	return Fix{}, fmt.Errorf("%w: not a GPRMC/GPGGA sentence", ErrInvalidFormat)
}

// parseClock decodes an NMEA hhmmss[.sss] time field. An empty field is how
// a receiver without a fix pads the sentence; it decodes to ErrMalformedField.
func parseClock(v string) (h, m, s int, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, 0, 0, fmt.Errorf("%w: empty time field", ErrMalformedField)
	}
	if dot := strings.IndexByte(v, '.'); dot != -1 {
		v = v[:dot]
	}
	if len(v) < 6 {
		return 0, 0, 0, fmt.Errorf("%w: time field %q too short", ErrMalformedField, v)
	}
	h, err = strconv.Atoi(v[0:2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: time field %q", ErrMalformedField, v)
	}
	m, err = strconv.Atoi(v[2:4])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: time field %q", ErrMalformedField, v)
	}
	s, err = strconv.Atoi(v[4:6])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("%w: time field %q", ErrMalformedField, v)
	}
	return h, m, s, nil
}

// parseLatLon decodes ddmm.mmmm / dddmm.mmmm plus a hemisphere letter into
// decimal degrees (deg + min/60), negated for S and W.
func parseLatLon(v, hemi string) (float64, error) {
	v = strings.TrimSpace(v)
	hemi = strings.TrimSpace(strings.ToUpper(hemi))
	if v == "" {
		return 0, fmt.Errorf("%w: empty coordinate", ErrMalformedField)
	}
	if hemi != "N" && hemi != "S" && hemi != "E" && hemi != "W" {
		return 0, fmt.Errorf("%w: bad hemisphere %q", ErrMalformedField, hemi)
	}

	// The minutes always occupy the last two digits before the decimal point.
	dot := strings.IndexByte(v, '.')
	intPart := v
	if dot != -1 {
		intPart = v[:dot]
	}
	if len(intPart) < 3 {
		return 0, fmt.Errorf("%w: coordinate %q too short", ErrMalformedField, v)
	}

	deg, err := strconv.Atoi(intPart[:len(intPart)-2])
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedField, v)
	}
	mins, err := strconv.ParseFloat(v[len(intPart)-2:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: coordinate %q", ErrMalformedField, v)
	}

	dec := float64(deg) + mins/60.0
	if hemi == "S" || hemi == "W" {
		dec = -dec
	}
	return dec, nil
}

// parseOptFloat decodes an optional numeric field; blank or garbage means
// "not transmitted" and maps to nil rather than an error.
func parseOptFloat(v string) *float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	x, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &x
}
