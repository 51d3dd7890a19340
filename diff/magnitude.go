package diff

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/pilosa/wdhistory"
)

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

// MaxEditDistanceRunes is the longest text, in runes, whose edit distance
// is computed.
const MaxEditDistanceRunes = 400

// EditDistance returns the Levenshtein distance between a and b. It reports
// false if either is longer than MaxEditDistanceRunes.
func EditDistance(a, b string) (int, bool) {
	if utf8.RuneCountInString(a) > MaxEditDistanceRunes || utf8.RuneCountInString(b) > MaxEditDistanceRunes {
		return 0, false
	}
	return levenshtein.ComputeDistance(a, b), true
}

// Magnitude returns a numeric size for a change from old to new, if the two
// values are concrete and of a directly comparable kind.
//
// Quantities give the signed delta, times the distance in calendar days,
// coordinates the great-circle distance in kilometres and short texts the
// edit distance.
func Magnitude(old, new wdhistory.Value) (float64, bool) {
	switch o := old.(type) {
	case wdhistory.QuantityValue:
		n, ok := new.(wdhistory.QuantityValue)
		if !ok {
			return 0, false
		}
		of, err1 := parseAmount(string(o))
		nf, err2 := parseAmount(string(n))
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return nf - of, true
	case wdhistory.TimeValue:
		n, ok := new.(wdhistory.TimeValue)
		if !ok {
			return 0, false
		}
		return CalendarDays(string(o), string(n))
	case wdhistory.GlobeValue:
		n, ok := new.(wdhistory.GlobeValue)
		if !ok {
			return 0, false
		}
		return Haversine(o.Latitude, o.Longitude, n.Latitude, n.Longitude), true
	case wdhistory.StringValue:
		n, ok := new.(wdhistory.StringValue)
		if !ok {
			return 0, false
		}
		d, ok := EditDistance(string(o), string(n))
		return float64(d), ok
	case wdhistory.MonolingualValue:
		n, ok := new.(wdhistory.MonolingualValue)
		if !ok {
			return 0, false
		}
		d, ok := EditDistance(string(o), string(n))
		return float64(d), ok
	}
	return 0, false
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimPrefix(strings.TrimSpace(s), "+"), 64)
}

// Haversine returns the great-circle distance in kilometres between two
// points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

var timeRE = regexp.MustCompile(`^([+-]?\d+)-(\d{1,2})-(\d{1,2})`)

// DateParts splits a time string like "+2001-00-00T00:00:00Z" into year,
// month and day. Month and day may be zero for low precision dates.
func DateParts(s string) (year, month, day int64, ok bool) {
	m := timeRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, 0, false
	}
	var err error
	if year, err = strconv.ParseInt(strings.TrimPrefix(m[1], "+"), 10, 64); err != nil {
		return 0, 0, 0, false
	}
	month, _ = strconv.ParseInt(m[2], 10, 64)
	day, _ = strconv.ParseInt(m[3], 10, 64)
	return year, month, day, true
}

// CalendarDays approximates the distance in days between two time strings
// without going through a calendar, since months and days may be zero.
func CalendarDays(old, new string) (float64, bool) {
	oy, om, od, ok1 := DateParts(old)
	ny, nm, nd, ok2 := DateParts(new)
	if !ok1 || !ok2 {
		return 0, false
	}
	return math.Abs(float64(ny-oy))*365.25 + math.Abs(float64(nm-om))*30.44 + math.Abs(float64(nd-od)), true
}
