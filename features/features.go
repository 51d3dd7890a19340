// Package features derives per-datatype descriptive features from value
// updates, for use as model inputs downstream.
package features

import (
	"math"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/diff"
	"github.com/pilosa/wdhistory/lookup"
)

// GeohashPrecision is the length of the geohashes stored for coordinates.
const GeohashPrecision = 12

// Key identifies the value update a feature row describes.
type Key struct {
	RevisionID int64
	PropertyID int64
	ValueID    string
}

// Text describes an update of a string, monolingual text, label or
// description.
type Text struct {
	Key
	LengthDiff          int
	TokenCountOld       int
	TokenCountNew       int
	TokenOverlap        float64
	OldInNew            bool
	NewInOld            bool
	// Levenshtein and EditDistanceRatio are -1 for texts too long to
	// compare.
	Levenshtein         int
	EditDistanceRatio   float64
	CompleteReplacement bool
	CaseOnly            bool
	SignificantPrefix   bool
	SignificantSuffix   bool
}

// Time describes an update of a time value.
type Time struct {
	Key
	DayDiff         float64
	YearChanged     bool
	MonthChanged    bool
	DayChanged      bool
	SignChange      bool
	PrecisionDiff   int
	CalendarChanged bool
}

// Quantity describes an update of a quantity.
type Quantity struct {
	Key
	Diff              float64
	RelativeDiff      float64
	SignChange        bool
	WholeNumberChange bool
	PrecisionDiff     int
	SharedPrefix      int
	UnitChanged       bool
}

// Globe describes an update of a coordinate pair.
type Globe struct {
	Key
	DistanceKm        float64
	RelativeLatitude  float64
	RelativeLongitude float64
	LatitudeSign      bool
	LongitudeSign     bool
	OldGeohash        string
	NewGeohash        string
	GeohashPrefix     int
}

// Entity describes an update from one entity value to another.
type Entity struct {
	Key
	OldLabel         string
	NewLabel         string
	OldDescription   string
	NewDescription   string
	OldSubclassOfNew bool
	NewSubclassOfOld bool
	OldPartOfNew     bool
	NewPartOfOld     bool
	OldLocatedInNew  bool
	NewLocatedInOld  bool
}

// Rows holds the feature rows of one entity.
type Rows struct {
	Text     []Text
	Time     []Time
	Quantity []Quantity
	Globe    []Globe
	Entity   []Entity
}

// Len returns the total number of rows.
func (r *Rows) Len() int {
	return len(r.Text) + len(r.Time) + len(r.Quantity) + len(r.Globe) + len(r.Entity)
}

// Append adds all of o's rows to r.
func (r *Rows) Append(o Rows) {
	r.Text = append(r.Text, o.Text...)
	r.Time = append(r.Time, o.Time...)
	r.Quantity = append(r.Quantity, o.Quantity...)
	r.Globe = append(r.Globe, o.Globe...)
	r.Entity = append(r.Entity, o.Entity...)
}

// Extractor computes feature rows. Entity features need Lookups; it may be
// nil, in which case they are computed without labels or relations.
type Extractor struct {
	Lookups lookup.Lookups
}

// NewExtractor returns an Extractor using l.
func NewExtractor(l lookup.Lookups) *Extractor {
	return &Extractor{Lookups: l}
}

// Extract returns the feature rows for the value updates among changes,
// which must all belong to the revision that turned prev into cur. The
// coordinate sub-changes of one statement give a single Globe row.
func (e *Extractor) Extract(prev, cur *wdhistory.Snapshot, changes []wdhistory.Change) Rows {
	var rows Rows
	done := make(map[Key]bool)
	for i := range changes {
		c := &changes[i]
		if c.Kind != wdhistory.UpdatePropertyValue || c.Category() != wdhistory.CategoryValue {
			continue
		}
		k := Key{RevisionID: c.RevisionID, PropertyID: c.PropertyID, ValueID: c.ValueID}
		if done[k] {
			continue
		}
		done[k] = true
		if c.IsLabelOrDescription() {
			rows.Text = append(rows.Text, textFeatures(k, wdhistory.ValueString(c.Old), wdhistory.ValueString(c.New)))
			continue
		}
		if c.OldDatatype != c.NewDatatype {
			continue
		}
		pid := wdhistory.PropertyString(c.PropertyID)
		o, n := statement(prev, pid, c.ValueID), statement(cur, pid, c.ValueID)
		if o == nil || n == nil {
			continue
		}
		switch ov := o.Value.(type) {
		case wdhistory.StringValue, wdhistory.MonolingualValue:
			if sameType(o.Value, n.Value) {
				rows.Text = append(rows.Text, textFeatures(k, ov.String(), n.Value.String()))
			}
		case wdhistory.TimeValue:
			if nv, ok := n.Value.(wdhistory.TimeValue); ok {
				rows.Time = append(rows.Time, timeFeatures(k, ov, nv, o.Metadata, n.Metadata))
			}
		case wdhistory.QuantityValue:
			if nv, ok := n.Value.(wdhistory.QuantityValue); ok {
				if q, ok := quantityFeatures(k, ov, nv, o.Metadata, n.Metadata); ok {
					rows.Quantity = append(rows.Quantity, q)
				}
			}
		case wdhistory.GlobeValue:
			if nv, ok := n.Value.(wdhistory.GlobeValue); ok {
				rows.Globe = append(rows.Globe, globeFeatures(k, ov, nv))
			}
		case wdhistory.EntityValue:
			if nv, ok := n.Value.(wdhistory.EntityValue); ok {
				rows.Entity = append(rows.Entity, e.entityFeatures(k, string(ov), string(nv)))
			}
		}
	}
	return rows
}

func sameType(a, b wdhistory.Value) bool {
	switch a.(type) {
	case wdhistory.StringValue:
		_, ok := b.(wdhistory.StringValue)
		return ok
	case wdhistory.MonolingualValue:
		_, ok := b.(wdhistory.MonolingualValue)
		return ok
	}
	return false
}

func statement(snap *wdhistory.Snapshot, pid, id string) *wdhistory.Statement {
	if snap == nil {
		return nil
	}
	stmts := snap.Claims[pid]
	for i := range stmts {
		if stmts[i].ID == id {
			return &stmts[i]
		}
	}
	return nil
}

func textFeatures(k Key, old, new string) Text {
	old, new = strings.TrimSpace(old), strings.TrimSpace(new)
	oldTokens, newTokens := strings.Fields(old), strings.Fields(new)
	t := Text{
		Key:           k,
		LengthDiff:    abs(len([]rune(new)) - len([]rune(old))),
		TokenCountOld: len(oldTokens),
		TokenCountNew: len(newTokens),
		TokenOverlap:  overlap(oldTokens, newTokens),
		OldInNew:      strings.Contains(new, old),
		NewInOld:      strings.Contains(old, new),
		CaseOnly:      old != new && strings.EqualFold(old, new),
	}
	t.CompleteReplacement = t.TokenOverlap == 0 && !t.OldInNew && !t.NewInOld
	t.SignificantPrefix = commonPrefix(old, new) >= 3
	t.SignificantSuffix = commonPrefix(reverse(old), reverse(new)) >= 3
	dist, ok := diff.EditDistance(strings.ToLower(old), strings.ToLower(new))
	if !ok {
		t.Levenshtein, t.EditDistanceRatio = -1, -1
		return t
	}
	t.Levenshtein = dist
	maxLen := len([]rune(old))
	if n := len([]rune(new)); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		maxLen = 1
	}
	t.EditDistanceRatio = float64(t.Levenshtein) / float64(maxLen)
	return t
}

func overlap(a, b []string) float64 {
	set := make(map[string]int)
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	both := 0
	for _, v := range set {
		if v == 3 {
			both++
		}
	}
	return float64(both) / float64(len(set))
}

func commonPrefix(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n := 0
	for n < len(ar) && n < len(br) && ar[n] == br[n] {
		n++
	}
	return n
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func timeFeatures(k Key, old, new wdhistory.TimeValue, om, nm wdhistory.Metadata) Time {
	t := Time{Key: k}
	t.DayDiff, _ = diff.CalendarDays(string(old), string(new))
	oy, omo, od, ok1 := diff.DateParts(string(old))
	ny, nmo, nd, ok2 := diff.DateParts(string(new))
	if ok1 && ok2 {
		t.YearChanged = oy != ny
		t.MonthChanged = omo != nmo
		t.DayChanged = od != nd
		t.SignChange = (oy < 0) != (ny < 0)
	}
	t.PrecisionDiff = atoi(nm["precision"]) - atoi(om["precision"])
	t.CalendarChanged = om["calendarmodel"] != nm["calendarmodel"]
	return t
}

func quantityFeatures(k Key, old, new wdhistory.QuantityValue, om, nm wdhistory.Metadata) (Quantity, bool) {
	os, ns := amount(string(old)), amount(string(new))
	of, err1 := parseFloat(os)
	nf, err2 := parseFloat(ns)
	if err1 != nil || err2 != nil {
		return Quantity{}, false
	}
	return Quantity{
		Key:               k,
		Diff:              nf - of,
		RelativeDiff:      relative(of, nf),
		SignChange:        of*nf < 0,
		WholeNumberChange: math.Floor(math.Abs(of)) != math.Floor(math.Abs(nf)),
		PrecisionDiff:     decimals(ns) - decimals(os),
		SharedPrefix:      commonPrefix(os, ns),
		UnitChanged:       om["unit"] != nm["unit"],
	}, true
}

func globeFeatures(k Key, old, new wdhistory.GlobeValue) Globe {
	g := Globe{
		Key:               k,
		DistanceKm:        diff.Haversine(old.Latitude, old.Longitude, new.Latitude, new.Longitude),
		RelativeLatitude:  relative(old.Latitude, new.Latitude),
		RelativeLongitude: relative(old.Longitude, new.Longitude),
		LatitudeSign:      old.Latitude*new.Latitude < 0,
		LongitudeSign:     old.Longitude*new.Longitude < 0,
		OldGeohash:        geohash.EncodeWithPrecision(old.Latitude, old.Longitude, GeohashPrecision),
		NewGeohash:        geohash.EncodeWithPrecision(new.Latitude, new.Longitude, GeohashPrecision),
	}
	g.GeohashPrefix = commonPrefix(g.OldGeohash, g.NewGeohash)
	return g
}

func (e *Extractor) entityFeatures(k Key, old, new string) Entity {
	f := Entity{Key: k}
	if e.Lookups == nil {
		return f
	}
	// errors leave the zero value; a lookup.Fallback logs them
	if info, err := e.Lookups.Entity(old); err == nil {
		f.OldLabel, f.OldDescription = info.Label, info.Description
	}
	if info, err := e.Lookups.Entity(new); err == nil {
		f.NewLabel, f.NewDescription = info.Label, info.Description
	}
	f.OldSubclassOfNew, f.NewSubclassOfOld = e.related(old, new, lookup.SubclassOf)
	f.OldPartOfNew, f.NewPartOfOld = e.related(old, new, lookup.PartOf)
	f.OldLocatedInNew, f.NewLocatedInOld = e.related(old, new, lookup.LocatedIn)
	return f
}

func (e *Extractor) related(a, b, relation string) (aOfB, bOfA bool) {
	aOfB, _ = e.Lookups.IsAncestor(a, b, relation)
	bOfA, _ = e.Lookups.IsAncestor(b, a, relation)
	return aOfB, bOfA
}

func relative(old, new float64) float64 {
	den := old
	if den == 0 {
		den = 1
	}
	return math.Abs((new - old) / den)
}
