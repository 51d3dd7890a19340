package diff

import (
	"strings"
	"testing"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/test"
)

func str(s string) *string { return &s }

func stmt(pid, id, hash string, v wdhistory.Value, datatype string, md wdhistory.Metadata) wdhistory.Statement {
	return wdhistory.Statement{ID: id, PropertyID: pid, Rank: "normal", Hash: hash, Value: v, Datatype: datatype, Metadata: md}
}

func snap(label *string, stmts ...wdhistory.Statement) *wdhistory.Snapshot {
	s := &wdhistory.Snapshot{Label: label, Claims: make(map[string][]wdhistory.Statement)}
	for _, st := range stmts {
		s.Claims[st.PropertyID] = append(s.Claims[st.PropertyID], st)
	}
	return s
}

var meta = RevisionMeta{EntityID: "Q1", RevisionID: 10, Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}

func valueChanges(changes []wdhistory.Change) []wdhistory.Change {
	var out []wdhistory.Change
	for _, c := range changes {
		if c.Category() == wdhistory.CategoryValue && c.Target != wdhistory.TargetProperty {
			out = append(out, c)
		}
	}
	return out
}

func TestDiffIdentical(t *testing.T) {
	a := snap(str("Foo"),
		stmt("P10", "Q1$a", "h1", wdhistory.StringValue("X"), "string", nil),
		stmt("P625", "Q1$b", "h2", wdhistory.GlobeValue{Latitude: 1, Longitude: 2}, "globecoordinate", wdhistory.Metadata{"precision": "0.1"}),
	)
	b := snap(str("Foo"),
		stmt("P625", "Q1$b", "h2", wdhistory.GlobeValue{Latitude: 1, Longitude: 2}, "globecoordinate", wdhistory.Metadata{"precision": "0.1"}),
		stmt("P10", "Q1$a", "h1", wdhistory.StringValue("X"), "string", nil),
	)
	if changes := Diff(a, b, meta); len(changes) != 0 {
		t.Fatalf("expected no changes, got %#v", changes)
	}
}

func TestDiffCreateDeleteCounts(t *testing.T) {
	scalar := snap(nil, stmt("P10", "Q1$a", "h1", wdhistory.StringValue("X"), "string", nil))
	geo := snap(nil, stmt("P625", "Q1$b", "h2", wdhistory.GlobeValue{Latitude: 1, Longitude: 2}, "globecoordinate", wdhistory.Metadata{"precision": "0.1"}))

	for _, tc := range []struct {
		name      string
		prev, cur *wdhistory.Snapshot
		want      int
		kind      wdhistory.ChangeKind
	}{
		{"create scalar", nil, scalar, 1, wdhistory.CreateEntity},
		{"delete scalar", scalar, nil, 1, wdhistory.DeleteEntity},
		{"create geo", nil, geo, 2, wdhistory.CreateEntity},
		{"delete geo", geo, nil, 2, wdhistory.DeleteEntity},
		{"add scalar", snap(nil), scalar, 1, wdhistory.CreatePropertyValue},
		{"remove geo", geo, snap(nil), 2, wdhistory.DeletePropertyValue},
	} {
		t.Run(tc.name, func(t *testing.T) {
			vcs := valueChanges(Diff(tc.prev, tc.cur, meta))
			if len(vcs) != tc.want {
				t.Fatalf("expected %d value changes, got %d: %#v", tc.want, len(vcs), vcs)
			}
			for _, c := range vcs {
				if c.Kind != tc.kind {
					t.Fatalf("expected kind %v, got %v", tc.kind, c.Kind)
				}
				if (c.Old == nil) == (c.New == nil) {
					t.Fatalf("exactly one of old/new must be nil: %#v", c)
				}
				if c.RevisionID != 10 || c.EntityID != "Q1" {
					t.Fatalf("revision meta not copied: %#v", c)
				}
			}
		})
	}
}

func TestDiffGeoSubvalues(t *testing.T) {
	created := valueChanges(Diff(nil, snap(nil, stmt("P625", "Q1$b", "h", wdhistory.GlobeValue{Latitude: 1, Longitude: 2}, "globecoordinate", nil)), meta))
	test.MustBe(t, wdhistory.TargetLatitude, created[0].Target)
	test.MustBe(t, wdhistory.TargetLongitude, created[1].Target)
	test.MustBe(t, created[0].ValueID, created[1].ValueID, "sub-changes share a value id")

	// only the latitude moves
	prev := snap(nil, stmt("P625", "Q1$b", "h1", wdhistory.GlobeValue{Latitude: 52.5, Longitude: 13.4}, "globecoordinate", wdhistory.Metadata{"precision": "0.1"}))
	cur := snap(nil, stmt("P625", "Q1$b", "h2", wdhistory.GlobeValue{Latitude: 48.8, Longitude: 13.4}, "globecoordinate", wdhistory.Metadata{"precision": "0.1"}))
	changes := Diff(prev, cur, meta)
	if len(changes) != 1 {
		t.Fatalf("expected one change, got %#v", changes)
	}
	c := changes[0]
	test.MustBe(t, wdhistory.TargetLatitude, c.Target)
	test.MustBe(t, wdhistory.UpdatePropertyValue, c.Kind)
	test.MustBe(t, wdhistory.Value(wdhistory.Coordinate(52.5)), c.Old)
	test.MustBe(t, wdhistory.Value(wdhistory.Coordinate(48.8)), c.New)
	if c.Magnitude == nil || *c.Magnitude < 400 || *c.Magnitude > 420 {
		t.Fatalf("expected ~411km magnitude, got %v", c.Magnitude)
	}
}

func TestDiffLabel(t *testing.T) {
	rev1 := Diff(nil, snap(str("Foo")), meta)
	if len(rev1) != 1 || rev1[0].PropertyID != wdhistory.LabelPropertyID || !rev1[0].Kind.IsCreate() {
		t.Fatalf("expected one label creation, got %#v", rev1)
	}
	rev2 := Diff(snap(str("Foo")), snap(nil), meta)
	if len(rev2) != 1 || rev2[0].Kind != wdhistory.DeleteProperty || rev2[0].Old.String() != "Foo" || rev2[0].New != nil {
		t.Fatalf("expected one label deletion, got %#v", rev2)
	}
	rev3 := Diff(snap(str("kitten")), snap(str("sitting")), meta)
	if len(rev3) != 1 || rev3[0].Kind != wdhistory.UpdatePropertyValue || rev3[0].Magnitude == nil || *rev3[0].Magnitude != 3 {
		t.Fatalf("expected label update with distance 3, got %#v", rev3)
	}
}

func TestDiffStatementIdentity(t *testing.T) {
	prev := snap(nil, stmt("P10", "Q1$a", "h1", wdhistory.StringValue("X"), "string", nil))
	cur := snap(nil, stmt("P10", "Q1$a", "h2", wdhistory.StringValue("Y"), "string", nil))
	changes := Diff(prev, cur, meta)
	if len(changes) != 1 {
		t.Fatalf("expected a single update, got %#v", changes)
	}
	test.MustBe(t, wdhistory.UpdatePropertyValue, changes[0].Kind)
	test.MustBe(t, "h1", changes[0].OldHash)
	test.MustBe(t, "h2", changes[0].NewHash)

	// a new id with the same value is a create and a delete
	cur = snap(nil, stmt("P10", "Q1$z", "h1", wdhistory.StringValue("X"), "string", nil))
	changes = Diff(prev, cur, meta)
	if len(changes) != 2 || changes[0].Kind != wdhistory.CreatePropertyValue || changes[1].Kind != wdhistory.DeletePropertyValue {
		t.Fatalf("expected create then delete, got %#v", changes)
	}
}

func TestDiffNewProperty(t *testing.T) {
	changes := Diff(snap(nil), snap(nil, stmt("P10", "Q1$a", "h1", wdhistory.StringValue("X"), "string", nil)), meta)
	if len(changes) != 2 {
		t.Fatalf("expected property and value creation, got %#v", changes)
	}
	test.MustBe(t, wdhistory.CreateProperty, changes[0].Kind)
	test.MustBe(t, wdhistory.TargetProperty, changes[0].Target)
	test.MustBe(t, wdhistory.CreatePropertyValue, changes[1].Kind)
}

func TestDiffMetadata(t *testing.T) {
	calendar := `"http://www.wikidata.org/entity/Q1985727"`
	prev := snap(nil, stmt("P569", "Q1$t", "h1", wdhistory.TimeValue("+1952-03-11T00:00:00Z"), "time", wdhistory.Metadata{"precision": "11", "calendarmodel": calendar}))
	cur := snap(nil, stmt("P569", "Q1$t", "h2", wdhistory.TimeValue("+1952-03-11T00:00:00Z"), "time", wdhistory.Metadata{"precision": "9", "calendarmodel": calendar}))
	changes := Diff(prev, cur, meta)
	if len(changes) != 1 {
		t.Fatalf("expected one metadata change, got %#v", changes)
	}
	c := changes[0]
	test.MustBe(t, wdhistory.UpdatePropertyDatatypeMetadata, c.Kind)
	test.MustBe(t, "precision", c.MetadataKey)
	test.MustBe(t, wdhistory.CategoryMetadata, c.Category())
	test.MustBe(t, "11", c.Old.String())
	test.MustBe(t, "9", c.New.String())
}

func TestDiffDatatypeChangePairsByKey(t *testing.T) {
	prev := snap(nil, stmt("P1", "Q1$q", "h1", wdhistory.QuantityValue("+5"), "quantity", wdhistory.Metadata{"unit": `"1"`, "upperBound": `"+6"`}))
	cur := snap(nil, stmt("P1", "Q1$q", "h2", wdhistory.TimeValue("+2000-00-00T00:00:00Z"), "time", wdhistory.Metadata{"precision": "9", "unit": `"1"`}))
	changes := Diff(prev, cur, meta)

	var value, md []wdhistory.Change
	for _, c := range changes {
		if c.Category() == wdhistory.CategoryMetadata {
			md = append(md, c)
		} else {
			value = append(value, c)
		}
	}
	if len(value) != 1 || value[0].Magnitude != nil || value[0].OldDatatype != "quantity" || value[0].NewDatatype != "time" {
		t.Fatalf("expected one replace without magnitude, got %#v", value)
	}
	// precision is new, upperBound is gone, unit is equal on both sides
	if len(md) != 2 {
		t.Fatalf("expected two metadata changes, got %#v", md)
	}
	test.MustBe(t, "precision", md[0].MetadataKey)
	if md[0].Old != nil || md[0].New.String() != "9" {
		t.Fatalf("unexpected precision change %#v", md[0])
	}
	test.MustBe(t, "upperBound", md[1].MetadataKey)
	if md[1].New != nil || md[1].Old.String() != `"+6"` {
		t.Fatalf("unexpected upperBound change %#v", md[1])
	}
}

func TestDiffRankQualifiersReferences(t *testing.T) {
	base := stmt("P10", "Q1$a", "h1", wdhistory.StringValue("X"), "string", nil)
	base.Qualifiers = []wdhistory.Snak{{PropertyID: "P580", Hash: "q1", Value: wdhistory.TimeValue("+2000-01-01T00:00:00Z"), Datatype: "time"}}
	base.References = []wdhistory.Reference{{Hash: "r1", Snaks: []wdhistory.Snak{{PropertyID: "P143", Hash: "s1", Value: wdhistory.EntityValue("Q328")}}}}

	next := base
	next.Rank = "preferred"
	next.Qualifiers = []wdhistory.Snak{
		{PropertyID: "P580", Hash: "q1", Value: wdhistory.TimeValue("+2000-01-01T00:00:00Z"), Datatype: "time"},
		{PropertyID: "P582", Hash: "q2", Value: wdhistory.TimeValue("+2010-01-01T00:00:00Z"), Datatype: "time"},
	}
	next.References = []wdhistory.Reference{{Hash: "r2", Snaks: []wdhistory.Snak{{PropertyID: "P854", Hash: "s2", Value: wdhistory.StringValue("http://x")}}}}

	changes := Diff(snap(nil, base), snap(nil, next), meta)
	var kinds []wdhistory.ChangeKind
	for _, c := range changes {
		kinds = append(kinds, c.Kind)
	}
	test.MustBe(t, []wdhistory.ChangeKind{
		wdhistory.UpdateRank,
		wdhistory.CreateQualifier,
		wdhistory.CreateQualifierValue,
		wdhistory.CreateReference,
		wdhistory.CreateReferenceValue,
		wdhistory.DeleteReference,
		wdhistory.DeleteReferenceValue,
	}, kinds)
	test.MustBe(t, wdhistory.CategoryQualifier, changes[1].Category())
	test.MustBe(t, wdhistory.CategoryReference, changes[3].Category())
	test.MustBe(t, int64(582), changes[2].Snak.PropertyID)
}

func TestReplayReconstructsClaims(t *testing.T) {
	revs := []*wdhistory.Snapshot{
		snap(str("A"), stmt("P10", "Q1$a", "h1", wdhistory.StringValue("X"), "string", nil)),
		snap(str("A"),
			stmt("P10", "Q1$a", "h2", wdhistory.StringValue("Y"), "string", nil),
			stmt("P625", "Q1$g", "h3", wdhistory.GlobeValue{Latitude: 1, Longitude: 2}, "globecoordinate", nil)),
		nil,
		snap(nil,
			stmt("P625", "Q1$g", "h4", wdhistory.GlobeValue{Latitude: 3, Longitude: 2}, "globecoordinate", nil),
			stmt("P31", "Q1$c", "h5", wdhistory.EntityValue("Q5"), "wikibase-entityid", nil)),
		snap(nil,
			stmt("P625", "Q1$g", "h6", wdhistory.StringValue("somewhere"), "string", nil),
			stmt("P31", "Q1$c", "h7", wdhistory.NoValue, "", nil)),
		snap(nil,
			stmt("P625", "Q1$g", "h8", wdhistory.GlobeValue{Latitude: 7, Longitude: 8}, "globecoordinate", nil)),
	}
	got := make(ClaimMap)
	var prev *wdhistory.Snapshot
	for i, cur := range revs {
		m := meta
		m.RevisionID = int64(i + 1)
		got.Apply(Diff(prev, cur, m))
		test.MustBe(t, ClaimsOf(cur), got, "after revision")
		prev = cur
	}
}

func TestMagnitude(t *testing.T) {
	for _, tc := range []struct {
		old, new wdhistory.Value
		want     float64
		ok       bool
	}{
		{wdhistory.QuantityValue("+5"), wdhistory.QuantityValue("+7.5"), 2.5, true},
		{wdhistory.QuantityValue("+5"), wdhistory.QuantityValue("-5"), -10, true},
		{wdhistory.TimeValue("+2000-00-00T00:00:00Z"), wdhistory.TimeValue("+2002-01-00T00:00:00Z"), 2*365.25 + 30.44, true},
		{wdhistory.TimeValue("-0500-01-01T00:00:00Z"), wdhistory.TimeValue("-0500-01-03T00:00:00Z"), 2, true},
		{wdhistory.StringValue("kitten"), wdhistory.StringValue("sitting"), 3, true},
		{wdhistory.EntityValue("Q1"), wdhistory.EntityValue("Q2"), 0, false},
		{wdhistory.NoValue, wdhistory.StringValue("x"), 0, false},
		{wdhistory.StringValue("x"), wdhistory.SomeValue, 0, false},
	} {
		got, ok := Magnitude(tc.old, tc.new)
		if ok != tc.ok || (ok && (got-tc.want > 1e-9 || tc.want-got > 1e-9)) {
			t.Fatalf("Magnitude(%v, %v) = %v, %v; want %v, %v", tc.old, tc.new, got, ok, tc.want, tc.ok)
		}
	}
	long := strings.Repeat("ab", MaxEditDistanceRunes)
	if _, ok := Magnitude(wdhistory.StringValue(long), wdhistory.StringValue("ab")); ok {
		t.Fatalf("expected no magnitude for a %d rune string", len(long))
	}
	if _, ok := Magnitude(wdhistory.MonolingualValue("ab"), wdhistory.MonolingualValue(long)); ok {
		t.Fatalf("expected no magnitude for a long monolingual text")
	}
	edge := strings.Repeat("é", MaxEditDistanceRunes)
	if got, ok := EditDistance(edge, edge[:len(edge)-2]); !ok || got != 1 {
		t.Fatalf("EditDistance at the limit = %v, %v; want 1, true", got, ok)
	}
	d := Haversine(52.5200, 13.4050, 48.8566, 2.3522)
	if d < 870 || d > 885 {
		t.Fatalf("unexpected Berlin-Paris distance %v", d)
	}
}
