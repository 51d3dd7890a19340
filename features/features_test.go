package features

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/diff"
	"github.com/pilosa/wdhistory/lookup"
	"github.com/pilosa/wdhistory/test"
)

func str(s string) *string { return &s }

func stmt(pid, id string, v wdhistory.Value, datatype string, md wdhistory.Metadata) wdhistory.Statement {
	return wdhistory.Statement{ID: id, PropertyID: pid, Rank: "normal", Hash: id + v.String(), Value: v, Datatype: datatype, Metadata: md}
}

func snap(label string, stmts ...wdhistory.Statement) *wdhistory.Snapshot {
	s := &wdhistory.Snapshot{Label: str(label), Claims: make(map[string][]wdhistory.Statement)}
	for _, st := range stmts {
		s.Claims[st.PropertyID] = append(s.Claims[st.PropertyID], st)
	}
	return s
}

var meta = diff.RevisionMeta{EntityID: "Q1", RevisionID: 7, Timestamp: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}

const gregorian = `"http://www.wikidata.org/entity/Q1985727"`

func extract(t *testing.T, e *Extractor, prev, cur *wdhistory.Snapshot) Rows {
	t.Helper()
	return e.Extract(prev, cur, diff.Diff(prev, cur, meta))
}

func TestExtractText(t *testing.T) {
	prev := snap("Berlin", stmt("P1449", "Q1$n", wdhistory.MonolingualValue("Hello world"), "monolingualtext", wdhistory.Metadata{"language": `"en"`}))
	cur := snap("berlin", stmt("P1449", "Q1$n", wdhistory.MonolingualValue("hello world"), "monolingualtext", wdhistory.Metadata{"language": `"en"`}))
	rows := extract(t, NewExtractor(nil), prev, cur)
	if len(rows.Text) != 2 || rows.Len() != 2 {
		t.Fatalf("expected 2 text rows, got %+v", rows)
	}
	for _, r := range rows.Text {
		if !r.CaseOnly || r.Levenshtein != 0 || r.LengthDiff != 0 {
			t.Errorf("expected a case only change, got %+v", r)
		}
		test.MustBe(t, int64(7), r.RevisionID)
	}
	test.MustBe(t, wdhistory.LabelPropertyID, rows.Text[0].PropertyID)
	test.MustBe(t, Key{RevisionID: 7, PropertyID: 1449, ValueID: "Q1$n"}, rows.Text[1].Key)
	test.MustBe(t, 1.0/3, rows.Text[1].TokenOverlap)
}

func TestTextFeatures(t *testing.T) {
	f := textFeatures(Key{}, "Douglas Adams", "Douglas Noel Adams")
	test.MustBe(t, 5, f.LengthDiff)
	test.MustBe(t, 2, f.TokenCountOld)
	test.MustBe(t, 3, f.TokenCountNew)
	test.MustBe(t, 2.0/3, f.TokenOverlap)
	test.MustBe(t, 5, f.Levenshtein)
	test.MustBe(t, false, f.CompleteReplacement)
	test.MustBe(t, true, f.SignificantPrefix)
	test.MustBe(t, true, f.SignificantSuffix)

	f = textFeatures(Key{}, "abc", "xyz")
	test.MustBe(t, true, f.CompleteReplacement)
	test.MustBe(t, 1.0, f.EditDistanceRatio)

	f = textFeatures(Key{}, "abc", strings.Repeat("abc ", diff.MaxEditDistanceRunes))
	test.MustBe(t, -1, f.Levenshtein)
	test.MustBe(t, -1.0, f.EditDistanceRatio)
	test.MustBe(t, true, f.SignificantPrefix)
}

func TestExtractTimeQuantity(t *testing.T) {
	prev := snap("X",
		stmt("P569", "Q1$t", wdhistory.TimeValue("+1952-03-11T00:00:00Z"), "time", wdhistory.Metadata{"precision": "9", "calendarmodel": gregorian}),
		stmt("P2048", "Q1$q", wdhistory.QuantityValue("+10"), "quantity", wdhistory.Metadata{"unit": `"http://www.wikidata.org/entity/Q11573"`}),
	)
	cur := snap("X",
		stmt("P569", "Q1$t", wdhistory.TimeValue("+1953-03-11T00:00:00Z"), "time", wdhistory.Metadata{"precision": "11", "calendarmodel": gregorian}),
		stmt("P2048", "Q1$q", wdhistory.QuantityValue("+12.5"), "quantity", wdhistory.Metadata{"unit": `"http://www.wikidata.org/entity/Q174728"`}),
	)
	rows := extract(t, NewExtractor(nil), prev, cur)
	if len(rows.Time) != 1 || len(rows.Quantity) != 1 {
		t.Fatalf("expected one time and one quantity row, got %+v", rows)
	}
	tm := rows.Time[0]
	test.MustBe(t, 365.25, tm.DayDiff)
	test.MustBe(t, true, tm.YearChanged)
	test.MustBe(t, false, tm.MonthChanged)
	test.MustBe(t, 2, tm.PrecisionDiff)
	test.MustBe(t, false, tm.CalendarChanged)
	test.MustBe(t, false, tm.SignChange)

	q := rows.Quantity[0]
	test.MustBe(t, 2.5, q.Diff)
	test.MustBe(t, 0.25, q.RelativeDiff)
	test.MustBe(t, true, q.WholeNumberChange)
	test.MustBe(t, 1, q.PrecisionDiff)
	test.MustBe(t, 1, q.SharedPrefix)
	test.MustBe(t, true, q.UnitChanged)
}

func TestExtractGlobe(t *testing.T) {
	berlin := wdhistory.GlobeValue{Latitude: 52.52, Longitude: 13.405}
	paris := wdhistory.GlobeValue{Latitude: 48.8566, Longitude: 2.3522}
	prev := snap("X", stmt("P625", "Q1$g", berlin, "globecoordinate", nil))
	cur := snap("X", stmt("P625", "Q1$g", paris, "globecoordinate", nil))
	rows := extract(t, NewExtractor(nil), prev, cur)
	if len(rows.Globe) != 1 {
		t.Fatalf("expected one row for both coordinate sub-changes, got %+v", rows.Globe)
	}
	g := rows.Globe[0]
	if math.Abs(g.DistanceKm-878) > 5 {
		t.Errorf("unexpected distance Berlin-Paris: %v", g.DistanceKm)
	}
	test.MustBe(t, GeohashPrecision, len(g.OldGeohash))
	test.MustBe(t, "u33d", g.OldGeohash[:4])
	test.MustBe(t, "u09t", g.NewGeohash[:4])
	test.MustBe(t, 1, g.GeohashPrefix)

	// a latitude only change still has both coordinates
	cur = snap("X", stmt("P625", "Q1$g", wdhistory.GlobeValue{Latitude: 52.5201, Longitude: 13.405}, "globecoordinate", nil))
	rows = extract(t, NewExtractor(nil), prev, cur)
	if len(rows.Globe) != 1 {
		t.Fatalf("expected one row, got %+v", rows.Globe)
	}
	if rows.Globe[0].GeohashPrefix < 6 {
		t.Errorf("expected nearby points to share a long prefix, got %+v", rows.Globe[0])
	}
}

func TestExtractEntity(t *testing.T) {
	s := lookup.NewStatic()
	s.Infos["Q523"] = lookup.EntityInfo{Label: "star", Description: "astronomical object"}
	s.Infos["Q6999"] = lookup.EntityInfo{Label: "astronomical object"}
	s.AddEdge(lookup.SubclassOf, "Q523", "Q6999")
	s.AddEdge(lookup.PartOf, "Q6999", "Q523")

	prev := snap("X", stmt("P31", "Q1$e", wdhistory.EntityValue("Q523"), "wikibase-entityid", nil))
	cur := snap("X", stmt("P31", "Q1$e", wdhistory.EntityValue("Q6999"), "wikibase-entityid", nil))
	rows := extract(t, NewExtractor(lookup.NewFallback(s, nil)), prev, cur)
	if len(rows.Entity) != 1 {
		t.Fatalf("expected one entity row, got %+v", rows)
	}
	test.MustBe(t, Entity{
		Key:              Key{RevisionID: 7, PropertyID: 31, ValueID: "Q1$e"},
		OldLabel:         "star",
		NewLabel:         "astronomical object",
		OldDescription:   "astronomical object",
		OldSubclassOfNew: true,
		NewPartOfOld:     true,
	}, rows.Entity[0])
}

func TestExtractSkips(t *testing.T) {
	prev := snap("X", stmt("P10", "Q1$a", wdhistory.StringValue("a"), "string", nil))
	// datatype change
	cur := snap("X", stmt("P10", "Q1$a", wdhistory.EntityValue("Q5"), "wikibase-entityid", nil))
	if rows := extract(t, NewExtractor(nil), prev, cur); rows.Len() != 0 {
		t.Fatalf("expected no rows across datatypes, got %+v", rows)
	}
	// creation and deletion have nothing to compare
	cur = snap("X", stmt("P11", "Q1$b", wdhistory.StringValue("b"), "string", nil))
	if rows := extract(t, NewExtractor(nil), prev, cur); rows.Len() != 0 {
		t.Fatalf("expected no rows for create/delete, got %+v", rows)
	}
}

func TestRowsAppend(t *testing.T) {
	var r Rows
	r.Append(Rows{Text: make([]Text, 2), Globe: make([]Globe, 1)})
	r.Append(Rows{Entity: make([]Entity, 3)})
	test.MustBe(t, 6, r.Len())
}
