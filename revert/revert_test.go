package revert

import (
	"testing"
	"time"

	"github.com/pilosa/wdhistory"
	"github.com/pilosa/wdhistory/diff"
	"github.com/pilosa/wdhistory/test"
)

var t0 = time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)

func p10(id, hash, value string) *wdhistory.Snapshot {
	return &wdhistory.Snapshot{Claims: map[string][]wdhistory.Statement{
		"P10": {{ID: id, PropertyID: "P10", Rank: "normal", Hash: hash, Value: wdhistory.StringValue(value), Datatype: "string"}},
	}}
}

// history folds snapshots into one change list the way a worker does.
func history(snaps []*wdhistory.Snapshot, comments []string, gaps []time.Duration) []wdhistory.Change {
	var all []wdhistory.Change
	var prev *wdhistory.Snapshot
	ts := t0
	for i, s := range snaps {
		ts = ts.Add(gaps[i])
		meta := diff.RevisionMeta{EntityID: "Q1", RevisionID: int64(i + 1), Timestamp: ts, Comment: comments[i]}
		all = append(all, diff.Diff(prev, s, meta)...)
		prev = s
	}
	return all
}

func flags(changes []wdhistory.Change) map[int64][2]bool {
	m := make(map[int64][2]bool)
	for _, c := range changes {
		if c.Category() == wdhistory.CategoryValue {
			f := m[c.RevisionID]
			m[c.RevisionID] = [2]bool{f[0] || c.Reverted, f[1] || c.Reversion}
		}
	}
	return m
}

func TestScenarioRevertByComment(t *testing.T) {
	changes := history(
		[]*wdhistory.Snapshot{p10("Q1$a", "hX", "X"), p10("Q1$a", "hY", "Y"), p10("Q1$a", "hX", "X")},
		[]string{"", "", "rv vandalism"},
		[]time.Duration{0, 30 * 24 * time.Hour, 30 * 24 * time.Hour},
	)
	cnt := Detect(changes, Options{})
	got := flags(changes)
	test.MustBe(t, [2]bool{false, false}, got[1], "rev 1")
	test.MustBe(t, [2]bool{true, false}, got[2], "rev 2")
	test.MustBe(t, [2]bool{false, true}, got[3], "rev 3")
	test.MustBe(t, Counters{Reverted: 1, RevertedUpdates: 1, Reversions: 1}, cnt)
}

func TestRevertNeedsWindowOrKeyword(t *testing.T) {
	snaps := []*wdhistory.Snapshot{p10("Q1$a", "hX", "X"), p10("Q1$a", "hY", "Y"), p10("Q1$a", "hX", "X")}
	changes := history(snaps, []string{"", "", "fix"}, []time.Duration{0, time.Hour, 8 * 24 * time.Hour})
	if cnt := Detect(changes, Options{}); cnt.Reverted != 0 || cnt.Reversions != 0 {
		t.Fatalf("expected no revert outside the window, got %+v", cnt)
	}
	changes = history(snaps, []string{"", "", "fix"}, []time.Duration{0, time.Hour, 6 * 24 * time.Hour})
	if cnt := Detect(changes, Options{}); cnt.Reverted != 1 || cnt.Reversions != 1 {
		t.Fatalf("expected a revert inside the window, got %+v", cnt)
	}
}

func TestCreateThenDeleteIsReverted(t *testing.T) {
	empty := &wdhistory.Snapshot{Claims: map[string][]wdhistory.Statement{"P1": {{ID: "Q1$z", PropertyID: "P1", Hash: "z", Value: wdhistory.StringValue("z")}}}}
	changes := history(
		[]*wdhistory.Snapshot{empty, mergeP10(empty, "Q1$a", "hX", "X"), empty},
		[]string{"", "", ""},
		[]time.Duration{0, time.Minute, time.Minute},
	)
	cnt := Detect(changes, Options{})
	var create, del *wdhistory.Change
	for i := range changes {
		c := &changes[i]
		if c.ValueID != "Q1$a" || c.Target != wdhistory.TargetValue {
			continue
		}
		switch c.Kind {
		case wdhistory.CreatePropertyValue:
			create = c
		case wdhistory.DeletePropertyValue:
			del = c
		}
	}
	if create == nil || del == nil {
		t.Fatalf("missing create or delete in %#v", changes)
	}
	if !create.Reverted || !del.Reversion || create.Reversion || del.Reverted {
		t.Fatalf("unexpected flags: create %+v delete %+v", create, del)
	}
	test.MustBe(t, int64(1), cnt.RevertedCreates)
}

func mergeP10(base *wdhistory.Snapshot, id, hash, value string) *wdhistory.Snapshot {
	s := &wdhistory.Snapshot{Claims: map[string][]wdhistory.Statement{}}
	for k, v := range base.Claims {
		s.Claims[k] = v
	}
	s.Claims["P10"] = p10(id, hash, value).Claims["P10"]
	return s
}

func TestIntermediateChangesAreReverted(t *testing.T) {
	changes := history(
		[]*wdhistory.Snapshot{p10("Q1$a", "hA", "A"), p10("Q1$a", "hB", "B"), p10("Q1$a", "hC", "C"), p10("Q1$a", "hA", "A")},
		[]string{"", "", "", "Undid revision 2"},
		[]time.Duration{0, time.Hour, time.Hour, time.Hour},
	)
	Detect(changes, Options{})
	got := flags(changes)
	test.MustBe(t, [2]bool{true, false}, got[2])
	test.MustBe(t, [2]bool{true, false}, got[3], "strictly between")
	test.MustBe(t, [2]bool{false, true}, got[4])
}

func TestLabelRevertUsesValues(t *testing.T) {
	foo, bar := "Foo", "Bar"
	changes := history(
		[]*wdhistory.Snapshot{{Label: &foo}, {Label: &bar}, {Label: &foo}},
		[]string{"", "", ""},
		[]time.Duration{0, time.Hour, time.Hour},
	)
	Detect(changes, Options{})
	if !changes[1].Reverted || !changes[2].Reversion {
		t.Fatalf("expected label update reverted: %+v", changes)
	}
}

func TestRankFollowsParent(t *testing.T) {
	a := p10("Q1$a", "hX", "X")
	b := p10("Q1$a", "hY", "Y")
	b.Claims["P10"][0].Rank = "preferred"
	changes := history([]*wdhistory.Snapshot{a, b, a}, []string{"", "", "revert"}, []time.Duration{0, time.Hour, time.Hour})
	Detect(changes, Options{})
	for _, c := range changes {
		if c.Kind != wdhistory.UpdateRank {
			continue
		}
		switch c.RevisionID {
		case 2:
			if !c.Reverted {
				t.Fatalf("rank change of reverted revision not reverted: %+v", c)
			}
		case 3:
			if !c.Reversion {
				t.Fatalf("rank change of reversion not a reversion: %+v", c)
			}
		}
	}
}

func TestDetectIdempotent(t *testing.T) {
	changes := history(
		[]*wdhistory.Snapshot{p10("Q1$a", "hA", "A"), p10("Q1$a", "hB", "B"), p10("Q1$a", "hA", "A"), p10("Q1$a", "hB", "B")},
		[]string{"", "", "rv", ""},
		[]time.Duration{0, time.Hour, time.Hour, 10 * 24 * time.Hour},
	)
	first := Detect(changes, Options{})
	snapshot := append([]wdhistory.Change(nil), changes...)
	second := Detect(changes, Options{})
	test.MustBe(t, first, second)
	test.MustBe(t, snapshot, changes)
}

func TestHasKeyword(t *testing.T) {
	for _, c := range []string{"rv vandalism", "Reverted edits by X", "/* undo:0||123|Bob */", "Rollback", "RV"} {
		if !HasKeyword(c) {
			t.Fatalf("expected keyword in %q", c)
		}
	}
	for _, c := range []string{"server move", "fixed typo", ""} {
		if HasKeyword(c) {
			t.Fatalf("unexpected keyword in %q", c)
		}
	}
}
